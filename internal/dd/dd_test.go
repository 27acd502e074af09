package dd

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/ids"
)

const tinyDD = `<?xml version="1.0"?>
<IDSs>
  <version>%s</version>
  <utilities>
    <field name="ignored" data_type="FLT_0D"/>
  </utilities>
  <IDS name="tiny" maxoccur="2" documentation="A tiny IDS">
    <field name="ids_properties" path="ids_properties" data_type="structure">
      <field name="homogeneous_time" path="ids_properties/homogeneous_time" data_type="INT_0D" type="constant"/>
    </field>
    <field name="value" path="value" data_type="FLT_1D" type="dynamic" units="m" coordinate1="time"/>
    <field name="time" path="time" data_type="flt_1d_type" type="dynamic" units="s" coordinate1="1...N"/>
  </IDS>
</IDSs>
`

func tinyXML(version string) []byte {
	return []byte(fmt.Sprintf(tinyDD, version))
}

func writeZip(t *testing.T, dir string, versions ...string) string {
	t.Helper()
	path := filepath.Join(dir, "IDSDef.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, v := range versions {
		fw, err := w.Create("data-dictionary/" + v + ".xml")
		require.NoError(t, err)
		_, err = fw.Write(tinyXML(v))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func embeddedOnly() *Store {
	return NewStore(Options{NoStandardLocations: true})
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"3.38.1", "3.39.0", -1},
		{"3.9.0", "3.10.0", -1},
		{"3.39.0", "3.39.0", 0},
		{"3.38.1-13-gabc", "3.38.1", 1},
		{"3.38.1-13-gabc", "3.39.0", -1},
		{"3.38.1-2-gabc", "3.38.1-13-gdef", -1},
		{"develop", "4.0.0", 1},
		{"4.0", "3.42.0", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestSortVersions(t *testing.T) {
	vs := []string{"3.39.0", "3.25.0", "3.38.1-4-g00", "3.38.1"}
	SortVersions(vs)
	assert.Equal(t, []string{"3.25.0", "3.38.1", "3.38.1-4-g00", "3.39.0"}, vs)
	assert.True(t, IsDevVersion("3.38.1-4-g00"))
	assert.False(t, IsDevVersion("3.38.1"))
}

func TestEmbeddedVersions(t *testing.T) {
	s := embeddedOnly()
	vs, err := s.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"3.25.0", "3.38.1", "3.39.0"}, vs)

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "3.39.0", latest)
}

func TestNoSources(t *testing.T) {
	s := NewStore(Options{NoStandardLocations: true, NoEmbedded: true})
	_, err := s.Versions()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Load("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownVersion(t *testing.T) {
	_, err := embeddedOnly().Load("1.0.0")
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestLoadEmbedded(t *testing.T) {
	s := embeddedOnly()
	d, err := s.Load("3.39.0")
	require.NoError(t, err)
	assert.Equal(t, "3.39.0", d.Version())
	assert.Equal(t, "11", d.Cocos())
	assert.Contains(t, d.IDSNames(), "core_profiles")

	cp, ok := d.IDS("core_profiles")
	require.True(t, ok)
	assert.Equal(t, 15, cp.MaxOccur)

	zeff, err := cp.Lookup("profiles_1d/zeff")
	require.NoError(t, err)
	assert.Equal(t, ids.TypeFlt, zeff.DataType)
	assert.Equal(t, 1, zeff.NDim)
	assert.Equal(t, ids.IDSTypeDynamic, zeff.Type)
	assert.Equal(t, "profiles_1d(itime)/zeff", zeff.PathDoc)
	assert.Equal(t, "profiles_1d(itime)/grid/rho_tor_norm", zeff.Coordinates[0].String())

	p1d, err := cp.Lookup("profiles_1d")
	require.NoError(t, err)
	assert.True(t, p1d.IsDynamicAoS())
	assert.True(t, p1d.Coordinates[0].IsTimeCoordinate)

	// Units "as_parent" resolve to the parent's units.
	ml, ok := d.IDS("mhd_linear")
	require.True(t, ok)
	re, err := ml.Lookup("time_slice/toroidal_mode/plasma/stress_maxwell/real")
	require.NoError(t, err)
	assert.Equal(t, "N.m^-2", re.Units)
}

func TestLoadIsCached(t *testing.T) {
	s := embeddedOnly()
	a, err := s.Load("3.38.1")
	require.NoError(t, err)
	b, err := s.Load("3.38.1")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestCacheEviction(t *testing.T) {
	s := NewStore(Options{NoStandardLocations: true, CacheSize: 1})
	a, err := s.Load("3.38.1")
	require.NoError(t, err)
	_, err = s.Load("3.39.0")
	require.NoError(t, err)
	b, err := s.Load("3.38.1")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestNBCAttributes(t *testing.T) {
	d, err := embeddedOnly().Load("3.39.0")
	require.NoError(t, err)
	ps, ok := d.IDS("pulse_schedule")
	require.True(t, ok)
	launcher, err := ps.Lookup("ec/launcher")
	require.NoError(t, err)
	assert.Equal(t, "3.26.0", launcher.ChangeNBCVersion)
	assert.Equal(t, "aos_renamed", launcher.ChangeNBCDescription)
	assert.Equal(t, "antenna", launcher.ChangeNBCPreviousName)

	old, err := embeddedOnly().Load("3.25.0")
	require.NoError(t, err)
	ps, _ = old.IDS("pulse_schedule")
	_, err = ps.Lookup("ec/launcher")
	assert.ErrorIs(t, err, ids.ErrUnknownField)
}

func TestZipTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, "3.39.0", "9.9.9")

	s := NewStore(Options{ZipPaths: []string{zipPath}, NoStandardLocations: true})
	vs, err := s.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"3.25.0", "3.38.1", "3.39.0", "9.9.9"}, vs)

	d, err := s.Load("3.39.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"tiny"}, d.IDSNames(), "zip must shadow the embedded definition")

	assert.Equal(t, zipPath, s.Sources()[0])
}

func TestMissingZipIsSkipped(t *testing.T) {
	s := NewStore(Options{ZipPaths: []string{filepath.Join(t.TempDir(), "nope.zip")}, NoStandardLocations: true})
	assert.Equal(t, []string{"<embedded>"}, s.Sources())
}

func TestResolve(t *testing.T) {
	s := NewStore(Options{NoStandardLocations: true, DefaultVersion: "3.38.1"})
	v, err := s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "3.38.1", v)

	v, err = s.Resolve("3.25.0")
	require.NoError(t, err)
	assert.Equal(t, "3.25.0", v)

	v, err = embeddedOnly().Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "3.39.0", v)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.xml")
	require.NoError(t, os.WriteFile(path, tinyXML("4.0.0-dev"), 0644))

	s := embeddedOnly()
	f, err := s.NewFactoryFromXML(path)
	require.NoError(t, err)
	assert.Equal(t, "4.0.0-dev", f.Version())
	assert.Equal(t, []string{"tiny"}, f.Names())

	tiny, err := f.Metadata("tiny")
	require.NoError(t, err)
	tm, err := tiny.Lookup("time")
	require.NoError(t, err)
	assert.Equal(t, ids.TypeFlt, tm.DataType)
	assert.Equal(t, 1, tm.NDim)
	_, err = tiny.Lookup("ignored")
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`<foo/>`), "")
	assert.Error(t, err)

	_, err = Parse([]byte(`<IDSs><IDS name="x"><field name="a" data_type="BOGUS_1D"/></IDS></IDSs>`), "")
	assert.Error(t, err)

	_, err = Parse([]byte(`<IDSs><IDS name="x"><field name="a" data_type="FLT_0D"/><field name="a" data_type="FLT_0D"/></IDS></IDSs>`), "")
	assert.Error(t, err)

	_, err = Parse([]byte(`<IDSs><IDS name="x">`), "")
	assert.Error(t, err)

	d, err := Parse([]byte(`<IDSs><IDS name="x"><field name="a" data_type="FLT_0D"/></IDS></IDSs>`), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", d.Version())
}

func TestNewFactory(t *testing.T) {
	f, err := embeddedOnly().NewFactory("")
	require.NoError(t, err)
	assert.Equal(t, "3.39.0", f.Version())
	assert.True(t, f.Exists("equilibrium"))
	assert.False(t, f.Exists("not_an_ids"))
}
