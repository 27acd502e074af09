package dbentry_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/backend"
	"imaspy/internal/backend/backendtest"
	"imaspy/internal/config"
	"imaspy/internal/dbentry"
	"imaspy/internal/ids"
)

func options(version string) dbentry.Options {
	return dbentry.Options{DDVersion: version, Store: backendtest.Store(), Config: config.DefaultConfig()}
}

func memoryURI(t *testing.T) string {
	return "imas:memory?path=" + strings.ReplaceAll(t.Name(), "/", "_")
}

func open(t *testing.T, uri string, mode backend.Mode, version string) *dbentry.Entry {
	t.Helper()
	e, err := dbentry.Open(context.Background(), uri, mode, options(version))
	require.NoError(t, err)
	return e
}

// ecSchedule returns a DD 3.25.0 pulse_schedule with data below a node that was
// renamed in 3.26.0.
func ecSchedule(t *testing.T) *ids.Toplevel {
	ps := backendtest.PulseSchedule(t, backendtest.Factory(t, "3.25.0"))
	antenna := ps.Struct("ec").Array("antenna")
	require.NoError(t, antenna.Resize(2, false))
	require.NoError(t, antenna.At(1).Set("launching_angle_pol/reference", []float64{0.1, 0.2}))
	require.NoError(t, antenna.At(1).Set("launching_angle_pol/time", []float64{0, 1}))
	return ps
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	for _, uri := range []string{
		memoryURI(t),
		"imas:ascii?path=" + filepath.Join(t.TempDir(), "ascii"),
		"imas:sqlite?path=" + filepath.Join(t.TempDir(), "entry.sqlite"),
		filepath.Join(t.TempDir(), "entry.nc"),
	} {
		e := open(t, uri, backend.ModeWrite, "3.39.0")
		cp := backendtest.CoreProfiles(t, e.Factory())
		require.NoError(t, e.Put(ctx, cp, 0), uri)
		got, err := e.Get(ctx, "core_profiles", dbentry.GetOptions{})
		require.NoError(t, err, uri)
		assert.Empty(t, ids.Diff(cp, got), uri)
		occs, err := e.ListOccurrences(ctx, "core_profiles")
		require.NoError(t, err)
		assert.Equal(t, []int{0}, occs, uri)
		require.NoError(t, e.Close())
		require.NoError(t, e.Close())

		_, err = e.Get(ctx, "core_profiles", dbentry.GetOptions{})
		assert.ErrorIs(t, err, dbentry.ErrClosed)
		assert.ErrorIs(t, e.Put(ctx, cp, 0), dbentry.ErrClosed)
	}
}

func TestGetConvertsStoredVersion(t *testing.T) {
	ctx := context.Background()
	uri := memoryURI(t)
	old := open(t, uri, backend.ModeWrite, "3.25.0")
	require.NoError(t, old.Put(ctx, ecSchedule(t), 0))

	e := open(t, uri, backend.ModeRead, "3.39.0")
	defer e.Erase()

	got, err := e.Get(ctx, "pulse_schedule", dbentry.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "3.39.0", got.Version())
	v, err := got.Value("ec/launcher[1]/steering_angle_pol/reference")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, v.(*ids.Array[float64]).Data())
	v, err = got.Value("flux_control/i_plasma/reference_name")
	require.NoError(t, err)
	assert.Equal(t, "ip", v)

	stored, err := e.Get(ctx, "pulse_schedule", dbentry.GetOptions{AutoConvert: dbentry.Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, "3.25.0", stored.Version())

	target, err := e.Get(ctx, "pulse_schedule", dbentry.GetOptions{TargetVersion: "3.38.1"})
	require.NoError(t, err)
	assert.Equal(t, "3.38.1", target.Version())
}

func TestLazyGetConvertsPaths(t *testing.T) {
	ctx := context.Background()
	uri := memoryURI(t)
	old := open(t, uri, backend.ModeWrite, "3.25.0")
	require.NoError(t, old.Put(ctx, ecSchedule(t), 0))

	e := open(t, uri, backend.ModeRead, "3.39.0")
	defer e.Erase()
	lazy, err := e.Get(ctx, "pulse_schedule", dbentry.GetOptions{Lazy: true})
	require.NoError(t, err)
	assert.True(t, lazy.IsLazy())
	assert.Equal(t, "3.39.0", lazy.Version())
	assert.Equal(t, 2, lazy.Struct("ec").Array("launcher").Len())
	v, err := lazy.Value("ec/launcher[1]/steering_angle_pol/reference")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, v.(*ids.Array[float64]).Data())
	assert.NoError(t, lazy.Err())

	assert.ErrorIs(t, e.Put(ctx, lazy, 1), ids.ErrReadOnly)
}

func TestPutConvertsToEntryVersion(t *testing.T) {
	ctx := context.Background()
	e := open(t, memoryURI(t), backend.ModeWrite, "3.39.0")
	defer e.Erase()
	require.NoError(t, e.Put(ctx, ecSchedule(t), 0))

	got, err := e.Get(ctx, "pulse_schedule", dbentry.GetOptions{AutoConvert: dbentry.Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, "3.39.0", got.Version())
	v, err := got.Value("ec/launcher[1]/steering_angle_pol/time")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, v.(*ids.Array[float64]).Data())
}

func TestPutValidates(t *testing.T) {
	ctx := context.Background()
	e := open(t, memoryURI(t), backend.ModeWrite, "3.39.0")
	defer e.Erase()
	cp := backendtest.CoreProfiles(t, e.Factory())
	require.NoError(t, cp.Set("global_quantities/ip", []float64{1, 2}))
	var ve *ids.ValidationError
	assert.ErrorAs(t, e.Put(ctx, cp, 0), &ve)

	cfg := config.DefaultConfig()
	cfg.Validation.ValidateOnPut = false
	uri := memoryURI(t) + "_novalidate"
	unchecked, err := dbentry.Open(ctx, uri, backend.ModeWrite, dbentry.Options{DDVersion: "3.39.0", Store: backendtest.Store(), Config: cfg})
	require.NoError(t, err)
	defer unchecked.Erase()
	assert.NoError(t, unchecked.Put(ctx, cp, 0))
}

func TestGetSlice(t *testing.T) {
	ctx := context.Background()
	e := open(t, memoryURI(t), backend.ModeWrite, "3.39.0")
	defer e.Erase()
	require.NoError(t, e.Put(ctx, backendtest.CoreProfiles(t, e.Factory()), 0))

	s, err := e.GetSlice(ctx, "core_profiles", 0.3, backend.Previous, dbentry.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3}, s.Time())
	assert.Equal(t, 1, s.Array("profiles_1d").Len())
}

func TestPutSlice(t *testing.T) {
	ctx := context.Background()
	e := open(t, memoryURI(t), backend.ModeWrite, "3.39.0")
	defer e.Erase()
	for i := range 2 {
		s := e.Factory().MustNew("core_profiles")
		require.NoError(t, s.SetTimeMode(ids.TimeModeHomogeneous))
		require.NoError(t, s.Set("time", []float64{float64(i)}))
		require.NoError(t, e.PutSlice(ctx, s, 0))
	}
	got, err := e.Get(ctx, "core_profiles", dbentry.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, got.Time())
}

func TestListOccurrencesWithPath(t *testing.T) {
	ctx := context.Background()
	e := open(t, memoryURI(t), backend.ModeWrite, "3.39.0")
	defer e.Erase()
	for _, occ := range []int{0, 4} {
		cp := backendtest.CoreProfiles(t, e.Factory())
		require.NoError(t, cp.Set("ids_properties/comment", "occurrence "+string(rune('0'+occ))))
		require.NoError(t, e.Put(ctx, cp, occ))
	}
	require.NoError(t, e.Put(ctx, backendtest.PulseSchedule(t, e.Factory()), 1))

	occs, values, err := e.ListOccurrencesWithPath(ctx, "core_profiles", "ids_properties/comment")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4}, occs)
	assert.Equal(t, []any{"occurrence 0", "occurrence 4"}, values)

	_, values, err = e.ListOccurrencesWithPath(ctx, "core_profiles", "profiles_1d")
	require.NoError(t, err)
	assert.Equal(t, []any{3, 3}, values)

	_, _, err = e.ListOccurrencesWithPath(ctx, "core_profiles", "global_quantities")
	assert.ErrorIs(t, err, ids.ErrType)

	all, err := e.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]int{"core_profiles": {0, 4}, "pulse_schedule": {1}}, all)

	require.NoError(t, e.DeleteData(ctx, "core_profiles", 4))
	occs, err = e.ListOccurrences(ctx, "core_profiles")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, occs)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	_, err := dbentry.Open(ctx, "imas:hdf5?path=/tmp/x", backend.ModeRead, options("3.39.0"))
	assert.ErrorContains(t, err, "unsupported backend")
	_, err = dbentry.Open(ctx, memoryURI(t), backend.ModeRead, options("3.39.0"))
	assert.ErrorIs(t, err, backend.ErrNotExist)
	_, err = dbentry.Open(ctx, memoryURI(t), backend.ModeWrite, options("0.0.1"))
	assert.Error(t, err)
	_, err = dbentry.Open(ctx, filepath.Join(t.TempDir(), "x.nc")+"", backend.ModeWrite,
		dbentry.Options{DDVersion: "3.39.0", Store: backendtest.Store(), Config: config.DefaultConfig(), XMLPath: filepath.Join(t.TempDir(), "missing.xml")})
	assert.Error(t, err)
}

func TestLegacy(t *testing.T) {
	dir := t.TempDir()
	e, err := dbentry.OpenLegacy(context.Background(), "ascii", dir, 1234, 5, backend.ModeWrite, options("3.39.0"))
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, filepath.Join(dir, "1234", "5"), e.URI().Path)
	assert.Equal(t, "ascii", e.Backend())
}
