package convert_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/convert"
	"imaspy/internal/dd"
	"imaspy/internal/ids"
)

var (
	storeOnce sync.Once
	store     *dd.Store
)

func factory(t *testing.T, version string) *ids.Factory {
	t.Helper()
	storeOnce.Do(func() {
		store = dd.NewStore(dd.Options{NoStandardLocations: true})
	})
	f, err := store.NewFactory(version)
	require.NoError(t, err)
	return f
}

func TestPathMapRenamedAoS(t *testing.T) {
	pm, err := convert.PathMapFor("pulse_schedule", factory(t, "3.25.0"), factory(t, "3.39.0"))
	require.NoError(t, err)

	cases := map[string]string{
		"ec/antenna":                               "ec/launcher",
		"ec/antenna/name":                          "ec/launcher/name",
		"ec/antenna/power/reference":               "ec/launcher/power/reference",
		"ec/antenna/launching_angle_pol":           "ec/launcher/steering_angle_pol",
		"ec/antenna/launching_angle_pol/reference": "ec/launcher/steering_angle_pol/reference",
	}
	for src, want := range cases {
		got, ok := pm.Target(src)
		if assert.True(t, ok, src) {
			assert.Equal(t, want, got, src)
		}
	}
	assert.Contains(t, pm.Dropped, "ids_properties/source")
}

func TestPathMapBackwards(t *testing.T) {
	pm, err := convert.PathMapFor("magnetics", factory(t, "3.39.0"), factory(t, "3.25.0"))
	require.NoError(t, err)

	got, ok := pm.Target("b_field_pol_probe/field/data")
	require.True(t, ok)
	assert.Equal(t, "bpol_probe/field/data", got)
	assert.Equal(t, "3.39.0", pm.SourceVersion)
	assert.Equal(t, "3.25.0", pm.TargetVersion)
}

func TestPathMapRenameAlreadyApplied(t *testing.T) {
	pm, err := convert.PathMapFor("pulse_schedule", factory(t, "3.38.1"), factory(t, "3.39.0"))
	require.NoError(t, err)

	got, ok := pm.Target("ec/launcher/steering_angle_pol")
	require.True(t, ok)
	assert.Equal(t, "ec/launcher/steering_angle_pol", got)
	assert.Equal(t, []string{"ids_properties/source"}, pm.DroppedPaths())
}

func TestPathMapIsCached(t *testing.T) {
	a, err := convert.PathMapFor("magnetics", factory(t, "3.25.0"), factory(t, "3.39.0"))
	require.NoError(t, err)
	b, err := convert.PathMapFor("magnetics", factory(t, "3.25.0"), factory(t, "3.39.0"))
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func oldPulseSchedule(t *testing.T) *ids.Toplevel {
	t.Helper()
	ps, err := factory(t, "3.25.0").New("pulse_schedule")
	require.NoError(t, err)
	require.NoError(t, ps.SetTimeMode(ids.TimeModeHeterogeneous))
	require.NoError(t, ps.Set("ids_properties/source", "unit test"))
	antennas := ps.Struct("ec").Array("antenna")
	require.NoError(t, antennas.Resize(2, false))
	for i, a := range antennas.Elements() {
		require.NoError(t, a.Set("name", []string{"upper", "lower"}[i]))
		require.NoError(t, a.Set("launching_angle_pol/reference", []float64{0.1, 0.2, float64(i)}))
		require.NoError(t, a.Set("launching_angle_pol/time", []float64{0, 1, 2}))
	}
	return ps
}

func TestConvertForward(t *testing.T) {
	ps := oldPulseSchedule(t)
	out, err := convert.Convert(ps, factory(t, "3.39.0"), convert.Options{})
	require.NoError(t, err)

	assert.Equal(t, "3.39.0", out.Version())
	assert.Equal(t, ids.TimeModeHeterogeneous, out.TimeMode())
	launchers := out.Struct("ec").Array("launcher")
	require.Equal(t, 2, launchers.Len())
	v, err := out.Value("ec/launcher[1]/name")
	require.NoError(t, err)
	assert.Equal(t, "lower", v)
	assert.Equal(t, []float64{0.1, 0.2, 1}, launchers.At(1).Struct("steering_angle_pol").Leaf("reference").Floats())

	// Arrays are shared unless a deep copy is requested.
	src := ps.Struct("ec").Array("antenna").At(0).Struct("launching_angle_pol").Leaf("reference").FloatArray()
	dst := launchers.At(0).Struct("steering_angle_pol").Leaf("reference").FloatArray()
	assert.Same(t, src, dst)
}

func TestConvertDeepcopy(t *testing.T) {
	ps := oldPulseSchedule(t)
	out, err := convert.Convert(ps, factory(t, "3.39.0"), convert.Options{Deepcopy: true})
	require.NoError(t, err)

	src := ps.Struct("ec").Array("antenna").At(0).Struct("launching_angle_pol").Leaf("reference").FloatArray()
	dst := out.Struct("ec").Array("launcher").At(0).Struct("steering_angle_pol").Leaf("reference").FloatArray()
	assert.NotSame(t, src, dst)
	assert.True(t, src.Equal(dst))
	src.Set(42, 0)
	assert.Equal(t, 0.1, dst.At(0))
}

func TestConvertRoundTrip(t *testing.T) {
	old := oldPulseSchedule(t)
	require.NoError(t, old.Set("ids_properties/source", nil))

	cur, err := convert.Convert(old, factory(t, "3.39.0"), convert.Options{})
	require.NoError(t, err)
	back, err := convert.Convert(cur, factory(t, "3.25.0"), convert.Options{})
	require.NoError(t, err)
	assert.Empty(t, ids.Diff(old, back))
}

func TestConvertDropsRemovedData(t *testing.T) {
	ps := oldPulseSchedule(t)
	out, err := convert.Convert(ps, factory(t, "3.39.0"), convert.Options{})
	require.NoError(t, err)

	_, err = out.Lookup("ids_properties/source")
	assert.ErrorIs(t, err, ids.ErrUnknownField)
}

func TestConvertSameVersionCopies(t *testing.T) {
	ps := oldPulseSchedule(t)
	out, err := convert.Convert(ps, factory(t, "3.25.0"), convert.Options{})
	require.NoError(t, err)
	assert.Empty(t, ids.Diff(ps, out))
	require.NoError(t, out.Set("ec/antenna[0]/name", "changed"))
	v, err := ps.Value("ec/antenna[0]/name")
	require.NoError(t, err)
	assert.Equal(t, "upper", v)
}

func TestConvertMissingIDS(t *testing.T) {
	minimal, err := dd.Parse([]byte(`<IDSs><version>9.9.9</version><IDS name="other"/></IDSs>`), "")
	require.NoError(t, err)
	ps := oldPulseSchedule(t)
	_, err = convert.Convert(ps, ids.NewFactory(minimal), convert.Options{})
	assert.ErrorIs(t, err, convert.ErrMissingIDS)
}

func TestTranslatePath(t *testing.T) {
	pm, err := convert.PathMapFor("pulse_schedule", factory(t, "3.39.0"), factory(t, "3.25.0"))
	require.NoError(t, err)

	for in, want := range map[string]string{
		"ec/launcher[1]/steering_angle_pol/reference": "ec/antenna[1]/launching_angle_pol/reference",
		"ec/launcher[0]/name":                         "ec/antenna[0]/name",
		"ec/launcher":                                 "ec/antenna",
		"flux_control/i_plasma/time":                  "flux_control/i_plasma/time",
		"":                                            "",
	} {
		got, ok := pm.TranslatePath(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := pm.TranslatePath("ec/launcher[0]/no_such_node")
	assert.False(t, ok)
}
