// Package backendtest holds fixtures and a behaviour suite shared by the tests of
// the storage backends.
package backendtest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/backend"
	"imaspy/internal/dd"
	"imaspy/internal/ids"
)

var (
	storeOnce sync.Once
	store     *dd.Store
)

// Store returns a DD store that only uses the bundled definitions.
func Store() *dd.Store {
	storeOnce.Do(func() {
		store = dd.NewStore(dd.Options{NoStandardLocations: true})
	})
	return store
}

// Factory returns a factory for a bundled DD version.
func Factory(t testing.TB, version string) *ids.Factory {
	t.Helper()
	f, err := Store().NewFactory(version)
	require.NoError(t, err)
	return f
}

// CoreProfiles returns a homogeneous core_profiles with time slices at 0.1, 0.2 and 0.3.
func CoreProfiles(t testing.TB, f *ids.Factory) *ids.Toplevel {
	t.Helper()
	cp, err := f.New("core_profiles")
	require.NoError(t, err)
	require.NoError(t, cp.SetTimeMode(ids.TimeModeHomogeneous))
	set(t, &cp.Structure, "ids_properties/comment", "backend test")
	set(t, &cp.Structure, "time", []float64{0.1, 0.2, 0.3})
	set(t, &cp.Structure, "global_quantities/ip", []float64{1e6, 1.1e6, 1.2e6})
	set(t, &cp.Structure, "code/output_flag", []int{0, 0, 1})
	p1d := cp.Array("profiles_1d")
	require.NoError(t, p1d.Resize(3, false))
	for i, e := range p1d.Elements() {
		set(t, e, "time", 0.1*float64(i+1))
		set(t, e, "grid/rho_tor_norm", []float64{0, 0.5, 1})
		set(t, e, "electrons/temperature", []float64{1e3 * float64(i+1), 500, 10})
		require.NoError(t, e.Array("ion").Resize(1, false))
		set(t, e.Array("ion").At(0), "label", "D")
	}
	return cp
}

// PulseSchedule returns a heterogeneous pulse_schedule whose flux_control/i_plasma
// has samples at 0, 1 and 2.
func PulseSchedule(t testing.TB, f *ids.Factory) *ids.Toplevel {
	t.Helper()
	ps, err := f.New("pulse_schedule")
	require.NoError(t, err)
	require.NoError(t, ps.SetTimeMode(ids.TimeModeHeterogeneous))
	set(t, &ps.Structure, "flux_control/i_plasma/reference_name", "ip")
	set(t, &ps.Structure, "flux_control/i_plasma/reference", []float64{0, 1e6, 2e6})
	set(t, &ps.Structure, "flux_control/i_plasma/time", []float64{0, 1, 2})
	return ps
}

func set(t testing.TB, s *ids.Structure, path string, v any) {
	t.Helper()
	require.NoError(t, s.Set(path, v))
}

// Opener opens the entry under test. Every call within one test opens the same entry.
type Opener func(t *testing.T, mode backend.Mode) backend.Impl

// Run exercises the behaviour every backend shares.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()
	f := Factory(t, "3.39.0")

	t.Run("PutGet", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		cp := CoreProfiles(t, f)
		require.NoError(t, b.Put(ctx, cp, 0, false))

		got, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles"}, f)
		require.NoError(t, err)
		assert.Empty(t, ids.Diff(cp, got))
		v, err := got.Value("ids_properties/version_put/access_layer_language")
		require.NoError(t, err)
		assert.Equal(t, backend.AccessLayerLanguage, v)
		v, err = got.Value("ids_properties/version_put/data_dictionary")
		require.NoError(t, err)
		assert.Equal(t, "3.39.0", v)

		version, err := b.ReadDDVersion(ctx, "core_profiles", 0)
		require.NoError(t, err)
		assert.Equal(t, "3.39.0", version)
	})

	t.Run("Reopen", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		require.NoError(t, b.Put(ctx, CoreProfiles(t, f), 0, false))
		require.NoError(t, b.Close(false))

		r := open(t, backend.ModeRead)
		defer r.Close(false)
		got, err := r.Get(ctx, backend.GetRequest{IDS: "core_profiles"}, f)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.1, 0.2, 0.3}, got.Time())
	})

	t.Run("EmptyOccurrence", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		_, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles", Occurrence: 3}, f)
		assert.ErrorIs(t, err, backend.ErrNoData)
		_, err = b.ReadDDVersion(ctx, "equilibrium", 0)
		assert.ErrorIs(t, err, backend.ErrNoData)
	})

	t.Run("Occurrences", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		for _, occ := range []int{2, 0, 11} {
			require.NoError(t, b.Put(ctx, CoreProfiles(t, f), occ, false))
		}
		occs, err := b.ListOccurrences(ctx, "core_profiles")
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 11}, occs)

		require.NoError(t, b.DeleteData(ctx, "core_profiles", 2))
		occs, err = b.ListOccurrences(ctx, "core_profiles")
		require.NoError(t, err)
		assert.Equal(t, []int{0, 11}, occs)

		occs, err = b.ListOccurrences(ctx, "equilibrium")
		require.NoError(t, err)
		assert.Empty(t, occs)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		require.NoError(t, b.Put(ctx, CoreProfiles(t, f), 0, false))
		cp := f.MustNew("core_profiles")
		require.NoError(t, cp.SetTimeMode(ids.TimeModeHomogeneous))
		set(t, &cp.Structure, "time", []float64{5})
		require.NoError(t, b.Put(ctx, cp, 0, false))

		got, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles"}, f)
		require.NoError(t, err)
		assert.Equal(t, []float64{5}, got.Time())
		assert.Zero(t, got.Array("profiles_1d").Len())
	})

	t.Run("IndependentDropsDynamicData", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		cp := CoreProfiles(t, f)
		require.NoError(t, cp.SetTimeMode(ids.TimeModeIndependent))
		require.NoError(t, b.Put(ctx, cp, 0, false))
		assert.Equal(t, 3, cp.Array("profiles_1d").Len(), "put must not modify its argument")

		got, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles"}, f)
		require.NoError(t, err)
		assert.Empty(t, got.Time())
		assert.Zero(t, got.Array("profiles_1d").Len())
		v, err := got.Value("ids_properties/comment")
		require.NoError(t, err)
		assert.Equal(t, "backend test", v)
	})

	t.Run("InvalidTimeMode", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		err := b.Put(ctx, f.MustNew("core_profiles"), 0, false)
		assert.ErrorIs(t, err, backend.ErrTimeMode)
	})

	t.Run("Closed", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		require.NoError(t, b.Close(false))
		require.NoError(t, b.Close(false))
		_, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles"}, f)
		assert.ErrorIs(t, err, backend.ErrClosed)
		assert.ErrorIs(t, b.Put(ctx, CoreProfiles(t, f), 0, false), backend.ErrClosed)
		_, err = b.ListOccurrences(ctx, "core_profiles")
		assert.ErrorIs(t, err, backend.ErrClosed)
	})
}

// RunLazy exercises lazy loading.
func RunLazy(t *testing.T, open Opener) {
	ctx := context.Background()
	f := Factory(t, "3.39.0")

	t.Run("LazyGet", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		cp := CoreProfiles(t, f)
		require.NoError(t, b.Put(ctx, cp, 0, false))

		lazy, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles", Lazy: true}, f)
		require.NoError(t, err)
		assert.True(t, lazy.IsLazy())
		assert.Equal(t, 3, lazy.Array("profiles_1d").Len())
		v, err := lazy.Value("profiles_1d[1]/electrons/temperature")
		require.NoError(t, err)
		assert.Equal(t, []float64{2000, 500, 10}, v.(*ids.Array[float64]).Data())
		assert.Empty(t, ids.Diff(cp, lazy))
		assert.NoError(t, lazy.Err())

		assert.ErrorIs(t, b.Put(ctx, lazy, 1, false), ids.ErrReadOnly)
	})

	t.Run("LazyAfterClose", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		require.NoError(t, b.Put(ctx, CoreProfiles(t, f), 0, false))
		lazy, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles", Lazy: true}, f)
		require.NoError(t, err)
		require.NoError(t, b.Close(false))

		err = lazy.Struct("global_quantities").Leaf("ip").Load()
		assert.ErrorIs(t, err, backend.ErrClosed)
		assert.ErrorIs(t, lazy.Err(), backend.ErrClosed)
	})
}

// RunSlices exercises get_slice and put_slice.
func RunSlices(t *testing.T, open Opener) {
	ctx := context.Background()
	f := Factory(t, "3.39.0")

	t.Run("GetSlice", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		require.NoError(t, b.Put(ctx, CoreProfiles(t, f), 0, false))

		s, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles", Slice: &backend.SliceRequest{Time: 0.21, Method: backend.Closest}}, f)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.2}, s.Time())
		require.Equal(t, 1, s.Array("profiles_1d").Len())
		v, err := s.Value("profiles_1d[0]/electrons/temperature")
		require.NoError(t, err)
		assert.Equal(t, []float64{2000, 500, 10}, v.(*ids.Array[float64]).Data())
	})

	t.Run("PutSlice", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		for i := range 3 {
			s := f.MustNew("core_profiles")
			require.NoError(t, s.SetTimeMode(ids.TimeModeHomogeneous))
			set(t, &s.Structure, "ids_properties/comment", "slices")
			set(t, &s.Structure, "time", []float64{float64(i)})
			set(t, &s.Structure, "global_quantities/ip", []float64{float64(10 * i)})
			require.NoError(t, s.Array("profiles_1d").Resize(1, false))
			set(t, s.Array("profiles_1d").At(0), "time", float64(i))
			require.NoError(t, b.Put(ctx, s, 0, true))
		}
		got, err := b.Get(ctx, backend.GetRequest{IDS: "core_profiles"}, f)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1, 2}, got.Time())
		ip, err := got.Value("global_quantities/ip")
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 10, 20}, ip.(*ids.Array[float64]).Data())
		assert.Equal(t, 3, got.Array("profiles_1d").Len())
		v, err := got.Value("profiles_1d[2]/time")
		require.NoError(t, err)
		assert.Equal(t, 2.0, v)
	})

	t.Run("PutSliceTimeModeChange", func(t *testing.T) {
		b := open(t, backend.ModeWrite)
		defer b.Close(false)
		require.NoError(t, b.Put(ctx, CoreProfiles(t, f), 0, false))
		s := f.MustNew("core_profiles")
		require.NoError(t, s.SetTimeMode(ids.TimeModeHeterogeneous))
		assert.ErrorIs(t, b.Put(ctx, s, 0, true), backend.ErrTimeMode)

		s = f.MustNew("core_profiles")
		require.NoError(t, s.SetTimeMode(ids.TimeModeIndependent))
		assert.ErrorIs(t, b.Put(ctx, s, 0, true), backend.ErrTimeMode)
	})
}
