package ids_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/ids"
)

// filledCoreProfiles returns a homogeneous core_profiles with three time slices.
func filledCoreProfiles(t *testing.T, version string) *ids.Toplevel {
	t.Helper()
	cp := newIDS(t, version, "core_profiles")
	require.NoError(t, cp.SetTimeMode(ids.TimeModeHomogeneous))
	set(t, &cp.Structure, "ids_properties/comment", "test data")
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

type countingLoader struct {
	ids.RecordSet
	sizes, values int
}

func (c *countingLoader) LoadSize(a *ids.StructArray) (int, error) {
	c.sizes++
	return c.RecordSet.LoadSize(a)
}

func (c *countingLoader) LoadValue(p *ids.Primitive) (any, error) {
	c.values++
	return c.RecordSet.LoadValue(p)
}

func TestLazyLoading(t *testing.T) {
	src := filledCoreProfiles(t, "3.39.0")
	loader := &countingLoader{RecordSet: ids.NewRecordSet(ids.Flatten(src))}
	lazy, err := factory(t, "3.39.0").NewLazy("core_profiles", loader)
	require.NoError(t, err)
	assert.True(t, lazy.IsLazy())
	assert.Equal(t, 0, loader.sizes+loader.values)

	assert.Equal(t, []float64{0.1, 0.2, 0.3}, lazy.Time())
	assert.Equal(t, 1, loader.values)

	p1d := lazy.Array("profiles_1d")
	assert.Equal(t, 3, p1d.Len())
	assert.Equal(t, 1, loader.sizes)
	assert.Equal(t, []float64{3e3, 500, 10}, p1d.At(2).Struct("electrons").Leaf("temperature").Floats())
	assert.Equal(t, "D", p1d.At(0).Array("ion").At(0).Leaf("label").Str())

	// Values are loaded once.
	before := loader.values
	_ = p1d.At(2).Struct("electrons").Leaf("temperature").Value()
	assert.Equal(t, before, loader.values)

	assert.Empty(t, ids.Diff(src, lazy))
	assert.NoError(t, lazy.Err())
}

func TestLazyIsReadOnly(t *testing.T) {
	src := filledCoreProfiles(t, "3.39.0")
	lazy, err := factory(t, "3.39.0").NewLazy("core_profiles", ids.NewRecordSet(ids.Flatten(src)))
	require.NoError(t, err)

	assert.ErrorIs(t, lazy.Set("ids_properties/comment", "x"), ids.ErrReadOnly)
	assert.ErrorIs(t, lazy.Array("profiles_1d").Resize(1, false), ids.ErrReadOnly)
	assert.ErrorIs(t, lazy.Array("profiles_1d").Append(lazy.Array("profiles_1d").NewElement()), ids.ErrReadOnly)
	assert.ErrorIs(t, lazy.Leaf("time").Clear(), ids.ErrReadOnly)
	assert.ErrorIs(t, ids.Fill(lazy, ids.RecordSet{}), ids.ErrReadOnly)

	// A writable copy can be modified.
	cp := ids.Copy(lazy)
	assert.False(t, cp.IsLazy())
	require.NoError(t, cp.Set("ids_properties/comment", "x"))
	assert.Equal(t, "test data", lazy.Struct("ids_properties").Leaf("comment").Str())

	// Lazy elements cannot be moved into a writable IDS.
	err = cp.Array("profiles_1d").Append(lazy.Array("profiles_1d").At(0))
	assert.ErrorIs(t, err, ids.ErrReadOnly)
}

var errBroken = errors.New("backend went away")

type brokenLoader struct{}

func (brokenLoader) LoadSize(*ids.StructArray) (int, error) { return 0, errBroken }
func (brokenLoader) LoadValue(*ids.Primitive) (any, error)  { return nil, errBroken }

func TestLazyLoadErrors(t *testing.T) {
	lazy, err := factory(t, "3.39.0").NewLazy("core_profiles", brokenLoader{})
	require.NoError(t, err)

	assert.Equal(t, 0, lazy.Array("profiles_1d").Len())
	assert.Nil(t, lazy.Time())
	assert.NoError(t, lazy.Leaf("time").Load(), "failed loads are not retried")

	err = lazy.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, errBroken)
	var loadErrs ids.LoadErrors
	require.ErrorAs(t, err, &loadErrs)
	assert.Len(t, loadErrs, 2)
}

type wrongTypeLoader struct{ ids.RecordSet }

func (wrongTypeLoader) LoadValue(p *ids.Primitive) (any, error) {
	if p.Metadata().Path == "time" {
		return "not a number", nil
	}
	return nil, nil
}

func TestLazyLoadCastError(t *testing.T) {
	lazy, err := factory(t, "3.39.0").NewLazy("core_profiles", wrongTypeLoader{})
	require.NoError(t, err)
	assert.False(t, lazy.Leaf("time").HasValue())
	assert.ErrorIs(t, lazy.Err(), ids.ErrType)
}
