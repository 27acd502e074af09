package ids_test

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/ids"
)

func TestWalk(t *testing.T) {
	cp := filledCoreProfiles(t, "3.39.0")

	var leaves []string
	for n := range ids.All(cp, ids.IterOptions{LeafOnly: true}) {
		leaves = append(leaves, n.Path())
	}
	assert.Contains(t, leaves, "profiles_1d[2]/electrons/temperature")
	assert.Contains(t, leaves, "ids_properties/homogeneous_time")
	assert.NotContains(t, leaves, "profiles_1d")
	assert.NotContains(t, leaves, "profiles_1d[0]/zeff", "empty nodes are skipped")

	var all []string
	for n := range ids.All(cp.Struct("code"), ids.IterOptions{VisitEmpty: true, IncludeNode: true}) {
		all = append(all, n.Path())
	}
	assert.Equal(t, []string{"code", "code/name", "code/version", "code/parameters", "code/output_flag"}, all)

	// SkipChildren prunes, other errors stop the walk.
	var visited []string
	err := ids.Walk(cp, ids.IterOptions{}, func(n ids.Node) error {
		visited = append(visited, n.Path())
		if _, ok := n.(*ids.StructArray); ok {
			return ids.SkipChildren
		}
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, visited, "profiles_1d")
	assert.False(t, slices.Contains(visited, "profiles_1d[0]"))

	count := 0
	for range ids.All(cp, ids.IterOptions{}) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestFindPaths(t *testing.T) {
	m, err := factory(t, "3.39.0").Metadata("core_profiles")
	require.NoError(t, err)
	paths, err := ids.FindPaths(m, `temperature$`)
	require.NoError(t, err)
	assert.Equal(t, []string{"profiles_1d/electrons/temperature", "profiles_1d/ion/temperature"}, paths)

	_, err = ids.FindPaths(m, `(`)
	assert.Error(t, err)
}

func TestCopyIsDeep(t *testing.T) {
	cp := filledCoreProfiles(t, "3.39.0")
	cpy := ids.Copy(cp)
	assert.Empty(t, ids.Diff(cp, cpy))

	cpy.Leaf("time").FloatArray().Set(9, 0)
	assert.Equal(t, 0.1, cp.Time()[0])
	require.NoError(t, cpy.Array("profiles_1d").Resize(1, true))
	assert.Equal(t, 3, cp.Array("profiles_1d").Len())
}

func TestDiff(t *testing.T) {
	a := filledCoreProfiles(t, "3.39.0")
	b := ids.Copy(a)
	set(t, &b.Structure, "ids_properties/comment", "other")
	require.NoError(t, b.Array("profiles_1d").At(1).Array("ion").Resize(2, true))
	set(t, &b.Structure, "global_quantities/v_loop", []float64{1, 2, 3})

	diffs := ids.Diff(a, b)
	paths := make([]string, len(diffs))
	for i, d := range diffs {
		paths[i] = d.Path
	}
	assert.Equal(t, []string{
		"ids_properties/comment",
		"profiles_1d[1]/ion/<length>",
		"global_quantities/v_loop",
	}, paths)
	assert.Equal(t, "ids_properties/comment: test data != other", diffs[0].String())

	old := filledCoreProfiles(t, "3.38.1")
	diffs = ids.Diff(a, old)
	require.NotEmpty(t, diffs)
	assert.Equal(t, ids.Difference{Path: "<version>", A: "3.39.0", B: "3.38.1"}, diffs[0])

	eq := newIDS(t, "3.39.0", "equilibrium")
	diffs = ids.Diff(a, eq)
	assert.Equal(t, "<name>", diffs[0].Path)
}

func TestDiffIncompatible(t *testing.T) {
	old := newIDS(t, "3.25.0", "magnetics")
	require.NoError(t, old.Array("bpol_probe").Resize(1, false))
	cur := newIDS(t, "3.39.0", "magnetics")

	diffs := ids.Diff(old, cur)
	require.Len(t, diffs, 2)
	assert.Equal(t, "bpol_probe", diffs[1].Path)
	assert.Equal(t, "<incompatible>", diffs[1].B)
}

func TestFlattenRecords(t *testing.T) {
	cp := filledCoreProfiles(t, "3.39.0")
	records := ids.Flatten(cp)
	byPath := ids.NewRecordSet(records)

	assert.Equal(t, 3, byPath["profiles_1d"].Size)
	assert.Equal(t, &ids.EncodedValue{Type: "FLT_1D", Shape: []int{3}, Floats: []float64{0.1, 0.2, 0.3}}, byPath["time"].Value)
	assert.Equal(t, &ids.EncodedValue{Type: "STR_0D", Str: "D"}, byPath["profiles_1d[1]/ion[0]/label"].Value)
	assert.Equal(t, &ids.EncodedValue{Type: "INT_0D", Ints: []int32{1}}, byPath["ids_properties/homogeneous_time"].Value)
	_, ok := byPath["profiles_1d[0]/zeff"]
	assert.False(t, ok)

	// Flattened records fill an equal IDS.
	out := newIDS(t, "3.39.0", "core_profiles")
	require.NoError(t, ids.Fill(out, byPath))
	assert.Empty(t, ids.Diff(cp, out))
}

func TestEncodedValues(t *testing.T) {
	values := []any{
		"abc",
		[]string{"a", "b"},
		int32(-3),
		2.5,
		complex(1, 2),
		ids.From1D([]int32{1, 2}),
		ids.Filled([]int{2, 2}, 1.5),
		ids.From1D([]complex128{complex(1, -1)}),
		ids.EmptyArray[float64](2),
	}
	for _, v := range values {
		enc := ids.EncodeValue(v)
		require.NotNil(t, enc)
		dec, err := enc.Decode()
		require.NoError(t, err)
		assert.True(t, ids.ValuesEqual(v, dec), "%s: %v != %v", enc.Type, v, dec)
	}
	assert.Nil(t, ids.EncodeValue(struct{}{}))

	_, err := (&ids.EncodedValue{Type: "CPX_1D", Shape: []int{1}, Complex: []float64{1}}).Decode()
	assert.ErrorIs(t, err, ids.ErrType)
	_, err = (&ids.EncodedValue{Type: "INT_0D"}).Decode()
	assert.ErrorIs(t, err, ids.ErrType)
	_, err = (&ids.EncodedValue{Type: "FLT_1D", Shape: []int{3}, Floats: []float64{1}}).Decode()
	assert.ErrorIs(t, err, ids.ErrType)
	_, err = (&ids.EncodedValue{Type: "structure"}).Decode()
	assert.ErrorIs(t, err, ids.ErrType)
}

func TestSerialize(t *testing.T) {
	cp := filledCoreProfiles(t, "3.39.0")
	data, err := ids.Serialize(cp)
	require.NoError(t, err)

	v, err := ids.SerializedVersion(data)
	require.NoError(t, err)
	assert.Equal(t, "3.39.0", v)

	out, err := ids.Deserialize(data, factory(t, "3.39.0"))
	require.NoError(t, err)
	if diff := cmp.Diff([]ids.Difference(nil), ids.Diff(cp, out)); diff != "" {
		t.Errorf("deserialized IDS differs (-want +got):\n%s", diff)
	}
	assert.Equal(t, ids.Hash(cp), ids.Hash(out))

	_, err = ids.Deserialize(data, factory(t, "3.38.1"))
	assert.Error(t, err)
	_, err = ids.Deserialize([]byte("garbage"), factory(t, "3.39.0"))
	assert.Error(t, err)
}
