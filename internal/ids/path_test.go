package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/ids"
)

func TestParsePath(t *testing.T) {
	p, err := ids.ParsePath("a/b(i1)/c(itime)/d(1)/e(2:3)/f(g(i1)/h)/k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "k"}, p.Parts)

	kinds := make([]ids.IndexKind, len(p.Indices))
	for i, idx := range p.Indices {
		kinds[i] = idx.Kind
	}
	assert.Equal(t, []ids.IndexKind{
		ids.IndexNone, ids.IndexDummy, ids.IndexDummy, ids.IndexInt, ids.IndexSlice, ids.IndexPath, ids.IndexNone,
	}, kinds)
	assert.Equal(t, "i1", p.Indices[1].Dummy)
	assert.Equal(t, 1, p.Indices[3].Int)
	assert.Equal(t, 2, p.Indices[4].Start)
	assert.Equal(t, 3, p.Indices[4].Stop)
	assert.Equal(t, "g(i1)/h", p.Indices[5].Path.String())
	assert.Equal(t, "a/b/c/d/e/f/k", p.Plain())
	assert.Equal(t, "a/b(i1)/c(itime)/d(1)/e(2:3)/f(g(i1)/h)/k", p.String())
}

func TestParsePathInterned(t *testing.T) {
	a := ids.MustParsePath("profiles_1d(itime)/zeff")
	b := ids.MustParsePath("profiles_1d(itime)/zeff")
	assert.Same(t, a, b)
}

func TestParsePathErrors(t *testing.T) {
	for _, s := range []string{
		"a(i1",
		"a)b(",
		"a/(i1)",
		"A/b",
		"a__b",
		"a//b",
		"1abc",
		"a(b(c)",
	} {
		_, err := ids.ParsePath(s)
		assert.Error(t, err, s)
	}
}

func TestEmptyPath(t *testing.T) {
	p, err := ids.ParsePath("")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())
	assert.False(t, p.IsTimePath())
}

func TestPathPredicates(t *testing.T) {
	assert.True(t, ids.MustParsePath("time").IsTimePath())
	assert.True(t, ids.MustParsePath("coil(i1)/current/time").IsTimePath())
	assert.False(t, ids.MustParsePath("time_slice").IsTimePath())

	parent := ids.MustParsePath("profiles_1d")
	assert.True(t, parent.IsAncestorOf(ids.MustParsePath("profiles_1d(itime)/zeff")))
	assert.False(t, parent.IsAncestorOf(parent))
	assert.False(t, parent.IsAncestorOf(ids.MustParsePath("profiles_2d/zeff")))
	assert.False(t, ids.MustParsePath("profiles_1d/zeff").IsAncestorOf(parent))
}

func TestGoto(t *testing.T) {
	cp := newIDS(t, "3.39.0", "core_profiles")
	p1d := cp.Array("profiles_1d")
	require.NoError(t, p1d.Resize(3, false))
	set(t, p1d.At(1).Struct("grid"), "rho_tor_norm", []float64{0, 0.5, 1})

	zeff := p1d.At(1).Leaf("zeff")
	target, err := ids.MustParsePath("profiles_1d(itime)/grid/rho_tor_norm").Goto(zeff)
	require.NoError(t, err)
	assert.Equal(t, "profiles_1d[1]/grid/rho_tor_norm", target.Path())

	target, err = ids.MustParsePath("profiles_1d(3)/time").Goto(cp)
	require.NoError(t, err)
	assert.Equal(t, "profiles_1d[2]/time", target.Path())

	_, err = ids.MustParsePath("profiles_1d(4)/time").Goto(cp)
	assert.ErrorIs(t, err, ids.ErrCoordinate)

	// Dummy index outside the lineage of the starting node.
	_, err = ids.MustParsePath("profiles_1d(itime)/time").Goto(cp)
	assert.ErrorIs(t, err, ids.ErrCoordinate)

	_, err = ids.MustParsePath("profiles_1d(1:2)/time").Goto(cp)
	assert.ErrorIs(t, err, ids.ErrCoordinate)
}

func TestGotoIndirect(t *testing.T) {
	amns := newIDS(t, "3.39.0", "amns_data")
	require.NoError(t, amns.Array("process").Resize(1, false))
	require.NoError(t, amns.Array("coordinate_system").Resize(2, false))
	proc := amns.Array("process").At(0)
	require.NoError(t, proc.Array("charge_state").Resize(1, false))
	table := proc.Array("charge_state").At(0).Leaf("table_1d")

	p := ids.MustParsePath("coordinate_system(process(i1)/coordinate_index)/coordinate(1)")
	_, err := p.Goto(table)
	assert.ErrorIs(t, err, ids.ErrCoordinate, "unset indirect index")

	set(t, proc, "coordinate_index", 2)
	require.NoError(t, amns.Array("coordinate_system").At(1).Array("coordinate").Resize(1, false))
	target, err := p.Goto(table)
	require.NoError(t, err)
	assert.Equal(t, "coordinate_system[1]/coordinate[0]", target.Path())
}
