package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/backend"
	"imaspy/internal/backend/backendtest"
	"imaspy/internal/backend/memory"
)

func opener(t *testing.T, mode backend.Mode) backend.Impl {
	t.Helper()
	b, err := memory.Open(t.Name(), mode)
	require.NoError(t, err)
	return b
}

func TestBackend(t *testing.T) {
	backendtest.Run(t, opener)
	backendtest.RunLazy(t, opener)
	backendtest.RunSlices(t, opener)
}

func TestModes(t *testing.T) {
	_, err := memory.Open("memory-modes", backend.ModeRead)
	assert.ErrorIs(t, err, backend.ErrNotExist)

	b, err := memory.Open("memory-modes", backend.ModeExclusive)
	require.NoError(t, err)
	f := backendtest.Factory(t, "3.39.0")
	require.NoError(t, b.Put(context.Background(), backendtest.CoreProfiles(t, f), 0, false))

	_, err = memory.Open("memory-modes", backend.ModeExclusive)
	assert.ErrorIs(t, err, backend.ErrExists)

	a, err := memory.Open("memory-modes", backend.ModeAppend)
	require.NoError(t, err)
	occs, err := a.ListOccurrences(context.Background(), "core_profiles")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, occs)

	w, err := memory.Open("memory-modes", backend.ModeWrite)
	require.NoError(t, err)
	occs, err = w.ListOccurrences(context.Background(), "core_profiles")
	require.NoError(t, err)
	assert.Empty(t, occs)

	require.NoError(t, w.Close(true))
	_, err = memory.Open("memory-modes", backend.ModeRead)
	assert.ErrorIs(t, err, backend.ErrNotExist)
}

func TestCapabilities(t *testing.T) {
	b, err := memory.Open(t.Name(), backend.ModeWrite)
	require.NoError(t, err)
	defer b.Close(true)
	assert.Equal(t, "memory", b.Name())
	assert.True(t, b.SupportsLazy())
	assert.Equal(t, backend.Capabilities{Lazy: true, GetSlice: true, PutSlice: true}, b.Capabilities())
}
