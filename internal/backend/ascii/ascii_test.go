package ascii_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/backend"
	"imaspy/internal/backend/ascii"
	"imaspy/internal/backend/backendtest"
)

func TestBackend(t *testing.T) {
	base := t.TempDir()
	backendtest.Run(t, func(t *testing.T, mode backend.Mode) backend.Impl {
		t.Helper()
		b, err := ascii.Open(filepath.Join(base, t.Name()), mode)
		require.NoError(t, err)
		return b
	})
}

func TestFileLayout(t *testing.T) {
	dir := t.TempDir()
	b, err := ascii.Open(dir, backend.ModeWrite)
	require.NoError(t, err)
	f := backendtest.Factory(t, "3.39.0")
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, backendtest.CoreProfiles(t, f), 0, false))
	require.NoError(t, b.Put(ctx, backendtest.PulseSchedule(t, f), 2, false))
	require.NoError(t, b.Close(false))

	assert.FileExists(t, filepath.Join(dir, "core_profiles.ids.yaml"))
	assert.FileExists(t, filepath.Join(dir, "pulse_schedule_2.ids.yaml"))
	data, err := os.ReadFile(filepath.Join(dir, "pulse_schedule_2.ids.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "dd_version: 3.39.0")
	assert.Contains(t, string(data), "path: flux_control/i_plasma/reference")
}

func TestModes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "entry")
	_, err := ascii.Open(dir, backend.ModeRead)
	assert.ErrorIs(t, err, backend.ErrNotExist)

	b, err := ascii.Open(dir, backend.ModeExclusive)
	require.NoError(t, err)
	f := backendtest.Factory(t, "3.39.0")
	require.NoError(t, b.Put(context.Background(), backendtest.CoreProfiles(t, f), 0, false))
	require.NoError(t, b.Close(false))

	_, err = ascii.Open(dir, backend.ModeExclusive)
	assert.ErrorIs(t, err, backend.ErrExists)

	w, err := ascii.Open(dir, backend.ModeWrite)
	require.NoError(t, err)
	occs, err := w.ListOccurrences(context.Background(), "core_profiles")
	require.NoError(t, err)
	assert.Empty(t, occs)
	require.NoError(t, w.Close(true))
}

func TestUnsupported(t *testing.T) {
	b, err := ascii.Open(t.TempDir(), backend.ModeWrite)
	require.NoError(t, err)
	defer b.Close(false)
	f := backendtest.Factory(t, "3.39.0")
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, backendtest.CoreProfiles(t, f), 0, false))

	assert.False(t, b.SupportsLazy())
	_, err = b.Get(ctx, backend.GetRequest{IDS: "core_profiles", Lazy: true}, f)
	assert.ErrorIs(t, err, backend.ErrUnsupported)
	_, err = b.Get(ctx, backend.GetRequest{IDS: "core_profiles", Slice: &backend.SliceRequest{Time: 0.1, Method: backend.Closest}}, f)
	assert.ErrorIs(t, err, backend.ErrUnsupported)
	assert.ErrorIs(t, b.Put(ctx, backendtest.CoreProfiles(t, f), 0, true), backend.ErrUnsupported)
}
