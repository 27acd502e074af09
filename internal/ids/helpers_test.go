package ids_test

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"imaspy/internal/dd"
	"imaspy/internal/ids"
)

var (
	storeOnce sync.Once
	store     *dd.Store
)

func testStore() *dd.Store {
	storeOnce.Do(func() {
		store = dd.NewStore(dd.Options{NoStandardLocations: true})
	})
	return store
}

// factory returns a factory for one of the bundled DD versions ("" for latest).
func factory(t *testing.T, version string) *ids.Factory {
	t.Helper()
	f, err := testStore().NewFactory(version)
	require.NoError(t, err)
	return f
}

func newIDS(t *testing.T, version, name string) *ids.Toplevel {
	t.Helper()
	top, err := factory(t, version).New(name)
	require.NoError(t, err)
	return top
}

// minimal returns an empty IDS of the test DD that has a node of every data type.
func minimal(t *testing.T) *ids.Toplevel {
	t.Helper()
	data, err := os.ReadFile("testdata/minimal.xml")
	require.NoError(t, err)
	def, err := dd.Parse(data, "")
	require.NoError(t, err)
	return ids.NewFactory(def).MustNew("minimal")
}

func set(t *testing.T, s *ids.Structure, path string, v any) {
	t.Helper()
	require.NoError(t, s.Set(path, v))
}
