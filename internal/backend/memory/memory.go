// Package memory implements an in-process backend. Entries opened with the same
// path share their data until closed with erase.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"imaspy/internal/backend"
)

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Store)
)

type key struct {
	name string
	occ  int
}

// Store is the NodeStore of one in-memory entry.
type Store struct {
	path string

	mu   sync.RWMutex
	data map[key]*backend.Occurrence
}

// Open opens (or creates) the in-memory entry for path.
func Open(path string, mode backend.Mode) (*backend.Adapter, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	s, exists := registry[path]
	switch mode {
	case backend.ModeRead:
		if !exists {
			return nil, fmt.Errorf("%w: memory entry %q", backend.ErrNotExist, path)
		}
	case backend.ModeExclusive:
		if exists {
			return nil, fmt.Errorf("%w: memory entry %q", backend.ErrExists, path)
		}
	case backend.ModeWrite:
		exists = false
	}
	if !exists {
		s = &Store{path: path, data: make(map[key]*backend.Occurrence)}
		registry[path] = s
	}
	return backend.NewAdapter("memory", s, backend.Capabilities{Lazy: true, GetSlice: true, PutSlice: true}), nil
}

func (s *Store) get(name string, occ int) (*backend.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data[key{name, occ}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", backend.ErrNoData, name, occ)
	}
	return o, nil
}

// Version implements backend.NodeStore.
func (s *Store) Version(_ context.Context, name string, occ int) (string, error) {
	o, err := s.get(name, occ)
	if err != nil {
		return "", err
	}
	return o.DDVersion, nil
}

// Load implements backend.NodeStore.
func (s *Store) Load(_ context.Context, name string, occ int) (*backend.Occurrence, error) {
	return s.get(name, occ)
}

// Records implements backend.LazyStore.
func (s *Store) Records(_ context.Context, name string, occ int) (backend.Records, error) {
	o, err := s.get(name, occ)
	if err != nil {
		return nil, err
	}
	return backend.NewMemoryRecords(o.Records), nil
}

// Save implements backend.NodeStore.
func (s *Store) Save(_ context.Context, name string, occ int, o *backend.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key{name, occ}] = &backend.Occurrence{DDVersion: o.DDVersion, Records: slices.Clone(o.Records)}
	return nil
}

// Delete implements backend.NodeStore.
func (s *Store) Delete(_ context.Context, name string, occ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key{name, occ})
	return nil
}

// Occurrences implements backend.NodeStore.
func (s *Store) Occurrences(_ context.Context, name string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for k := range s.data {
		if k.name == name {
			out = append(out, k.occ)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Close implements backend.NodeStore. With erase the entry is dropped.
func (s *Store) Close(erase bool) error {
	if !erase {
		return nil
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry[s.path] == s {
		delete(registry, s.path)
	}
	return nil
}
