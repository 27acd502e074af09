// Package ascii implements a human readable backend: a directory with one YAML
// document per IDS occurrence, named <ids>[_<occ>].ids.yaml.
package ascii

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"imaspy/internal/backend"
	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

const suffix = ".ids.yaml"

// document is the on-disk layout of one occurrence.
type document struct {
	IDS        string       `yaml:"ids"`
	Occurrence int          `yaml:"occurrence"`
	DDVersion  string       `yaml:"dd_version"`
	Records    []ids.Record `yaml:"records"`
}

// Store is the NodeStore of an ascii entry.
type Store struct {
	dir string
}

// Open opens the entry in directory dir.
func Open(dir string, mode backend.Mode) (*backend.Adapter, error) {
	s := &Store{dir: dir}
	existing, err := s.files()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	switch mode {
	case backend.ModeRead:
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			return nil, fmt.Errorf("%w: %s", backend.ErrNotExist, dir)
		}
	case backend.ModeExclusive:
		if len(existing) > 0 {
			return nil, fmt.Errorf("%w: %s", backend.ErrExists, dir)
		}
	case backend.ModeWrite:
		for _, f := range existing {
			if err := os.Remove(f); err != nil {
				return nil, fmt.Errorf("failed to clear %s: %w", dir, err)
			}
		}
	}
	if mode != backend.ModeRead {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	logging.BackendDebug("opened ascii entry %s (mode %s)", dir, mode)
	return backend.NewAdapter("ascii", s, backend.Capabilities{}), nil
}

func (s *Store) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			out = append(out, filepath.Join(s.dir, e.Name()))
		}
	}
	return out, nil
}

func (s *Store) file(name string, occ int) string {
	return filepath.Join(s.dir, backend.OccurrenceName(name, occ)+suffix)
}

func (s *Store) read(name string, occ int) (*document, error) {
	data, err := os.ReadFile(s.file(name, occ))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%d", backend.ErrNoData, name, occ)
	}
	if err != nil {
		return nil, err
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.file(name, occ), err)
	}
	return &doc, nil
}

// Version implements backend.NodeStore.
func (s *Store) Version(_ context.Context, name string, occ int) (string, error) {
	doc, err := s.read(name, occ)
	if err != nil {
		return "", err
	}
	return doc.DDVersion, nil
}

// Load implements backend.NodeStore.
func (s *Store) Load(_ context.Context, name string, occ int) (*backend.Occurrence, error) {
	doc, err := s.read(name, occ)
	if err != nil {
		return nil, err
	}
	return &backend.Occurrence{DDVersion: doc.DDVersion, Records: doc.Records}, nil
}

// Save implements backend.NodeStore. The file is replaced atomically.
func (s *Store) Save(_ context.Context, name string, occ int, o *backend.Occurrence) error {
	data, err := yaml.Marshal(document{IDS: name, Occurrence: occ, DDVersion: o.DDVersion, Records: o.Records})
	if err != nil {
		return fmt.Errorf("failed to encode %s/%d: %w", name, occ, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.file(name, occ))
}

// Delete implements backend.NodeStore.
func (s *Store) Delete(_ context.Context, name string, occ int) error {
	err := os.Remove(s.file(name, occ))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Occurrences implements backend.NodeStore.
func (s *Store) Occurrences(_ context.Context, name string) ([]int, error) {
	files, err := s.files()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []int
	for _, f := range files {
		n, occ, ok := backend.ParseOccurrenceName(strings.TrimSuffix(filepath.Base(f), suffix))
		if ok && n == name {
			out = append(out, occ)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Close implements backend.NodeStore. With erase all IDS files are removed.
func (s *Store) Close(erase bool) error {
	if !erase {
		return nil
	}
	files, err := s.files()
	if err != nil {
		return nil
	}
	var errs []error
	for _, f := range files {
		errs = append(errs, os.Remove(f))
	}
	return errors.Join(errs...)
}
