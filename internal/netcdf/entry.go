package netcdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"imaspy/internal/backend"
	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// Entry is a data entry stored in one IMAS netCDF file. Every put rewrites the file.
// Lazy loading, put_slice and deleting data are not supported.
type Entry struct {
	path string
	enc  Encoder

	mu     sync.Mutex
	ds     *Dataset
	closed bool
}

var _ backend.Impl = (*Entry)(nil)

// Open opens the file at path. New files are created for DD version ddVersion and
// compressed with level.
func Open(path string, mode backend.Mode, ddVersion string, level int) (*Entry, error) {
	e := &Entry{path: path, enc: Encoder{Level: level}}
	_, err := os.Stat(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	switch mode {
	case backend.ModeRead:
		if !exists {
			return nil, fmt.Errorf("%w: %s", backend.ErrNotExist, path)
		}
	case backend.ModeExclusive:
		if exists {
			return nil, fmt.Errorf("%w: %s", backend.ErrExists, path)
		}
	case backend.ModeWrite:
		exists = false
	}
	if exists {
		if e.ds, err = ReadFile(path); err != nil {
			return nil, err
		}
		logging.Get(logging.CategoryNetCDF).Debug("opened %s (DD %s)", path, e.ds.DDVersion())
		return e, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	e.ds = NewDataset(ddVersion)
	if err := e.enc.WriteFile(path, e.ds); err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryNetCDF).Debug("created %s (DD %s)", path, ddVersion)
	return e, nil
}

// Name implements backend.Impl.
func (e *Entry) Name() string { return "netcdf" }

// Path returns the file path.
func (e *Entry) Path() string { return e.path }

// DDVersion returns the DD version of the file.
func (e *Entry) DDVersion() string { return e.ds.DDVersion() }

// SupportsLazy implements backend.Impl.
func (e *Entry) SupportsLazy() bool { return false }

// Close implements backend.Impl. With erase the file is removed.
func (e *Entry) Close(erase bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if erase {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (e *Entry) group(name string, occ int) (*Group, error) {
	if e.closed {
		return nil, backend.ErrClosed
	}
	if g := e.ds.Root.Group(name); g != nil {
		if og := g.Group(strconv.Itoa(occ)); og != nil {
			return og, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%d", backend.ErrNoData, name, occ)
}

// ReadDDVersion implements backend.Impl.
func (e *Entry) ReadDDVersion(_ context.Context, name string, occ int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.group(name, occ); err != nil {
		return "", err
	}
	return e.ds.DDVersion(), nil
}

// Get implements backend.Impl. Sliced gets read the full IDS first.
func (e *Entry) Get(_ context.Context, req backend.GetRequest, f *ids.Factory) (*ids.Toplevel, error) {
	if req.Lazy || req.Translate != nil {
		return nil, fmt.Errorf("%w: lazy loading with the netcdf backend", backend.ErrUnsupported)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	g, err := e.group(req.IDS, req.Occurrence)
	if err != nil {
		return nil, err
	}
	if f.Version() != e.ds.DDVersion() {
		return nil, fmt.Errorf("cannot read %s (DD %s) with DD %s", e.path, e.ds.DDVersion(), f.Version())
	}
	t, err := f.New(req.IDS)
	if err != nil {
		return nil, err
	}
	if err := NC2IDS(g, t); err != nil {
		return nil, fmt.Errorf("read %s/%d: %w", req.IDS, req.Occurrence, err)
	}
	if t.TimeMode() == ids.TimeModeIndependent {
		backend.ClearDynamic(&t.Structure)
	}
	if req.Slice != nil {
		return backend.Slice(t, req.Slice.Time, req.Slice.Method)
	}
	return t, nil
}

// Put implements backend.Impl. An occurrence can only be written once.
func (e *Entry) Put(_ context.Context, t *ids.Toplevel, occ int, isSlice bool) error {
	if isSlice {
		return fmt.Errorf("%w: put_slice with the netcdf backend", backend.ErrUnsupported)
	}
	if t.IsLazy() {
		return fmt.Errorf("%w: cannot put lazy loaded %s", ids.ErrReadOnly, t.Name())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return backend.ErrClosed
	}
	if t.Version() != e.ds.DDVersion() {
		return fmt.Errorf("cannot store DD %s IDS %s in %s (DD %s)", t.Version(), t.Name(), e.path, e.ds.DDVersion())
	}
	mode, err := backend.PrepareForPut(t, occ)
	if err != nil {
		return err
	}
	src := t
	if mode == ids.TimeModeIndependent {
		src = ids.Copy(t)
		backend.ClearDynamic(&src.Structure)
	}

	ig := e.ds.Root.Group(t.Name())
	if ig == nil {
		if ig, err = e.ds.Root.CreateGroup(t.Name()); err != nil {
			return err
		}
	}
	og, err := ig.CreateGroup(strconv.Itoa(occ))
	if err != nil {
		return fmt.Errorf("%s/%d already exists in %s, netCDF entries cannot be overwritten", t.Name(), occ, e.path)
	}
	if err := IDS2NC(src, og); err != nil {
		ig.RemoveGroup(og.Name)
		return err
	}
	if err := e.enc.WriteFile(e.path, e.ds); err != nil {
		ig.RemoveGroup(og.Name)
		return err
	}
	logging.Get(logging.CategoryNetCDF).Debug("put %s/%d to %s", t.Name(), occ, e.path)
	return nil
}

// DeleteData implements backend.Impl.
func (e *Entry) DeleteData(context.Context, string, int) error {
	return fmt.Errorf("%w: deleting data with the netcdf backend", backend.ErrUnsupported)
}

// ListOccurrences implements backend.Impl.
func (e *Entry) ListOccurrences(_ context.Context, name string) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, backend.ErrClosed
	}
	g := e.ds.Root.Group(name)
	if g == nil {
		return nil, nil
	}
	var out []int
	for _, og := range g.Groups {
		if n, err := strconv.Atoi(og.Name); err == nil {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out, nil
}

// IDSNames returns the names of the IDSs stored in the file.
func (e *Entry) IDSNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.ds.Root.Groups))
	for _, g := range e.ds.Root.Groups {
		names = append(names, g.Name)
	}
	return names
}
