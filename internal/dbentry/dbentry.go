// Package dbentry opens data entries by URI and converts IDSs between the DD version
// of the entry and the version the data was stored with.
package dbentry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"imaspy/internal/backend"
	"imaspy/internal/backend/ascii"
	"imaspy/internal/backend/memory"
	"imaspy/internal/backend/sqlite"
	"imaspy/internal/config"
	"imaspy/internal/convert"
	"imaspy/internal/dd"
	"imaspy/internal/ids"
	"imaspy/internal/logging"
	"imaspy/internal/netcdf"
)

// ErrClosed is returned by every operation on a closed entry.
var ErrClosed = backend.ErrClosed

// Options configures Open.
type Options struct {
	// DDVersion of the entry. Empty selects the configured default or the latest.
	DDVersion string
	// XMLPath is a DD XML file to use instead of a released version.
	XMLPath string
	// Store provides DD definitions. Nil builds one from Config.
	Store *dd.Store
	// Config is the imaspy configuration. Nil loads the default config file.
	Config *config.Config
}

// GetOptions configures Get and GetSlice.
type GetOptions struct {
	Occurrence int
	Lazy       bool
	// AutoConvert converts data stored with another DD version to the version of
	// the entry (or TargetVersion). Nil means true.
	AutoConvert *bool
	// TargetVersion overrides the DD version data is converted to.
	TargetVersion string
}

func (o GetOptions) autoConvert() bool { return o.AutoConvert == nil || *o.AutoConvert }

// Bool returns a pointer to v, for GetOptions.AutoConvert.
func Bool(v bool) *bool { return &v }

// Entry is an open data entry.
type Entry struct {
	uri      URI
	mode     backend.Mode
	impl     backend.Impl
	factory  *ids.Factory
	store    *dd.Store
	validate bool

	mu     sync.Mutex
	closed bool
}

// Open opens the entry at uri.
func Open(ctx context.Context, uri string, mode backend.Mode, opts Options) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.LoadDefault(); err != nil {
			return nil, err
		}
	}
	store := opts.Store
	if store == nil {
		store = dd.NewStoreFromConfig(cfg)
	}
	var f *ids.Factory
	if opts.XMLPath != "" {
		f, err = store.NewFactoryFromXML(opts.XMLPath)
	} else {
		f, err = store.NewFactory(opts.DDVersion)
	}
	if err != nil {
		return nil, err
	}

	impl, err := openBackend(u, mode, f.Version(), cfg)
	if err != nil {
		return nil, err
	}
	logging.Entry("opened %s (mode %s, DD %s)", u, mode, f.Version())
	return &Entry{
		uri:      u,
		mode:     mode,
		impl:     impl,
		factory:  f,
		store:    store,
		validate: cfg.Validation.ValidateOnPut,
	}, nil
}

// OpenLegacy opens the entry of a (backend, database, pulse, run) tuple.
func OpenLegacy(ctx context.Context, backendName, db string, pulse, run int, mode backend.Mode, opts Options) (*Entry, error) {
	return Open(ctx, LegacyURI(backendName, db, pulse, run), mode, opts)
}

func openBackend(u URI, mode backend.Mode, version string, cfg *config.Config) (backend.Impl, error) {
	switch u.Backend {
	case "memory":
		return memory.Open(u.Path, mode)
	case "ascii":
		return ascii.Open(u.Path, mode)
	case "sqlite":
		opts := sqlite.Options{
			Driver:      cfg.Backend.SQLiteDriver,
			BusyTimeout: time.Duration(cfg.Backend.SQLiteBusyTimeoutMS) * time.Millisecond,
		}
		if d, ok := u.Options["driver"]; ok {
			opts.Driver = d
		}
		return sqlite.Open(u.Path, mode, opts)
	case "netcdf":
		level := cfg.Backend.NetCDFCompression
		if s, ok := u.Options["compression"]; ok {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 || n > 9 {
				return nil, fmt.Errorf("invalid compression %q in %s", s, u)
			}
			level = n
		}
		return netcdf.Open(u.Path, mode, version, level)
	}
	return nil, fmt.Errorf("unsupported backend %q", u.Backend)
}

// URI returns the parsed URI of the entry.
func (e *Entry) URI() URI { return e.uri }

// Mode returns the mode the entry was opened with.
func (e *Entry) Mode() backend.Mode { return e.mode }

// Factory returns the IDS factory of the entry's DD version.
func (e *Entry) Factory() *ids.Factory { return e.factory }

// DDVersion returns the DD version of the entry.
func (e *Entry) DDVersion() string { return e.factory.Version() }

// Backend returns the name of the storage backend.
func (e *Entry) Backend() string { return e.impl.Name() }

func (e *Entry) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// Close closes the entry. Closing twice is a no-op.
func (e *Entry) Close() error { return e.close(false) }

// Erase closes the entry and removes its data.
func (e *Entry) Erase() error { return e.close(true) }

func (e *Entry) close(erase bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	logging.EntryDebug("closing %s (erase=%v)", e.uri, erase)
	return e.impl.Close(erase)
}

// Get reads an IDS occurrence.
func (e *Entry) Get(ctx context.Context, name string, opts GetOptions) (*ids.Toplevel, error) {
	return e.get(ctx, name, opts, nil)
}

// GetSlice reads the data of an IDS occurrence at time t.
func (e *Entry) GetSlice(ctx context.Context, name string, t float64, method backend.Interp, opts GetOptions) (*ids.Toplevel, error) {
	return e.get(ctx, name, opts, &backend.SliceRequest{Time: t, Method: method})
}

func (e *Entry) get(ctx context.Context, name string, opts GetOptions, slice *backend.SliceRequest) (*ids.Toplevel, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	timer := logging.StartTimer(logging.CategoryEntry, "get "+name)
	defer timer.StopWithThreshold(time.Second)

	target := e.factory
	if opts.TargetVersion != "" && opts.TargetVersion != e.factory.Version() {
		f, err := e.store.NewFactory(opts.TargetVersion)
		if err != nil {
			return nil, err
		}
		target = f
	}
	stored, err := e.impl.ReadDDVersion(ctx, name, opts.Occurrence)
	if err != nil {
		return nil, err
	}
	req := backend.GetRequest{IDS: name, Occurrence: opts.Occurrence, Lazy: opts.Lazy, Slice: slice}

	if stored == "" || stored == target.Version() {
		return e.impl.Get(ctx, req, target)
	}
	storedF, err := e.store.NewFactory(stored)
	if err != nil {
		return nil, fmt.Errorf("%s/%d was stored with DD %s: %w", name, opts.Occurrence, stored, err)
	}
	if !opts.autoConvert() {
		logging.EntryDebug("returning %s/%d in its stored DD version %s", name, opts.Occurrence, stored)
		return e.impl.Get(ctx, req, storedF)
	}
	if opts.Lazy && slice == nil {
		// translate paths of the requested version to the stored ones on access
		pm, err := convert.PathMapFor(name, target, storedF)
		if err != nil {
			return nil, err
		}
		req.Translate = pm.TranslatePath
		logging.EntryDebug("lazy loading %s/%d from DD %s as DD %s", name, opts.Occurrence, stored, target.Version())
		return e.impl.Get(ctx, req, target)
	}
	req.Lazy = false
	t, err := e.impl.Get(ctx, req, storedF)
	if err != nil {
		return nil, err
	}
	logging.Entry("converting %s/%d from DD %s to DD %s", name, opts.Occurrence, stored, target.Version())
	return convert.Convert(t, target, convert.Options{})
}

// Put stores t as occurrence occ, replacing stored data. IDSs of another DD version
// are converted to the entry's version first.
func (e *Entry) Put(ctx context.Context, t *ids.Toplevel, occ int) error {
	return e.put(ctx, t, occ, false)
}

// PutSlice appends the time slice(s) in t to occurrence occ.
func (e *Entry) PutSlice(ctx context.Context, t *ids.Toplevel, occ int) error {
	return e.put(ctx, t, occ, true)
}

func (e *Entry) put(ctx context.Context, t *ids.Toplevel, occ int, isSlice bool) error {
	if err := e.check(); err != nil {
		return err
	}
	if t.IsLazy() {
		return fmt.Errorf("%w: cannot put lazy loaded %s", ids.ErrReadOnly, t.Name())
	}
	if occ < 0 {
		return fmt.Errorf("invalid occurrence %d", occ)
	}
	if t.Version() != e.factory.Version() {
		logging.Entry("converting %s from DD %s to DD %s before put", t.Name(), t.Version(), e.factory.Version())
		converted, err := convert.Convert(t, e.factory, convert.Options{})
		if err != nil {
			return err
		}
		t = converted
	}
	if e.validate {
		if err := ids.Validate(t); err != nil {
			return err
		}
	}
	return e.impl.Put(ctx, t, occ, isSlice)
}

// DeleteData removes an occurrence.
func (e *Entry) DeleteData(ctx context.Context, name string, occ int) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.impl.DeleteData(ctx, name, occ)
}

// ListOccurrences returns the filled occurrences of IDS name, sorted.
func (e *Entry) ListOccurrences(ctx context.Context, name string) ([]int, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.impl.ListOccurrences(ctx, name)
}

// ListOccurrencesWithPath returns the filled occurrences of IDS name and, for each,
// the value of the node at path.
func (e *Entry) ListOccurrencesWithPath(ctx context.Context, name, path string) ([]int, []any, error) {
	occs, err := e.ListOccurrences(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	values := make([]any, 0, len(occs))
	for _, occ := range occs {
		t, err := e.Get(ctx, name, GetOptions{Occurrence: occ, Lazy: e.impl.SupportsLazy()})
		if err != nil {
			return nil, nil, err
		}
		n, err := t.Lookup(path)
		if err != nil {
			return nil, nil, err
		}
		var v any
		switch x := n.(type) {
		case *ids.Primitive:
			if err := x.Load(); err != nil {
				return nil, nil, err
			}
			v = ids.CloneValue(x.Value())
		case *ids.StructArray:
			v = x.Len()
		default:
			return nil, nil, fmt.Errorf("%w: %s is a structure", ids.ErrType, path)
		}
		values = append(values, v)
	}
	return occs, values, nil
}

// ListAll returns the filled occurrences of every IDS of the entry's DD version.
func (e *Entry) ListAll(ctx context.Context) (map[string][]int, error) {
	out := make(map[string][]int)
	for _, name := range e.factory.Names() {
		occs, err := e.ListOccurrences(ctx, name)
		if err != nil && !errors.Is(err, backend.ErrNoData) {
			return nil, err
		}
		if len(occs) > 0 {
			out[name] = occs
		}
	}
	return out, nil
}
