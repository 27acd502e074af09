package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// AccessLayerLanguage is written to ids_properties/version_put/access_layer_language.
var AccessLayerLanguage = "imaspy (go)"

// AccessLayerVersion is written to ids_properties/version_put/access_layer.
var AccessLayerVersion = "dev"

// Capabilities lists the optional features of a backend.
type Capabilities struct {
	Lazy     bool // lazy loading (requires a LazyStore)
	GetSlice bool
	PutSlice bool
}

// Adapter implements Impl on top of a NodeStore.
type Adapter struct {
	name   string
	store  NodeStore
	caps   Capabilities
	closed atomic.Bool

	// serializes put_slice read-modify-write cycles
	mu sync.Mutex
}

// NewAdapter wraps store as a backend called name.
func NewAdapter(name string, store NodeStore, caps Capabilities) *Adapter {
	if _, ok := store.(LazyStore); !ok {
		caps.Lazy = false
	}
	return &Adapter{name: name, store: store, caps: caps}
}

// Name implements Impl.
func (a *Adapter) Name() string { return a.name }

// SupportsLazy implements Impl.
func (a *Adapter) SupportsLazy() bool { return a.caps.Lazy }

// Capabilities returns the supported optional features.
func (a *Adapter) Capabilities() Capabilities { return a.caps }

// Close implements Impl. Closing twice is a no-op.
func (a *Adapter) Close(erase bool) error {
	if a.closed.Swap(true) {
		return nil
	}
	logging.BackendDebug("closing %s backend (erase=%v)", a.name, erase)
	return a.store.Close(erase)
}

func (a *Adapter) check() error {
	if a.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ReadDDVersion implements Impl.
func (a *Adapter) ReadDDVersion(ctx context.Context, name string, occ int) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	return a.store.Version(ctx, name, occ)
}

// Get implements Impl.
func (a *Adapter) Get(ctx context.Context, req GetRequest, f *ids.Factory) (*ids.Toplevel, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if req.Slice != nil && !a.caps.GetSlice {
		return nil, fmt.Errorf("%w: get_slice with the %s backend", ErrUnsupported, a.name)
	}
	if req.Lazy && !a.caps.Lazy {
		return nil, fmt.Errorf("%w: lazy loading with the %s backend", ErrUnsupported, a.name)
	}
	if req.Lazy && req.Slice == nil {
		return a.getLazy(ctx, req, f)
	}

	o, err := a.store.Load(ctx, req.IDS, req.Occurrence)
	if err != nil {
		return nil, err
	}
	t, err := f.New(req.IDS)
	if err != nil {
		return nil, err
	}
	var loader ids.Loader = ids.NewRecordSet(o.Records)
	if req.Translate != nil {
		loader = &nodeLoader{ctx: ctx, records: NewMemoryRecords(o.Records), translate: req.Translate, closed: &a.closed}
	}
	if err := ids.Fill(t, loader); err != nil {
		return nil, fmt.Errorf("read %s/%d: %w", req.IDS, req.Occurrence, err)
	}
	if err := checkStoredTimeMode(t, req.Occurrence); err != nil {
		return nil, err
	}
	if t.TimeMode() == ids.TimeModeIndependent {
		ClearDynamic(&t.Structure)
	}
	if req.Slice != nil {
		return Slice(t, req.Slice.Time, req.Slice.Method)
	}
	return t, nil
}

func (a *Adapter) getLazy(ctx context.Context, req GetRequest, f *ids.Factory) (*ids.Toplevel, error) {
	if _, err := a.store.Version(ctx, req.IDS, req.Occurrence); err != nil {
		return nil, err
	}
	recs, err := a.store.(LazyStore).Records(ctx, req.IDS, req.Occurrence)
	if err != nil {
		return nil, err
	}
	loader := &nodeLoader{ctx: ctx, records: recs, translate: req.Translate, closed: &a.closed}
	t, err := f.NewLazy(req.IDS, loader)
	if err != nil {
		return nil, err
	}
	if err := checkStoredTimeMode(t, req.Occurrence); err != nil {
		return nil, err
	}
	return t, nil
}

func checkStoredTimeMode(t *ids.Toplevel, occ int) error {
	switch mode := t.TimeMode(); mode {
	case ids.TimeModeHeterogeneous, ids.TimeModeHomogeneous, ids.TimeModeIndependent:
		return nil
	default:
		return fmt.Errorf("%w: stored %s/%d has homogeneous_time %d", ErrTimeMode, t.Name(), occ, mode)
	}
}

// Put implements Impl.
func (a *Adapter) Put(ctx context.Context, t *ids.Toplevel, occ int, isSlice bool) error {
	if err := a.check(); err != nil {
		return err
	}
	if t.IsLazy() {
		return fmt.Errorf("%w: cannot put lazy loaded %s", ids.ErrReadOnly, t.Name())
	}
	mode, err := PrepareForPut(t, occ)
	if err != nil {
		return err
	}
	if isSlice {
		if !a.caps.PutSlice {
			return fmt.Errorf("%w: put_slice with the %s backend", ErrUnsupported, a.name)
		}
		if mode == ids.TimeModeIndependent {
			return fmt.Errorf("%w: cannot use put_slice with time mode %d (independent)", ErrTimeMode, mode)
		}
		return a.putSlice(ctx, t, occ, mode)
	}

	src := t
	if mode == ids.TimeModeIndependent {
		src = ids.Copy(t)
		ClearDynamic(&src.Structure)
	}
	logging.BackendDebug("%s: put %s/%d", a.name, t.Name(), occ)
	return a.store.Save(ctx, t.Name(), occ, &Occurrence{DDVersion: t.Version(), Records: ids.Flatten(src)})
}

func (a *Adapter) putSlice(ctx context.Context, t *ids.Toplevel, occ int, mode int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, err := a.store.Load(ctx, t.Name(), occ)
	if errors.Is(err, ErrNoData) {
		logging.BackendDebug("%s: put_slice on empty %s/%d acts as put", a.name, t.Name(), occ)
		return a.store.Save(ctx, t.Name(), occ, &Occurrence{DDVersion: t.Version(), Records: ids.Flatten(t)})
	}
	if err != nil {
		return err
	}
	if o.DDVersion != t.Version() {
		return fmt.Errorf("cannot append DD %s slice to %s/%d stored with DD %s", t.Version(), t.Name(), occ, o.DDVersion)
	}
	stored := ids.Blank(t)
	if err := ids.Fill(stored, ids.NewRecordSet(o.Records)); err != nil {
		return err
	}
	if sm := stored.TimeMode(); sm != mode {
		return fmt.Errorf("%w: cannot change homogeneous_time from %d to %d", ErrTimeMode, sm, mode)
	}
	if err := AppendSlice(stored, t); err != nil {
		return fmt.Errorf("put_slice %s/%d: %w", t.Name(), occ, err)
	}
	return a.store.Save(ctx, t.Name(), occ, &Occurrence{DDVersion: t.Version(), Records: ids.Flatten(stored)})
}

// PrepareForPut checks the time mode of t and fills ids_properties/version_put. A
// constant IDS is switched to the independent time mode.
func PrepareForPut(t *ids.Toplevel, occ int) (int32, error) {
	mode := t.TimeMode()
	switch mode {
	case ids.TimeModeHeterogeneous, ids.TimeModeHomogeneous, ids.TimeModeIndependent:
	default:
		return 0, fmt.Errorf("%w: ids_properties/homogeneous_time of %s is not set or invalid", ErrTimeMode, t.Name())
	}
	if t.Metadata().Type == ids.IDSTypeConstant && mode != ids.TimeModeIndependent {
		logging.BackendWarn("ids_properties/homogeneous_time has been set to 2 for the constant IDS %s/%d", t.Name(), occ)
		mode = ids.TimeModeIndependent
		if err := t.SetTimeMode(mode); err != nil {
			return 0, err
		}
	}
	// version_put exists since DD 3.22
	for path, v := range map[string]string{
		"ids_properties/version_put/data_dictionary":       t.Version(),
		"ids_properties/version_put/access_layer":          AccessLayerVersion,
		"ids_properties/version_put/access_layer_language": AccessLayerLanguage,
	} {
		if err := t.Set(path, v); err != nil && !errors.Is(err, ids.ErrUnknownField) {
			return 0, err
		}
	}
	return mode, nil
}

// ClearDynamic empties every dynamic node below s.
func ClearDynamic(s *ids.Structure) {
	for _, c := range s.NonEmpty() {
		m := c.Metadata()
		switch n := c.(type) {
		case *ids.Structure:
			ClearDynamic(n)
		case *ids.StructArray:
			if m.Type == ids.IDSTypeDynamic {
				_ = n.Resize(0, false)
				continue
			}
			for _, e := range n.Elements() {
				ClearDynamic(e)
			}
		case *ids.Primitive:
			if m.Type == ids.IDSTypeDynamic {
				_ = n.Clear()
			}
		}
	}
}

// DeleteData implements Impl.
func (a *Adapter) DeleteData(ctx context.Context, name string, occ int) error {
	if err := a.check(); err != nil {
		return err
	}
	return a.store.Delete(ctx, name, occ)
}

// ListOccurrences implements Impl.
func (a *Adapter) ListOccurrences(ctx context.Context, name string) ([]int, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.store.Occurrences(ctx, name)
}

// ParseOccurrenceName is the inverse of OccurrenceName.
func ParseOccurrenceName(s string) (name string, occ int, ok bool) {
	if i := strings.LastIndexByte(s, '_'); i > 0 {
		n, err := strconv.Atoi(s[i+1:])
		if err == nil && n > 0 && strconv.Itoa(n) == s[i+1:] {
			return s[:i], n, true
		}
	}
	return s, 0, s != ""
}
