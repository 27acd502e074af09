package backend

import (
	"context"
	"fmt"
	"sync/atomic"

	"imaspy/internal/ids"
)

// Occurrence is the stored content of one IDS occurrence.
type Occurrence struct {
	DDVersion string
	Records   []ids.Record
}

// NodeStore is the low-level storage model of the memory, ascii and sqlite
// backends: per IDS occurrence, a set of records keyed by runtime path.
type NodeStore interface {
	// Version returns the stored DD version, ErrNoData when the occurrence is empty.
	Version(ctx context.Context, name string, occ int) (string, error)
	// Load returns all records of an occurrence, ErrNoData when it is empty.
	Load(ctx context.Context, name string, occ int) (*Occurrence, error)
	// Save replaces an occurrence.
	Save(ctx context.Context, name string, occ int, o *Occurrence) error
	Delete(ctx context.Context, name string, occ int) error
	Occurrences(ctx context.Context, name string) ([]int, error)
	Close(erase bool) error
}

// Records reads single stored nodes by runtime path.
type Records interface {
	// Size returns the length of a stored array of structures, 0 when absent.
	Size(ctx context.Context, path string) (int, error)
	// Value returns a stored leaf value, nil when absent.
	Value(ctx context.Context, path string) (*ids.EncodedValue, error)
}

// LazyStore is a NodeStore that can read single nodes on demand.
type LazyStore interface {
	NodeStore
	Records(ctx context.Context, name string, occ int) (Records, error)
}

// MemoryRecords serves Records from a record slice.
type MemoryRecords ids.RecordSet

// NewMemoryRecords indexes records by path.
func NewMemoryRecords(records []ids.Record) MemoryRecords {
	return MemoryRecords(ids.NewRecordSet(records))
}

// Size implements Records.
func (m MemoryRecords) Size(_ context.Context, path string) (int, error) {
	return m[path].Size, nil
}

// Value implements Records.
func (m MemoryRecords) Value(_ context.Context, path string) (*ids.EncodedValue, error) {
	return m[path].Value, nil
}

// nodeLoader adapts Records to ids.Loader. Paths of the lazy IDS are translated to
// stored paths when the IDS uses a different DD version than the stored data.
type nodeLoader struct {
	ctx       context.Context
	records   Records
	translate func(string) (string, bool)
	closed    *atomic.Bool
}

func (l *nodeLoader) path(n ids.Node) (string, bool) {
	if l.translate == nil {
		return n.Path(), true
	}
	return l.translate(n.Path())
}

// LoadSize implements ids.Loader.
func (l *nodeLoader) LoadSize(a *ids.StructArray) (int, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	p, ok := l.path(a)
	if !ok {
		return 0, nil
	}
	return l.records.Size(l.ctx, p)
}

// LoadValue implements ids.Loader.
func (l *nodeLoader) LoadValue(prim *ids.Primitive) (any, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	p, ok := l.path(prim)
	if !ok {
		return nil, nil
	}
	ev, err := l.records.Value(l.ctx, p)
	if err != nil || ev == nil {
		return nil, err
	}
	v, err := ev.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return v, nil
}
