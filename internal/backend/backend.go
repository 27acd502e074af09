// Package backend defines the storage contract of data entries and the logic shared
// by all storage backends: full and sliced gets, puts, and put_slice appends.
package backend

import (
	"context"
	"errors"
	"fmt"

	"imaspy/internal/ids"
)

var (
	// ErrClosed is returned by every operation on a closed backend, including lazy
	// loads of IDSs obtained from it.
	ErrClosed = errors.New("data entry is closed")
	// ErrNoData is returned when an IDS occurrence holds no data.
	ErrNoData = errors.New("IDS occurrence is empty")
	// ErrExists is returned when mode "x" finds an existing entry.
	ErrExists = errors.New("data entry already exists")
	// ErrNotExist is returned when mode "r" finds no entry.
	ErrNotExist = errors.New("data entry does not exist")
	// ErrUnsupported is returned for operations a backend does not implement.
	ErrUnsupported = errors.New("operation not supported by backend")
	// ErrTimeMode is returned for puts with an invalid or changed time mode.
	ErrTimeMode = errors.New("invalid time mode")
)

// Mode is the mode a data entry is opened with.
type Mode byte

const (
	ModeRead      Mode = 'r' // open an existing entry
	ModeWrite     Mode = 'w' // create a new entry, overwriting an existing one
	ModeAppend    Mode = 'a' // open an existing entry or create a new one
	ModeExclusive Mode = 'x' // create a new entry, failing when it exists
)

// ParseMode parses "r", "w", "a" or "x".
func ParseMode(s string) (Mode, error) {
	if len(s) == 1 {
		switch m := Mode(s[0]); m {
		case ModeRead, ModeWrite, ModeAppend, ModeExclusive:
			return m, nil
		}
	}
	return 0, fmt.Errorf("invalid mode %q: expected one of r, w, a, x", s)
}

func (m Mode) String() string { return string(m) }

// Interp selects how get_slice treats times between samples.
type Interp int

const (
	Closest  Interp = 1 // the sample closest in time
	Previous Interp = 2 // the last sample at or before the requested time
	Linear   Interp = 3 // linear interpolation between the surrounding samples
)

// ParseInterp parses a method name such as "linear", "LINEAR" or "LINEAR_INTERP".
func ParseInterp(s string) (Interp, error) {
	switch s {
	case "closest", "CLOSEST", "CLOSEST_INTERP":
		return Closest, nil
	case "previous", "PREVIOUS", "PREVIOUS_INTERP":
		return Previous, nil
	case "linear", "LINEAR", "LINEAR_INTERP":
		return Linear, nil
	}
	return 0, fmt.Errorf("invalid interpolation method %q", s)
}

func (i Interp) String() string {
	switch i {
	case Closest:
		return "CLOSEST"
	case Previous:
		return "PREVIOUS"
	case Linear:
		return "LINEAR"
	}
	return fmt.Sprintf("Interp(%d)", int(i))
}

// SliceRequest selects a single time from the stored data.
type SliceRequest struct {
	Time   float64
	Method Interp
}

// GetRequest describes what to read.
type GetRequest struct {
	IDS        string
	Occurrence int
	Lazy       bool
	// Slice is nil for a full get.
	Slice *SliceRequest
	// Translate maps runtime paths of a lazy IDS to stored paths. It is set when
	// the factory passed to Get has a different DD version than the stored data.
	Translate func(path string) (string, bool)
}

// Impl is implemented by every storage backend.
type Impl interface {
	// Name returns the backend name, e.g. "sqlite".
	Name() string
	// Close closes the backend. With erase, the stored data is removed.
	Close(erase bool) error
	// ReadDDVersion returns the DD version an occurrence was stored with. It
	// returns ErrNoData when the occurrence is empty.
	ReadDDVersion(ctx context.Context, name string, occ int) (string, error)
	// Get reads an occurrence into a new IDS created with f. Unless req.Translate
	// is set, f must use the stored DD version.
	Get(ctx context.Context, req GetRequest, f *ids.Factory) (*ids.Toplevel, error)
	// Put stores t, replacing the occurrence, or appends it as a time slice.
	Put(ctx context.Context, t *ids.Toplevel, occ int, isSlice bool) error
	DeleteData(ctx context.Context, name string, occ int) error
	ListOccurrences(ctx context.Context, name string) ([]int, error)
	SupportsLazy() bool
}

// OccurrenceName returns the storage name of an IDS occurrence: the IDS name for
// occurrence 0, "<name>_<occ>" otherwise.
func OccurrenceName(name string, occ int) string {
	if occ == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, occ)
}
