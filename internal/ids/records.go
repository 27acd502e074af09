package ids

import (
	"fmt"
	"slices"
)

// EncodedValue is a leaf value in a typed, serialization friendly form.
// Complex data is stored as interleaved (real, imag) pairs.
type EncodedValue struct {
	Type    string    `cbor:"t" yaml:"type" json:"type"`
	Shape   []int     `cbor:"s,omitempty" yaml:"shape,omitempty,flow" json:"shape,omitempty"`
	Str     string    `cbor:"str,omitempty" yaml:"str,omitempty" json:"str,omitempty"`
	Strs    []string  `cbor:"strs,omitempty" yaml:"strs,omitempty" json:"strs,omitempty"`
	Ints    []int32   `cbor:"i,omitempty" yaml:"ints,omitempty,flow" json:"ints,omitempty"`
	Floats  []float64 `cbor:"f,omitempty" yaml:"floats,omitempty,flow" json:"floats,omitempty"`
	Complex []float64 `cbor:"c,omitempty" yaml:"complex,omitempty,flow" json:"complex,omitempty"`
}

// EncodeValue converts a leaf value to its encoded form. Unknown values yield nil.
func EncodeValue(v any) *EncodedValue {
	switch t := v.(type) {
	case string:
		return &EncodedValue{Type: "STR_0D", Str: t}
	case []string:
		return &EncodedValue{Type: "STR_1D", Shape: []int{len(t)}, Strs: slices.Clone(t)}
	case int32:
		return &EncodedValue{Type: "INT_0D", Ints: []int32{t}}
	case float64:
		return &EncodedValue{Type: "FLT_0D", Floats: []float64{t}}
	case complex128:
		return &EncodedValue{Type: "CPX_0D", Complex: []float64{real(t), imag(t)}}
	case *Array[int32]:
		return &EncodedValue{Type: fmt.Sprintf("INT_%dD", t.NDim()), Shape: slices.Clone(t.Shape()), Ints: slices.Clone(t.Data())}
	case *Array[float64]:
		return &EncodedValue{Type: fmt.Sprintf("FLT_%dD", t.NDim()), Shape: slices.Clone(t.Shape()), Floats: slices.Clone(t.Data())}
	case *Array[complex128]:
		c := make([]float64, 0, 2*t.Size())
		for _, x := range t.Data() {
			c = append(c, real(x), imag(x))
		}
		return &EncodedValue{Type: fmt.Sprintf("CPX_%dD", t.NDim()), Shape: slices.Clone(t.Shape()), Complex: c}
	}
	return nil
}

// Decode converts the encoded value back to a leaf value.
func (e *EncodedValue) Decode() (any, error) {
	dt, ndim, err := ParseDataType(e.Type)
	if err != nil {
		return nil, err
	}
	switch dt {
	case TypeStr:
		if ndim == 0 {
			return e.Str, nil
		}
		if e.Strs == nil {
			return []string{}, nil
		}
		return e.Strs, nil
	case TypeInt:
		if ndim == 0 {
			return first(e.Ints, e.Type)
		}
		return NewArray(e.shapeOr(ndim), nonNil(e.Ints))
	case TypeFlt:
		if ndim == 0 {
			return first(e.Floats, e.Type)
		}
		return NewArray(e.shapeOr(ndim), nonNil(e.Floats))
	case TypeCpx:
		if len(e.Complex)%2 != 0 {
			return nil, fmt.Errorf("%w: odd number of complex components", ErrType)
		}
		c := make([]complex128, len(e.Complex)/2)
		for i := range c {
			c[i] = complex(e.Complex[2*i], e.Complex[2*i+1])
		}
		if ndim == 0 {
			return first(c, e.Type)
		}
		return NewArray(e.shapeOr(ndim), c)
	}
	return nil, fmt.Errorf("%w: cannot decode %s", ErrType, e.Type)
}

func (e *EncodedValue) shapeOr(ndim int) []int {
	if len(e.Shape) == ndim {
		return e.Shape
	}
	return make([]int, ndim)
}

func first[T any](s []T, typ string) (any, error) {
	if len(s) != 1 {
		return nil, fmt.Errorf("%w: %s needs exactly one element, got %d", ErrType, typ, len(s))
	}
	return s[0], nil
}

func nonNil[T Numeric](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Record is one filled node of an IDS in flattened form, keyed by runtime path.
// Arrays of structures record their length, leaves their value.
type Record struct {
	Path  string        `cbor:"p" yaml:"path" json:"path"`
	Size  int           `cbor:"n,omitempty" yaml:"size,omitempty" json:"size,omitempty"`
	Value *EncodedValue `cbor:"v,omitempty" yaml:"value,omitempty" json:"value,omitempty"`
}

// Flatten lists every filled array of structures and leaf of t in DD order.
func Flatten(t *Toplevel) []Record {
	var out []Record
	_ = Walk(t, IterOptions{}, func(n Node) error {
		switch x := n.(type) {
		case *StructArray:
			out = append(out, Record{Path: x.Path(), Size: x.Len()})
		case *Primitive:
			out = append(out, Record{Path: x.Path(), Value: EncodeValue(x.Value())})
		}
		return nil
	})
	return out
}

// RecordSet is a Loader over flattened records.
type RecordSet map[string]Record

// NewRecordSet indexes records by path.
func NewRecordSet(records []Record) RecordSet {
	rs := make(RecordSet, len(records))
	for _, r := range records {
		rs[r.Path] = r
	}
	return rs
}

// LoadSize implements Loader.
func (rs RecordSet) LoadSize(a *StructArray) (int, error) {
	return rs[a.Path()].Size, nil
}

// LoadValue implements Loader.
func (rs RecordSet) LoadValue(p *Primitive) (any, error) {
	r, ok := rs[p.Path()]
	if !ok || r.Value == nil {
		return nil, nil
	}
	return r.Value.Decode()
}
