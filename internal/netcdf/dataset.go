// Package netcdf stores IDSs following the IMAS netCDF convention: one group per
// IDS occurrence, one variable per filled DD path (with "/" replaced by "."), and
// array-of-structure dimensions prepended to the dimensions of their descendants.
package netcdf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zlib"
)

// magic starts every dataset file.
var magic = []byte("IMAS-NC\x01")

// Variable types.
const (
	TypeChar    = "S1" // 0-D dummy variables of structures and arrays of structures
	TypeString  = "str"
	TypeInt     = "i4"
	TypeDouble  = "f8"
	TypeComplex = "c16"
)

// Fill values used for absent data in tensorized variables.
const (
	FillInt    int32   = -2147483647
	FillDouble float64 = 9.969209968386869e36
)

// FillComplex is the fill value of complex variables.
var FillComplex = complex(FillDouble, FillDouble)

// Attr is a variable or group attribute: text, or a list of numbers.
type Attr struct {
	Text    string    `cbor:"t,omitempty"`
	Numbers []float64 `cbor:"n,omitempty"`
}

// TextAttr returns a text attribute.
func TextAttr(s string) Attr { return Attr{Text: s} }

// Dimension is a named dimension of a group.
type Dimension struct {
	Name string `cbor:"name"`
	Size int    `cbor:"size"`
}

// Variable is an N-dimensional variable. Data is held in row-major order in the
// slice matching Type.
type Variable struct {
	Name       string
	Type       string
	Dimensions []string
	Attrs      map[string]Attr

	Strings []string
	Ints    []int32
	Doubles []float64
	Complex []complex128
}

// HasAttr reports whether the attribute name is set.
func (v *Variable) HasAttr(name string) bool {
	_, ok := v.Attrs[name]
	return ok
}

// Group holds dimensions, variables, attributes and sub-groups.
type Group struct {
	Name       string
	Attrs      map[string]Attr
	Dimensions []Dimension
	Variables  []*Variable
	Groups     []*Group
}

// NewGroup returns an empty group.
func NewGroup(name string) *Group {
	return &Group{Name: name, Attrs: make(map[string]Attr)}
}

// Group returns the sub-group name, or nil.
func (g *Group) Group(name string) *Group {
	for _, s := range g.Groups {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// CreateGroup adds a sub-group. It fails when the group exists.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if g.Group(name) != nil {
		return nil, fmt.Errorf("group %s/%s already exists", g.Name, name)
	}
	s := NewGroup(name)
	g.Groups = append(g.Groups, s)
	return s, nil
}

// RemoveGroup deletes the sub-group name, if present.
func (g *Group) RemoveGroup(name string) {
	g.Groups = slices.DeleteFunc(g.Groups, func(s *Group) bool { return s.Name == name })
}

// Dimension returns the size of a dimension.
func (g *Group) Dimension(name string) (int, bool) {
	for _, d := range g.Dimensions {
		if d.Name == name {
			return d.Size, true
		}
	}
	return 0, false
}

// CreateDimension adds a dimension.
func (g *Group) CreateDimension(name string, size int) error {
	if _, ok := g.Dimension(name); ok {
		return fmt.Errorf("dimension %s already exists", name)
	}
	g.Dimensions = append(g.Dimensions, Dimension{Name: name, Size: size})
	return nil
}

// Variable returns the variable name, or nil.
func (g *Group) Variable(name string) *Variable {
	for _, v := range g.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// CreateVariable adds a variable whose data is filled with fill.
func (g *Group) CreateVariable(name, typ string, dims []string, fill any) (*Variable, error) {
	if g.Variable(name) != nil {
		return nil, fmt.Errorf("variable %s already exists", name)
	}
	shape, err := g.Shape(dims)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	n := product(shape)
	v := &Variable{Name: name, Type: typ, Dimensions: slices.Clone(dims), Attrs: make(map[string]Attr)}
	switch typ {
	case TypeChar:
	case TypeString:
		v.Strings = make([]string, n)
	case TypeInt:
		v.Ints = filled(n, valueOr(fill, FillInt))
	case TypeDouble:
		v.Doubles = filled(n, valueOr(fill, FillDouble))
	case TypeComplex:
		v.Complex = filled(n, valueOr(fill, FillComplex))
	default:
		return nil, fmt.Errorf("variable %s: unknown type %q", name, typ)
	}
	g.Variables = append(g.Variables, v)
	return v, nil
}

// Shape returns the sizes of dims.
func (g *Group) Shape(dims []string) ([]int, error) {
	shape := make([]int, len(dims))
	for i, d := range dims {
		n, ok := g.Dimension(d)
		if !ok {
			return nil, fmt.Errorf("unknown dimension %q", d)
		}
		shape[i] = n
	}
	return shape, nil
}

func valueOr[T any](v any, def T) T {
	if x, ok := v.(T); ok {
		return x
	}
	return def
}

func filled[T any](n int, v T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Dataset is the root group of a file.
type Dataset struct {
	Root *Group
}

// NewDataset returns an empty dataset with the IMAS convention attributes.
func NewDataset(ddVersion string) *Dataset {
	root := NewGroup("/")
	root.Attrs["Conventions"] = TextAttr("IMAS")
	root.Attrs["data_dictionary_version"] = TextAttr(ddVersion)
	return &Dataset{Root: root}
}

// DDVersion returns the data_dictionary_version attribute.
func (d *Dataset) DDVersion() string { return d.Root.Attrs["data_dictionary_version"].Text }

// On-disk form. Numeric payloads are little-endian and zlib compressed.
type wireGroup struct {
	Name       string          `cbor:"name"`
	Attrs      map[string]Attr `cbor:"attrs,omitempty"`
	Dimensions []Dimension     `cbor:"dims,omitempty"`
	Variables  []wireVariable  `cbor:"vars,omitempty"`
	Groups     []wireGroup     `cbor:"groups,omitempty"`
}

type wireVariable struct {
	Name       string          `cbor:"name"`
	Type       string          `cbor:"type"`
	Dimensions []string        `cbor:"dims,omitempty"`
	Attrs      map[string]Attr `cbor:"attrs,omitempty"`
	Strings    []string        `cbor:"strs,omitempty"`
	Data       []byte          `cbor:"data,omitempty"`
}

// Encoder writes datasets.
type Encoder struct {
	// Level is the zlib compression level of numeric payloads.
	Level int
}

// Encode returns the file content of d.
func (e Encoder) Encode(d *Dataset) ([]byte, error) {
	wg, err := e.group(d.Root)
	if err != nil {
		return nil, err
	}
	body, err := cbor.Marshal(wg)
	if err != nil {
		return nil, err
	}
	return append(slices.Clone(magic), body...), nil
}

func (e Encoder) group(g *Group) (wireGroup, error) {
	wg := wireGroup{Name: g.Name, Attrs: g.Attrs, Dimensions: g.Dimensions}
	for _, v := range g.Variables {
		wv := wireVariable{Name: v.Name, Type: v.Type, Dimensions: v.Dimensions, Attrs: v.Attrs, Strings: v.Strings}
		var raw []byte
		switch v.Type {
		case TypeInt:
			for _, x := range v.Ints {
				raw = binary.LittleEndian.AppendUint32(raw, uint32(x))
			}
		case TypeDouble:
			for _, x := range v.Doubles {
				raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(x))
			}
		case TypeComplex:
			for _, x := range v.Complex {
				raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(real(x)))
				raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(imag(x)))
			}
		}
		if len(raw) > 0 {
			var err error
			if wv.Data, err = e.compress(raw); err != nil {
				return wg, fmt.Errorf("compress %s: %w", v.Name, err)
			}
		}
		wg.Variables = append(wg.Variables, wv)
	}
	for _, s := range g.Groups {
		ws, err := e.group(s)
		if err != nil {
			return wg, err
		}
		wg.Groups = append(wg.Groups, ws)
	}
	return wg, nil
}

func (e Encoder) compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, e.Level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ErrFormat is returned for files that are not IMAS netCDF datasets.
var ErrFormat = errors.New("not an IMAS netCDF dataset")

// Decode parses file content written by Encode.
func Decode(data []byte) (*Dataset, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, ErrFormat
	}
	var wg wireGroup
	if err := cbor.Unmarshal(data[len(magic):], &wg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	g, err := decodeGroup(wg)
	if err != nil {
		return nil, err
	}
	return &Dataset{Root: g}, nil
}

func decodeGroup(wg wireGroup) (*Group, error) {
	g := &Group{Name: wg.Name, Attrs: wg.Attrs, Dimensions: wg.Dimensions}
	if g.Attrs == nil {
		g.Attrs = make(map[string]Attr)
	}
	for _, wv := range wg.Variables {
		v := &Variable{Name: wv.Name, Type: wv.Type, Dimensions: wv.Dimensions, Attrs: wv.Attrs, Strings: wv.Strings}
		if v.Attrs == nil {
			v.Attrs = make(map[string]Attr)
		}
		shape, err := g.Shape(v.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("variable %s/%s: %w", g.Name, v.Name, err)
		}
		n := product(shape)
		var raw []byte
		if len(wv.Data) > 0 {
			if raw, err = decompress(wv.Data); err != nil {
				return nil, fmt.Errorf("variable %s/%s: %w", g.Name, v.Name, err)
			}
		}
		switch v.Type {
		case TypeString:
			if v.Strings == nil {
				v.Strings = make([]string, 0)
			}
			if len(v.Strings) < n {
				v.Strings = append(v.Strings, make([]string, n-len(v.Strings))...)
			}
		case TypeInt:
			if len(raw) != 4*n {
				return nil, fmt.Errorf("variable %s/%s: %d bytes for %d values", g.Name, v.Name, len(raw), n)
			}
			v.Ints = make([]int32, n)
			for i := range v.Ints {
				v.Ints[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
			}
		case TypeDouble:
			if len(raw) != 8*n {
				return nil, fmt.Errorf("variable %s/%s: %d bytes for %d values", g.Name, v.Name, len(raw), n)
			}
			v.Doubles = make([]float64, n)
			for i := range v.Doubles {
				v.Doubles[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
			}
		case TypeComplex:
			if len(raw) != 16*n {
				return nil, fmt.Errorf("variable %s/%s: %d bytes for %d values", g.Name, v.Name, len(raw), n)
			}
			v.Complex = make([]complex128, n)
			for i := range v.Complex {
				re := math.Float64frombits(binary.LittleEndian.Uint64(raw[16*i:]))
				im := math.Float64frombits(binary.LittleEndian.Uint64(raw[16*i+8:]))
				v.Complex[i] = complex(re, im)
			}
		}
		g.Variables = append(g.Variables, v)
	}
	for _, ws := range wg.Groups {
		s, err := decodeGroup(ws)
		if err != nil {
			return nil, err
		}
		g.Groups = append(g.Groups, s)
	}
	return g, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ReadFile reads a dataset file.
func ReadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// WriteFile atomically replaces path with the encoded dataset.
func (e Encoder) WriteFile(path string, d *Dataset) error {
	data, err := e.Encode(d)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nc-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	w := bufio.NewWriter(tmp)
	if _, err := w.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
