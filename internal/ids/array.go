package ids

import (
	"fmt"
	"slices"
)

// Numeric is the set of element types of N-dimensional IDS data.
type Numeric interface {
	~int32 | ~float64 | ~complex128
}

// Array is a dense N-dimensional array stored in row-major order.
type Array[T Numeric] struct {
	shape []int
	data  []T
}

// NewArray wraps data with the given shape. len(data) must equal the product of shape.
func NewArray[T Numeric](shape []int, data []T) (*Array[T], error) {
	if n := product(shape); n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, got %d", ErrType, shape, n, len(data))
	}
	for _, s := range shape {
		if s < 0 {
			return nil, fmt.Errorf("%w: negative dimension in shape %v", ErrType, shape)
		}
	}
	return &Array[T]{shape: slices.Clone(shape), data: data}, nil
}

// EmptyArray returns an array of the given dimension with all sizes zero.
func EmptyArray[T Numeric](ndim int) *Array[T] {
	return &Array[T]{shape: make([]int, ndim)}
}

// Filled returns an array of the given shape with every element set to v.
func Filled[T Numeric](shape []int, v T) *Array[T] {
	data := make([]T, product(shape))
	for i := range data {
		data[i] = v
	}
	return &Array[T]{shape: slices.Clone(shape), data: data}
}

// From1D returns a 1-D array over data.
func From1D[T Numeric](data []T) *Array[T] {
	return &Array[T]{shape: []int{len(data)}, data: data}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Shape returns the array shape. The slice must not be modified.
func (a *Array[T]) Shape() []int { return a.shape }

// NDim returns the number of dimensions.
func (a *Array[T]) NDim() int { return len(a.shape) }

// Size returns the number of elements.
func (a *Array[T]) Size() int { return len(a.data) }

// Data returns the flat row-major buffer.
func (a *Array[T]) Data() []T { return a.data }

func (a *Array[T]) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("ids: %d indices for %d-D array", len(idx), len(a.shape)))
	}
	off := 0
	for d, i := range idx {
		if i < 0 || i >= a.shape[d] {
			panic(fmt.Sprintf("ids: index %d out of range for dimension %d of size %d", i, d, a.shape[d]))
		}
		off = off*a.shape[d] + i
	}
	return off
}

// At returns the element at the given indices.
func (a *Array[T]) At(idx ...int) T { return a.data[a.offset(idx)] }

// Set stores v at the given indices.
func (a *Array[T]) Set(v T, idx ...int) { a.data[a.offset(idx)] = v }

// Clone returns a deep copy.
func (a *Array[T]) Clone() *Array[T] {
	return &Array[T]{shape: slices.Clone(a.shape), data: slices.Clone(a.data)}
}

// Equal reports whether both arrays have the same shape and elements.
func (a *Array[T]) Equal(b *Array[T]) bool {
	return slices.Equal(a.shape, b.shape) && slices.Equal(a.data, b.data)
}

// Take returns the sub-array at index i along axis; the result has one dimension less.
func (a *Array[T]) Take(axis, i int) *Array[T] {
	outer := product(a.shape[:axis])
	inner := product(a.shape[axis+1:])
	n := a.shape[axis]
	out := make([]T, 0, outer*inner)
	for o := 0; o < outer; o++ {
		base := (o*n + i) * inner
		out = append(out, a.data[base:base+inner]...)
	}
	shape := append(slices.Clone(a.shape[:axis]), a.shape[axis+1:]...)
	return &Array[T]{shape: shape, data: out}
}

// Resize returns an array of the new shape. Overlapping elements are kept and new
// elements are set to fill.
func (a *Array[T]) Resize(shape []int, fill T) *Array[T] {
	out := Filled(shape, fill)
	if len(shape) != len(a.shape) || a.Size() == 0 {
		return out
	}
	common := make([]int, len(shape))
	for d := range shape {
		common[d] = min(shape[d], a.shape[d])
	}
	if product(common) == 0 {
		return out
	}
	idx := make([]int, len(shape))
	for {
		out.Set(a.At(idx...), idx...)
		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < common[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return out
		}
	}
}

// Stack stacks equally shaped arrays along a new axis at position axis.
func Stack[T Numeric](parts []*Array[T], axis int) (*Array[T], error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrType)
	}
	inShape := parts[0].shape
	for _, p := range parts[1:] {
		if !slices.Equal(p.shape, inShape) {
			return nil, fmt.Errorf("%w: cannot stack shapes %v and %v", ErrType, inShape, p.shape)
		}
	}
	outer := product(inShape[:axis])
	inner := product(inShape[axis:])
	out := make([]T, 0, outer*inner*len(parts))
	for o := 0; o < outer; o++ {
		for _, p := range parts {
			out = append(out, p.data[o*inner:(o+1)*inner]...)
		}
	}
	shape := append(slices.Clone(inShape[:axis]), len(parts))
	shape = append(shape, inShape[axis:]...)
	return &Array[T]{shape: shape, data: out}, nil
}

// Concat joins arrays along an existing axis. All other dimensions must agree.
func Concat[T Numeric](a, b *Array[T], axis int) (*Array[T], error) {
	if a.NDim() != b.NDim() {
		return nil, fmt.Errorf("%w: cannot concatenate %d-D and %d-D arrays", ErrType, a.NDim(), b.NDim())
	}
	for d := range a.shape {
		if d != axis && a.shape[d] != b.shape[d] {
			return nil, fmt.Errorf("%w: cannot concatenate shapes %v and %v along axis %d", ErrType, a.shape, b.shape, axis)
		}
	}
	outer := product(a.shape[:axis])
	ia := product(a.shape[axis:])
	ib := product(b.shape[axis:])
	out := make([]T, 0, a.Size()+b.Size())
	for o := 0; o < outer; o++ {
		out = append(out, a.data[o*ia:(o+1)*ia]...)
		out = append(out, b.data[o*ib:(o+1)*ib]...)
	}
	shape := slices.Clone(a.shape)
	shape[axis] += b.shape[axis]
	return &Array[T]{shape: shape, data: out}, nil
}

// FortranOrder returns the elements in column-major order.
func (a *Array[T]) FortranOrder() []T {
	if a.NDim() <= 1 {
		return a.data
	}
	out := make([]T, 0, len(a.data))
	idx := make([]int, len(a.shape))
	for n := 0; n < len(a.data); n++ {
		out = append(out, a.At(idx...))
		for d := 0; d < len(idx); d++ {
			idx[d]++
			if idx[d] < a.shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}
