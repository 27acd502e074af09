package ids

import (
	"fmt"
	"slices"
)

// Primitive is a data leaf of an IDS.
type Primitive struct {
	nodeBase
	value  any // nil when unset
	loaded bool
}

// Path implements Node.
func (p *Primitive) Path() string { return p.childPath() }

// DefaultValue returns the empty value for a leaf described by m.
func DefaultValue(m *Metadata) any {
	switch m.DataType {
	case TypeStr:
		if m.NDim == 0 {
			return ""
		}
		return []string{}
	case TypeInt:
		if m.NDim == 0 {
			return EmptyInt
		}
		return EmptyArray[int32](m.NDim)
	case TypeFlt:
		if m.NDim == 0 {
			return EmptyFloat
		}
		return EmptyArray[float64](m.NDim)
	case TypeCpx:
		if m.NDim == 0 {
			return EmptyComplex
		}
		return EmptyArray[complex128](m.NDim)
	}
	return nil
}

// Load fetches the value of a lazy leaf. It is a no-op for other leaves.
func (p *Primitive) Load() error {
	if !p.isLazy() || p.loaded {
		return nil
	}
	p.loaded = true
	v, err := p.top.loader.LoadValue(p)
	if err == nil {
		v, err = castValue(p.meta, v)
	}
	if err != nil {
		err = fmt.Errorf("load %s: %w", p.Path(), err)
		p.top.recordErr(err)
		return err
	}
	p.value = v
	return nil
}

func (p *Primitive) ensure() {
	if p.isLazy() && !p.loaded {
		_ = p.Load()
	}
}

// Value returns the stored value, or the default value when unset.
// Arrays are returned by reference.
func (p *Primitive) Value() any {
	p.ensure()
	if p.value == nil {
		return DefaultValue(p.meta)
	}
	return p.value
}

// Set assigns v after casting it to the leaf's data type. nil resets the leaf.
func (p *Primitive) Set(v any) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	return p.setValue(v)
}

func (p *Primitive) setValue(v any) error {
	cv, err := castValue(p.meta, v)
	if err != nil {
		return err
	}
	p.value = cv
	return nil
}

// Clear resets the leaf to its default value.
func (p *Primitive) Clear() error { return p.Set(nil) }

// HasValue implements Node.
func (p *Primitive) HasValue() bool {
	p.ensure()
	switch v := p.value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []string:
		return len(v) > 0
	case int32:
		return v != EmptyInt
	case float64:
		return v != EmptyFloat
	case complex128:
		return v != EmptyComplex
	case *Array[int32]:
		return v.Size() > 0
	case *Array[float64]:
		return v.Size() > 0
	case *Array[complex128]:
		return v.Size() > 0
	}
	return false
}

// Shape implements Node.
func (p *Primitive) Shape() []int {
	switch v := p.Value().(type) {
	case []string:
		return []int{len(v)}
	case *Array[int32]:
		return slices.Clone(v.Shape())
	case *Array[float64]:
		return slices.Clone(v.Shape())
	case *Array[complex128]:
		return slices.Clone(v.Shape())
	}
	return []int{}
}

// Size returns the number of elements; 1 for filled 0-D leaves.
func (p *Primitive) Size() int {
	if p.meta.NDim == 0 {
		if p.HasValue() {
			return 1
		}
		return 0
	}
	return product(p.Shape())
}

// Int returns the value of an INT_0D leaf.
func (p *Primitive) Int() int32 {
	v, _ := p.Value().(int32)
	return v
}

// Float returns the value of a FLT_0D leaf.
func (p *Primitive) Float() float64 {
	v, _ := p.Value().(float64)
	return v
}

// Complex returns the value of a CPX_0D leaf.
func (p *Primitive) Complex() complex128 {
	v, _ := p.Value().(complex128)
	return v
}

// Str returns the value of a STR_0D leaf.
func (p *Primitive) Str() string {
	v, _ := p.Value().(string)
	return v
}

// Strings returns the value of a STR_1D leaf.
func (p *Primitive) Strings() []string {
	v, _ := p.Value().([]string)
	return v
}

// IntArray returns the value of an INT_ND leaf.
func (p *Primitive) IntArray() *Array[int32] {
	v, _ := p.Value().(*Array[int32])
	return v
}

// FloatArray returns the value of a FLT_ND leaf.
func (p *Primitive) FloatArray() *Array[float64] {
	v, _ := p.Value().(*Array[float64])
	return v
}

// ComplexArray returns the value of a CPX_ND leaf.
func (p *Primitive) ComplexArray() *Array[complex128] {
	v, _ := p.Value().(*Array[complex128])
	return v
}

// Floats returns the flat data of a FLT_ND leaf.
func (p *Primitive) Floats() []float64 {
	if a := p.FloatArray(); a != nil {
		return a.Data()
	}
	return nil
}

// Ints returns the flat data of an INT_ND leaf.
func (p *Primitive) Ints() []int32 {
	if a := p.IntArray(); a != nil {
		return a.Data()
	}
	return nil
}
