package netcdf

import (
	"fmt"

	"imaspy/internal/ids"
)

// place copies src (row-major, shape srcShape) into dst (shape dstShape) at the
// position whose leading indices are prefix.
func place[T any](dst []T, dstShape, prefix []int, src []T, srcShape []int) {
	if len(src) == 0 {
		return
	}
	idx := make([]int, len(srcShape))
	for k := range src {
		dst[offset(dstShape, prefix, idx)] = src[k]
		next(idx, srcShape)
	}
}

// extract returns the block of shape at prefix from src.
func extract[T any](src []T, srcShape, prefix, shape []int) []T {
	out := make([]T, product(shape))
	if len(out) == 0 {
		return out
	}
	idx := make([]int, len(shape))
	for k := range out {
		out[k] = src[offset(srcShape, prefix, idx)]
		next(idx, shape)
	}
	return out
}

func offset(shape, prefix, idx []int) int {
	off := 0
	for d, n := range shape {
		var i int
		if d < len(prefix) {
			i = prefix[d]
		} else {
			i = idx[d-len(prefix)]
		}
		off = off*n + i
	}
	return off
}

// next advances a row-major multi-index.
func next(idx, shape []int) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < shape[d] {
			return
		}
		idx[d] = 0
	}
}

// leafData returns the flat data and shape of a leaf value.
func leafData(v any) (data any, shape []int) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []string:
		return x, []int{len(x)}
	case int32:
		return []int32{x}, nil
	case float64:
		return []float64{x}, nil
	case complex128:
		return []complex128{x}, nil
	case *ids.Array[int32]:
		return x.Data(), x.Shape()
	case *ids.Array[float64]:
		return x.Data(), x.Shape()
	case *ids.Array[complex128]:
		return x.Data(), x.Shape()
	}
	return nil, nil
}

// placeLeaf writes a leaf value into the variable.
func placeLeaf(v *Variable, varShape, prefix []int, value any) error {
	data, shape := leafData(value)
	switch x := data.(type) {
	case []string:
		place(v.Strings, varShape, prefix, x, shape)
	case []int32:
		place(v.Ints, varShape, prefix, x, shape)
	case []float64:
		place(v.Doubles, varShape, prefix, x, shape)
	case []complex128:
		place(v.Complex, varShape, prefix, x, shape)
	default:
		return fmt.Errorf("variable %s: unsupported value %T", v.Name, value)
	}
	return nil
}

// leafValue reads the block of shape at prefix from the variable as a leaf value of
// metadata m.
func leafValue(v *Variable, varShape, prefix, shape []int, m *ids.Metadata) (any, error) {
	switch m.DataType {
	case ids.TypeStr:
		if v.Type != TypeString {
			break
		}
		s := extract(v.Strings, varShape, prefix, shape)
		if m.NDim == 0 {
			return s[0], nil
		}
		return s, nil
	case ids.TypeInt:
		if v.Type != TypeInt {
			break
		}
		d := extract(v.Ints, varShape, prefix, shape)
		if m.NDim == 0 {
			return d[0], nil
		}
		return ids.NewArray(shape, d)
	case ids.TypeFlt:
		if v.Type != TypeDouble {
			break
		}
		d := extract(v.Doubles, varShape, prefix, shape)
		if m.NDim == 0 {
			return d[0], nil
		}
		return ids.NewArray(shape, d)
	case ids.TypeCpx:
		if v.Type != TypeComplex {
			break
		}
		d := extract(v.Complex, varShape, prefix, shape)
		if m.NDim == 0 {
			return d[0], nil
		}
		return ids.NewArray(shape, d)
	}
	return nil, fmt.Errorf("variable %s has type %s, expected %s", v.Name, v.Type, varType(m))
}

// varType returns the variable type of a DD node.
func varType(m *ids.Metadata) string {
	switch m.DataType {
	case ids.TypeStr:
		return TypeString
	case ids.TypeInt:
		return TypeInt
	case ids.TypeFlt:
		return TypeDouble
	case ids.TypeCpx:
		return TypeComplex
	}
	return TypeChar
}

// fillAttr returns the _FillValue attribute of a DD node.
func fillAttr(m *ids.Metadata) Attr {
	switch m.DataType {
	case ids.TypeInt:
		return Attr{Numbers: []float64{float64(FillInt)}}
	case ids.TypeFlt:
		return Attr{Numbers: []float64{FillDouble}}
	case ids.TypeCpx:
		return Attr{Numbers: []float64{FillDouble, FillDouble}}
	}
	return Attr{}
}

// isFill reports whether a 0-D value is the fill value of its variable.
func isFill(v any) bool {
	switch x := v.(type) {
	case string:
		return x == ""
	case int32:
		return x == FillInt
	case float64:
		return x == FillDouble
	case complex128:
		return x == FillComplex
	}
	return false
}
