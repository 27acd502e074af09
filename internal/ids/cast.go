package ids

import (
	"fmt"
	"math"
	"reflect"
	"slices"
)

// castValue converts a Go value to the internal representation of a leaf:
// string, []string, int32, float64, complex128 or *Array[int32|float64|complex128].
// A nil value means "reset to default" and yields nil.
func castValue(m *Metadata, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch m.DataType {
	case TypeStr:
		return castString(m, v)
	case TypeInt:
		if m.NDim == 0 {
			return castScalar(m, v, toInt32)
		}
		return castArray(m, v, toInt32)
	case TypeFlt:
		if m.NDim == 0 {
			return castScalar(m, v, toFloat64)
		}
		return castArray(m, v, toFloat64)
	case TypeCpx:
		if m.NDim == 0 {
			return castScalar(m, v, toComplex128)
		}
		return castArray(m, v, toComplex128)
	default:
		return nil, fmt.Errorf("%w: %s is not a data node", ErrType, m.Path)
	}
}

func castString(m *Metadata, v any) (any, error) {
	if m.NDim == 0 {
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return nil, fmt.Errorf("%w: cannot assign %T to STR_0D %s", ErrType, v, m.Path)
	}
	switch s := v.(type) {
	case []string:
		return slices.Clone(s), nil
	case []any:
		out := make([]string, len(s))
		for i, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: cannot assign %T element to STR_1D %s", ErrType, e, m.Path)
			}
			out[i] = str
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot assign %T to STR_1D %s", ErrType, v, m.Path)
}

type converter[T Numeric] func(reflect.Value) (T, bool)

func castScalar[T Numeric](m *Metadata, v any, conv converter[T]) (any, error) {
	out, ok := conv(reflect.ValueOf(v))
	if !ok {
		return nil, fmt.Errorf("%w: cannot assign %T to %s", ErrType, v, m)
	}
	return out, nil
}

func castArray[T Numeric](m *Metadata, v any, conv converter[T]) (any, error) {
	switch a := v.(type) {
	case *Array[T]:
		if a.NDim() != m.NDim {
			return nil, fmt.Errorf("%w: cannot assign %d-D array to %s", ErrType, a.NDim(), m)
		}
		return a, nil
	case *Array[int32]:
		return convertArray(m, a.shape, a.data, conv)
	case *Array[float64]:
		return convertArray(m, a.shape, a.data, conv)
	case *Array[complex128]:
		return convertArray(m, a.shape, a.data, conv)
	}

	rv := reflect.ValueOf(v)
	shape, err := nestedShape(rv, m.NDim)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot assign %T to %s: %v", ErrType, v, m, err)
	}
	data := make([]T, 0, product(shape))
	if err := flatten(rv, m.NDim, shape, &data, conv); err != nil {
		return nil, fmt.Errorf("%w: cannot assign %T to %s: %v", ErrType, v, m, err)
	}
	return &Array[T]{shape: shape, data: data}, nil
}

func convertArray[S, T Numeric](m *Metadata, shape []int, in []S, conv converter[T]) (any, error) {
	if len(shape) != m.NDim {
		return nil, fmt.Errorf("%w: cannot assign %d-D array to %s", ErrType, len(shape), m)
	}
	out := make([]T, len(in))
	for i, e := range in {
		c, ok := conv(reflect.ValueOf(e))
		if !ok {
			return nil, fmt.Errorf("%w: cannot convert %T elements for %s", ErrType, e, m)
		}
		out[i] = c
	}
	return &Array[T]{shape: slices.Clone(shape), data: out}, nil
}

// nestedShape determines the shape of nested slices with exactly ndim levels.
func nestedShape(rv reflect.Value, ndim int) ([]int, error) {
	shape := make([]int, 0, ndim)
	cur := rv
	for d := 0; d < ndim; d++ {
		if cur.Kind() == reflect.Interface {
			cur = cur.Elem()
		}
		if cur.Kind() != reflect.Slice && cur.Kind() != reflect.Array {
			return nil, fmt.Errorf("expected %d nested slices, found %d", ndim, d)
		}
		shape = append(shape, cur.Len())
		if cur.Len() == 0 {
			// Remaining dimensions are empty.
			for len(shape) < ndim {
				shape = append(shape, 0)
			}
			if d == ndim-1 || isNestedType(cur.Type().Elem(), ndim-d-1) {
				return shape, nil
			}
			return nil, fmt.Errorf("expected %d nested slices", ndim)
		}
		cur = cur.Index(0)
	}
	if cur.Kind() == reflect.Interface {
		cur = cur.Elem()
	}
	if cur.Kind() == reflect.Slice || cur.Kind() == reflect.Array {
		return nil, fmt.Errorf("too many dimensions, expected %d", ndim)
	}
	return shape, nil
}

func isNestedType(t reflect.Type, levels int) bool {
	for i := 0; i < levels; i++ {
		if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
			return false
		}
		t = t.Elem()
	}
	return true
}

func flatten[T Numeric](rv reflect.Value, ndim int, shape []int, out *[]T, conv converter[T]) error {
	if rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if ndim == 0 {
		c, ok := conv(rv)
		if !ok {
			return fmt.Errorf("unsupported element kind %s", rv.Kind())
		}
		*out = append(*out, c)
		return nil
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("ragged nested slices")
	}
	if rv.Len() != shape[0] {
		return fmt.Errorf("ragged nested slices: length %d, expected %d", rv.Len(), shape[0])
	}
	for i := 0; i < rv.Len(); i++ {
		if err := flatten(rv.Index(i), ndim-1, shape[1:], out, conv); err != nil {
			return err
		}
	}
	return nil
}

func toInt32(rv reflect.Value) (int32, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int32(n), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		if n > math.MaxInt32 {
			return 0, false
		}
		return int32(n), true
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat64(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func toComplex128(rv reflect.Value) (complex128, bool) {
	switch rv.Kind() {
	case reflect.Complex64, reflect.Complex128:
		return rv.Complex(), true
	}
	if f, ok := toFloat64(rv); ok {
		return complex(f, 0), true
	}
	return 0, false
}
