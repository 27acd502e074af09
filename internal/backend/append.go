package backend

import (
	"fmt"
	"slices"

	"imaspy/internal/ids"
)

// AppendSlice appends the dynamic data of slice to stored, as put_slice does:
// elements of dynamic arrays of structures are appended, and dynamic arrays are
// concatenated along their time dimension. Constant and static data of slice is
// ignored except where stored has none.
func AppendSlice(stored, slice *ids.Toplevel) error {
	if stored.Metadata() != slice.Metadata() {
		return fmt.Errorf("cannot append %s (DD %s) to %s (DD %s)", slice.Name(), slice.Version(), stored.Name(), stored.Version())
	}
	return appendStructure(&stored.Structure, &slice.Structure)
}

func appendStructure(dst, src *ids.Structure) error {
	for _, c := range src.NonEmpty() {
		m := c.Metadata()
		switch n := c.(type) {
		case *ids.Structure:
			if err := appendStructure(dst.Struct(m.Name), n); err != nil {
				return err
			}
		case *ids.StructArray:
			da := dst.Array(m.Name)
			if m.IsDynamicAoS() {
				for _, e := range n.Elements() {
					el := da.NewElement()
					if err := ids.CopyInto(e, el); err != nil {
						return err
					}
					if err := da.Append(el); err != nil {
						return err
					}
				}
				continue
			}
			if da.Len() < n.Len() {
				if err := da.Resize(n.Len(), true); err != nil {
					return err
				}
			}
			for i, e := range n.Elements() {
				if err := appendStructure(da.At(i), e); err != nil {
					return err
				}
			}
		case *ids.Primitive:
			if err := appendLeaf(dst.Leaf(m.Name), n); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendLeaf(dst, src *ids.Primitive) error {
	m := src.Metadata()
	if !dst.HasValue() {
		return dst.Set(ids.CloneValue(src.Value()))
	}
	if m.Type != ids.IDSTypeDynamic {
		return nil
	}
	axis := m.TimeIndex()
	if axis < 0 {
		if !isTimebase(m) {
			// dynamic data without a time dimension is overwritten
			return dst.Set(ids.CloneValue(src.Value()))
		}
		axis = 0
	}
	var (
		out any
		err error
	)
	switch x := dst.Value().(type) {
	case []string:
		out = append(slices.Clone(x), src.Strings()...)
	case *ids.Array[int32]:
		out, err = ids.Concat(x, src.IntArray(), axis)
	case *ids.Array[float64]:
		out, err = ids.Concat(x, src.FloatArray(), axis)
	case *ids.Array[complex128]:
		out, err = ids.Concat(x, src.ComplexArray(), axis)
	default:
		out = ids.CloneValue(src.Value())
	}
	if err != nil {
		return fmt.Errorf("append %s: %w", src.Path(), err)
	}
	return dst.Set(out)
}
