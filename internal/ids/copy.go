package ids

import (
	"fmt"
	"slices"
)

// Copy returns a writable deep copy of t. Lazy IDSs are fully loaded.
func Copy(t *Toplevel) *Toplevel {
	out := newToplevel(t.meta, t.version)
	copyStructure(&t.Structure, &out.Structure)
	return out
}

// Blank returns an empty, writable IDS with the definition and DD version of t.
func Blank(t *Toplevel) *Toplevel {
	return newToplevel(t.meta, t.version)
}

// CopyInto deep copies the data of src into dst. Both must be built from the same
// DD node and dst must be writable.
func CopyInto(src, dst *Structure) error {
	if src.meta != dst.meta {
		return fmt.Errorf("%w: cannot copy %s into %s", ErrType, src.meta.Path, dst.meta.Path)
	}
	if err := dst.checkWritable(); err != nil {
		return err
	}
	copyStructure(src, dst)
	return nil
}

func copyStructure(src, dst *Structure) {
	for _, c := range src.NonEmpty() {
		switch n := c.(type) {
		case *Structure:
			copyStructure(n, dst.Struct(n.meta.Name))
		case *StructArray:
			da := dst.Array(n.meta.Name)
			da.elems = da.makeElements(0, n.Len())
			for i, e := range n.Elements() {
				copyStructure(e, da.elems[i])
			}
		case *Primitive:
			dst.Leaf(n.meta.Name).value = CloneValue(n.Value())
		}
	}
}

// CloneValue deep copies a leaf value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case *Array[int32]:
		return t.Clone()
	case *Array[float64]:
		return t.Clone()
	case *Array[complex128]:
		return t.Clone()
	}
	return v
}

// ValuesEqual compares two leaf values.
func ValuesEqual(a, b any) bool {
	switch x := a.(type) {
	case []string:
		y, ok := b.([]string)
		return ok && slices.Equal(x, y)
	case *Array[int32]:
		y, ok := b.(*Array[int32])
		return ok && x.Equal(y)
	case *Array[float64]:
		y, ok := b.(*Array[float64])
		return ok && x.Equal(y)
	case *Array[complex128]:
		y, ok := b.(*Array[complex128])
		return ok && x.Equal(y)
	}
	return a == b
}
