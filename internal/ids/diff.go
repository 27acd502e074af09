package ids

import "fmt"

// Difference is one mismatch between two IDSs.
type Difference struct {
	Path string
	A, B any
}

func (d Difference) String() string {
	return fmt.Sprintf("%s: %v != %v", d.Path, d.A, d.B)
}

// Diff lists the differences between two IDSs. DD version and IDS name mismatches
// are reported with the pseudo paths "<version>" and "<name>".
func Diff(a, b *Toplevel) []Difference {
	var out []Difference
	if a.version != b.version {
		out = append(out, Difference{Path: "<version>", A: a.version, B: b.version})
	}
	if a.Name() != b.Name() {
		return append(out, Difference{Path: "<name>", A: a.Name(), B: b.Name()})
	}
	return diffStructure(&a.Structure, &b.Structure, out)
}

func diffStructure(a, b *Structure, out []Difference) []Difference {
	seen := make(map[string]bool)
	for _, c := range a.NonEmpty() {
		seen[c.Metadata().Name] = true
	}
	for _, c := range b.NonEmpty() {
		seen[c.Metadata().Name] = true
	}
	for _, cm := range a.meta.children {
		if !seen[cm.Name] {
			continue
		}
		other, ok := b.meta.Child(cm.Name)
		if !ok || other.DataType != cm.DataType || other.NDim != cm.NDim {
			out = append(out, Difference{Path: joinPath(a.Path(), cm.Name), A: cm.String(), B: "<incompatible>"})
			continue
		}
		switch cm.DataType {
		case TypeStructure:
			out = diffStructure(a.Struct(cm.Name), b.Struct(cm.Name), out)
		case TypeStructArray:
			aa, ba := a.Array(cm.Name), b.Array(cm.Name)
			if aa.Len() != ba.Len() {
				out = append(out, Difference{Path: aa.Path() + "/<length>", A: aa.Len(), B: ba.Len()})
				continue
			}
			for i := range aa.Len() {
				out = diffStructure(aa.At(i), ba.At(i), out)
			}
		default:
			av, bv := a.Leaf(cm.Name).Value(), b.Leaf(cm.Name).Value()
			if !ValuesEqual(av, bv) {
				out = append(out, Difference{Path: joinPath(a.Path(), cm.Name), A: av, B: bv})
			}
		}
	}
	for _, cm := range b.meta.children {
		if _, ok := a.meta.Child(cm.Name); !ok && seen[cm.Name] {
			out = append(out, Difference{Path: joinPath(b.Path(), cm.Name), A: "<missing>", B: cm.String()})
		}
	}
	return out
}
