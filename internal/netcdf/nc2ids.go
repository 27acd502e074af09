package netcdf

import (
	"fmt"
	"slices"
	"strings"

	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// instance is one runtime node of a DD path, with the indices of its AoS ancestors.
type instance struct {
	aos  []int
	node ids.Node
}

// instances returns every runtime node of m in t. Arrays of structures above m must
// already be sized.
func instances(t *ids.Toplevel, m *ids.Metadata) ([]instance, error) {
	cur := []instance{{node: &t.Structure}}
	prefix := ""
	for _, a := range m.AoSAncestors() {
		if a == m {
			break
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(a.Path, prefix), "/")
		var next []instance
		for _, in := range cur {
			n, err := in.node.(*ids.Structure).Lookup(rel)
			if err != nil {
				return nil, err
			}
			for i, e := range n.(*ids.StructArray).Elements() {
				next = append(next, instance{aos: append(slices.Clone(in.aos), i), node: e})
			}
		}
		cur, prefix = next, a.Path
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(m.Path, prefix), "/")
	out := make([]instance, 0, len(cur))
	for _, in := range cur {
		n, err := in.node.(*ids.Structure).Lookup(rel)
		if err != nil {
			return nil, err
		}
		out = append(out, instance{aos: in.aos, node: n})
	}
	return out, nil
}

// HomogeneousTime reads ids_properties/homogeneous_time from group g.
func HomogeneousTime(g *Group) (int32, error) {
	v := g.Variable("ids_properties.homogeneous_time")
	if v == nil || v.Type != TypeInt || len(v.Ints) != 1 {
		return 0, fmt.Errorf("group %s: ids_properties.homogeneous_time is missing", g.Name)
	}
	return v.Ints[0], nil
}

// NC2IDS fills t with the data stored in group g by IDS2NC.
func NC2IDS(g *Group, t *ids.Toplevel) error {
	nm, err := MetadataFor(t.Metadata())
	if err != nil {
		return err
	}
	timer := logging.StartTimer(logging.CategoryNetCDF, "NC2IDS "+t.Name())
	defer timer.Stop()

	mode, err := HomogeneousTime(g)
	if err != nil {
		return err
	}
	homogeneous := mode == ids.TimeModeHomogeneous

	for _, path := range nm.Paths {
		v := g.Variable(VarName(path))
		if v == nil {
			continue
		}
		m, err := nm.IDS.Lookup(path)
		if err != nil {
			return err
		}
		if m.DataType == ids.TypeStructure {
			continue
		}
		if err := readVariable(nm, g, v, m, t, homogeneous); err != nil {
			return fmt.Errorf("%s: variable %s: %w", t.Name(), v.Name, err)
		}
	}
	return nil
}

func readVariable(nm *Metadata, g *Group, v *Variable, m *ids.Metadata, t *ids.Toplevel, homogeneous bool) error {
	dims := nm.Dimensions(m.Path, homogeneous)
	varShape, err := g.Shape(dims)
	if err != nil {
		return err
	}
	aosLevel := len(dims) - m.NDim
	shapes, err := readShapes(g, v, dims[:aosLevel], m.NDim)
	if err != nil {
		return err
	}
	insts, err := instances(t, m)
	if err != nil {
		return err
	}
	for _, in := range insts {
		shape := varShape[aosLevel:]
		if shapes != nil {
			shape = shapes(in.aos)
		}
		switch n := in.node.(type) {
		case *ids.StructArray:
			if err := n.Resize(shape[0], false); err != nil {
				return err
			}
		case *ids.Primitive:
			if m.NDim > 0 && product(shape) == 0 {
				continue
			}
			val, err := leafValue(v, varShape, in.aos, shape, m)
			if err != nil {
				return err
			}
			if m.NDim == 0 && isFill(val) {
				continue
			}
			if err := n.Set(val); err != nil {
				return err
			}
		}
	}
	return nil
}

// readShapes returns a lookup of the stored data shape per AoS index when v is
// sparse N-dimensional data, or nil.
func readShapes(g *Group, v *Variable, aosDims []string, ndim int) (func([]int) []int, error) {
	sv := g.Variable(v.Name + ":shape")
	if sv == nil || ndim == 0 {
		return nil, nil
	}
	if sv.Type != TypeInt {
		return nil, fmt.Errorf("%s has type %s, expected %s", sv.Name, sv.Type, TypeInt)
	}
	svShape, err := g.Shape(sv.Dimensions)
	if err != nil {
		return nil, err
	}
	if len(svShape) != len(aosDims)+1 || svShape[len(svShape)-1] != ndim {
		return nil, fmt.Errorf("%s has shape %v, expected %d dimensions ending in %d", sv.Name, svShape, len(aosDims)+1, ndim)
	}
	return func(aos []int) []int {
		s := extract(sv.Ints, svShape, aos, []int{ndim})
		out := make([]int, ndim)
		for i, n := range s {
			out[i] = int(n)
		}
		return out
	}, nil
}
