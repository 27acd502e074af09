package netcdf

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// filledNode is a node holding data, with the indices of its AoS ancestors.
type filledNode struct {
	aos  []int
	node ids.Node
}

// collect gathers every node with data below s, keyed by DD path.
func collect(s *ids.Structure, aos []int, out map[string][]filledNode) {
	for _, c := range s.NonEmpty() {
		path := c.Metadata().Path
		out[path] = append(out[path], filledNode{aos: aos, node: c})
		switch x := c.(type) {
		case *ids.Structure:
			collect(x, aos, out)
		case *ids.StructArray:
			for i, e := range x.Elements() {
				collect(e, append(slices.Clone(aos), i), out)
			}
		}
	}
}

// IDS2NC stores all filled data of t in group g.
//
// Nodes inside arrays of structures are tensorized: the indices of their AoS
// ancestors become leading dimensions. Ragged data is padded with the fill value and
// the actual shapes are recorded in a "<variable>:shape" variable.
func IDS2NC(t *ids.Toplevel, g *Group) error {
	nm, err := MetadataFor(t.Metadata())
	if err != nil {
		return err
	}
	timer := logging.StartTimer(logging.CategoryNetCDF, "IDS2NC "+t.Name())
	defer timer.Stop()

	switch mode := t.TimeMode(); mode {
	case ids.TimeModeHeterogeneous, ids.TimeModeHomogeneous, ids.TimeModeIndependent:
	default:
		return fmt.Errorf("%s: invalid ids_properties/homogeneous_time %d", t.Name(), mode)
	}
	homogeneous := t.TimeMode() == ids.TimeModeHomogeneous

	filled := make(map[string][]filledNode)
	collect(&t.Structure, nil, filled)

	if err := createDimensions(nm, g, filled, homogeneous); err != nil {
		return err
	}

	names := make(map[string]bool, len(filled))
	for path := range filled {
		names[VarName(path)] = true
	}
	for _, path := range nm.Paths {
		nodes := filled[path]
		if len(nodes) == 0 {
			continue
		}
		if err := writeVariable(nm, g, path, nodes, names, homogeneous); err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
	}
	logging.Get(logging.CategoryNetCDF).Debug("stored %s in %d variables", t.Name(), len(g.Variables))
	return nil
}

// createDimensions sizes every dimension as the largest extent of the data using it,
// and creates them in order of first use.
func createDimensions(nm *Metadata, g *Group, filled map[string][]filledNode, homogeneous bool) error {
	sizes := make(map[string]int)
	var order []string
	for _, path := range nm.Paths {
		nodes := filled[path]
		if len(nodes) == 0 {
			continue
		}
		dims := nm.Dimensions(path, homogeneous)
		for _, fn := range nodes {
			shape := fn.node.Shape()
			for i, n := range shape {
				d := dims[len(dims)-len(shape)+i]
				cur, seen := sizes[d]
				if !seen {
					order = append(order, d)
				}
				sizes[d] = max(cur, n)
			}
		}
	}
	for _, d := range order {
		if err := g.CreateDimension(d, sizes[d]); err != nil {
			return err
		}
	}
	return nil
}

func writeVariable(nm *Metadata, g *Group, path string, nodes []filledNode, names map[string]bool, homogeneous bool) error {
	m := nodes[0].node.Metadata()
	name := VarName(path)
	dims := nm.Dimensions(path, homogeneous)

	var v *Variable
	var err error
	switch m.DataType {
	case ids.TypeStructure, ids.TypeStructArray:
		v, err = g.CreateVariable(name, TypeChar, nil, nil)
	default:
		v, err = g.CreateVariable(name, varType(m), dims, nil)
		if err == nil {
			v.Attrs["_FillValue"] = fillAttr(m)
		}
	}
	if err != nil {
		return err
	}
	if m.Documentation != "" {
		v.Attrs["documentation"] = TextAttr(m.Documentation)
	}
	if m.Units != "" {
		v.Attrs["units"] = TextAttr(m.Units)
	}
	if m.DataType == ids.TypeStructure {
		return nil
	}

	varShape, err := g.Shape(dims)
	if err != nil {
		return err
	}
	if coords := filterNames(nm.Coordinates(path, homogeneous), names); coords != "" {
		v.Attrs["coordinates"] = TextAttr(coords)
	}
	var ancillary []string
	for _, suffix := range []string{"_error_upper", "_error_lower"} {
		if names[name+suffix] {
			ancillary = append(ancillary, name+suffix)
		}
	}
	if len(ancillary) > 0 {
		v.Attrs["ancillary_variables"] = TextAttr(strings.Join(ancillary, " "))
	}

	if err := writeShapes(g, v, m, dims, varShape, nodes); err != nil {
		return err
	}
	if m.DataType == ids.TypeStructArray {
		return nil
	}
	for _, fn := range nodes {
		p, ok := fn.node.(*ids.Primitive)
		if !ok {
			return fmt.Errorf("%s is not a data node", fn.node.Path())
		}
		if err := placeLeaf(v, varShape, fn.aos, p.Value()); err != nil {
			return err
		}
	}
	return nil
}

// writeShapes marks v as sparse when some node does not fill its part of the
// variable, storing the node shapes for N-dimensional data.
func writeShapes(g *Group, v *Variable, m *ids.Metadata, dims []string, varShape []int, nodes []filledNode) error {
	ndim := m.NDim
	if ndim == 0 {
		if len(nodes) != product(varShape) {
			v.Attrs["sparse"] = TextAttr("Sparse data, missing data is filled with _FillValue")
		}
		return nil
	}
	aosLevel := len(dims) - ndim
	sparse := len(nodes) != product(varShape[:aosLevel])
	for _, fn := range nodes {
		if !slices.Equal(fn.node.Shape(), varShape[aosLevel:]) {
			sparse = true
			break
		}
	}
	if !sparse {
		return nil
	}

	nd := strconv.Itoa(ndim) + "D"
	if _, ok := g.Dimension(nd); !ok {
		if err := g.CreateDimension(nd, ndim); err != nil {
			return err
		}
	}
	shapeDims := append(slices.Clone(dims[:aosLevel]), nd)
	sv, err := g.CreateVariable(v.Name+":shape", TypeInt, shapeDims, int32(0))
	if err != nil {
		return err
	}
	svShape, err := g.Shape(shapeDims)
	if err != nil {
		return err
	}
	for _, fn := range nodes {
		shape := fn.node.Shape()
		s32 := make([]int32, len(shape))
		for i, n := range shape {
			s32[i] = int32(n)
		}
		place(sv.Ints, svShape, fn.aos, s32, []int{ndim})
	}
	v.Attrs["sparse"] = TextAttr("Sparse data, data shapes are stored in " + sv.Name)
	return nil
}

// filterNames keeps the space separated names that are variables of the group.
func filterNames(list string, names map[string]bool) string {
	var out []string
	for _, n := range strings.Fields(list) {
		if names[n] {
			out = append(out, n)
		}
	}
	return strings.Join(out, " ")
}
