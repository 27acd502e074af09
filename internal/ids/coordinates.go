package ids

import (
	"errors"
	"fmt"
)

// errUnresolvedDummy marks coordinate paths whose dummy index belongs to an array
// of structures outside the lineage of the node asking.
var errUnresolvedDummy = errors.New("unresolved dummy index")

// CoordinateValue is the resolved coordinate of one dimension of a node.
type CoordinateValue struct {
	// Node is the coordinate node, nil when the coordinate is an index.
	Node Node
	// Size is the index range (0..Size-1) when Node is nil.
	Size int
}

// CoordinateOf resolves the coordinate of dimension dim of n.
//
// Index coordinates ("1...N") yield an index range as large as the data. With
// alternatives, the single filled alternative is returned; when none is filled and
// the coordinate may be an index, an index range is returned.
func CoordinateOf(n Node, dim int) (CoordinateValue, error) {
	m := n.Metadata()
	if dim < 0 || dim >= m.NDim {
		return CoordinateValue{}, fmt.Errorf("%w: %s has no dimension %d", ErrCoordinate, m.Path, dim)
	}
	shape := n.Shape()
	size := 0
	if dim < len(shape) {
		size = shape[dim]
	}
	coord := m.Coordinates[dim]
	if coord.IsIndex() {
		return CoordinateValue{Size: size}, nil
	}
	refs, err := resolveReferences(n, coord)
	if err != nil {
		return CoordinateValue{}, err
	}
	if !coord.HasAlternatives {
		if refs[0] == nil {
			return CoordinateValue{}, fmt.Errorf("%w: cannot resolve coordinate %s from %s", ErrCoordinate, coord, n.Path())
		}
		return CoordinateValue{Node: refs[0]}, nil
	}
	var filled []Node
	for _, r := range refs {
		if r != nil && r.HasValue() {
			filled = append(filled, r)
		}
	}
	switch {
	case len(filled) == 1:
		return CoordinateValue{Node: filled[0]}, nil
	case len(filled) == 0 && coord.MaxSize > 0:
		return CoordinateValue{Size: size}, nil
	case len(filled) == 0:
		return CoordinateValue{}, fmt.Errorf("%w: none of the alternative coordinates %s of %s are set", ErrCoordinate, coord, n.Path())
	default:
		return CoordinateValue{}, fmt.Errorf("%w: multiple alternative coordinates %s of %s are set", ErrCoordinate, coord, n.Path())
	}
}

// Coordinates resolves the coordinates of all dimensions of n.
func Coordinates(n Node) ([]CoordinateValue, error) {
	out := make([]CoordinateValue, n.Metadata().NDim)
	for d := range out {
		cv, err := CoordinateOf(n, d)
		if err != nil {
			return nil, err
		}
		out[d] = cv
	}
	return out, nil
}

// TimeIndex returns the dimension of n with a time coordinate, or -1.
func TimeIndex(n Node) int { return n.Metadata().TimeIndex() }

// resolveReferences resolves every reference of coord from n. In homogeneous time
// mode time references resolve to the toplevel time node. References that cannot be
// resolved because their dummy index is outside the lineage of n resolve to nil.
func resolveReferences(n Node, coord *Coordinate) ([]Node, error) {
	top := n.Toplevel()
	homogeneous := top != nil && top.TimeMode() == TimeModeHomogeneous
	out := make([]Node, 0, len(coord.References))
	for _, ref := range coord.References {
		if homogeneous && ref.IsTimePath() {
			t, err := top.Child("time")
			if err == nil {
				out = append(out, t)
				continue
			}
		}
		target, err := ref.Goto(n)
		if errors.Is(err, errUnresolvedDummy) {
			out = append(out, nil)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}
