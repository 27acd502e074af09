package ids

import (
	"errors"
	"fmt"
)

// Validate checks time mode and coordinate consistency of an IDS and returns a
// *ValidationError for the first problem found.
func Validate(t *Toplevel) error {
	mode := t.TimeMode()
	if mode != TimeModeHeterogeneous && mode != TimeModeHomogeneous && mode != TimeModeIndependent {
		return &ValidationError{Path: "ids_properties/homogeneous_time", Reason: fmt.Sprintf("invalid time mode %d", mode)}
	}
	v := validator{mode: mode}
	return Walk(t, IterOptions{}, v.visit)
}

type validator struct {
	mode int32
}

func (v validator) visit(n Node) error {
	m := n.Metadata()
	if v.mode == TimeModeIndependent && m.Type == IDSTypeDynamic {
		return &ValidationError{Path: n.Path(), Reason: "dynamic data is not allowed in time independent mode"}
	}
	if m.NDim == 0 {
		return nil
	}
	shape := n.Shape()
	for dim := 0; dim < m.NDim; dim++ {
		size := 0
		if dim < len(shape) {
			size = shape[dim]
		}
		if err := v.checkCoordinate(n, dim, size); err != nil {
			return err
		}
		if err := v.checkSameAs(n, dim, size); err != nil {
			return err
		}
	}
	return nil
}

func (v validator) checkCoordinate(n Node, dim, size int) error {
	m := n.Metadata()
	coord := m.Coordinates[dim]
	if !coord.HasValidation {
		return nil
	}
	// Dynamic arrays of structures carry their own time in heterogeneous mode.
	if v.mode == TimeModeHeterogeneous && m.IsDynamicAoS() && coord.IsTimeCoordinate {
		return nil
	}
	if coord.IsIndex() {
		if coord.MaxSize > 0 && size > coord.MaxSize {
			return &ValidationError{Path: n.Path(), Reason: fmt.Sprintf("dimension %d has size %d, at most %d allowed", dim+1, size, coord.MaxSize)}
		}
		return nil
	}

	refs, err := v.references(n, coord)
	if err != nil {
		return err
	}
	if !coord.HasAlternatives {
		if refs[0] == nil {
			return nil
		}
		return checkSize(n, dim, size, refs[0], 0, coord)
	}

	var filled []Node
	for _, r := range refs {
		if r != nil && r.HasValue() {
			filled = append(filled, r)
		}
	}
	switch len(filled) {
	case 0:
		if coord.MaxSize > 0 {
			if size > coord.MaxSize {
				return &ValidationError{Path: n.Path(), Reason: fmt.Sprintf("dimension %d has size %d, at most %d allowed when none of %s is set", dim+1, size, coord.MaxSize, coord)}
			}
			return nil
		}
		for _, r := range refs {
			if r == nil {
				// An alternative outside our lineage could be the one that is filled.
				return nil
			}
		}
		return &ValidationError{Path: n.Path(), Reason: fmt.Sprintf("none of the coordinates %s of dimension %d is set", coord, dim+1)}
	case 1:
		return checkSize(n, dim, size, filled[0], 0, coord)
	default:
		return &ValidationError{Path: n.Path(), Reason: fmt.Sprintf("multiple alternatives of coordinate %s of dimension %d are set", coord, dim+1)}
	}
}

func (v validator) checkSameAs(n Node, dim, size int) error {
	coord := n.Metadata().CoordinatesSameAs[dim]
	if len(coord.References) == 0 {
		return nil
	}
	refs, err := v.references(n, coord)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if r == nil {
			continue
		}
		if err := checkSize(n, dim, size, r, dim, coord); err != nil {
			return err
		}
	}
	return nil
}

// references resolves coordinate references for validation. References into the
// subtree of n are skipped (nil), as are references through arrays of structures
// outside the lineage of n.
func (v validator) references(n Node, coord *Coordinate) ([]Node, error) {
	m := n.Metadata()
	out := make([]Node, 0, len(coord.References))
	top := n.Toplevel()
	for _, ref := range coord.References {
		if v.mode == TimeModeHomogeneous && ref.IsTimePath() {
			if t, err := top.Child("time"); err == nil {
				out = append(out, t)
				continue
			}
		}
		if m.ParsedPath.IsAncestorOf(ref) {
			out = append(out, nil)
			continue
		}
		target, err := ref.Goto(n)
		switch {
		case errors.Is(err, errUnresolvedDummy):
			out = append(out, nil)
		case err != nil:
			return nil, &ValidationError{Path: n.Path(), Reason: err.Error()}
		default:
			out = append(out, coordinateTarget(target))
		}
	}
	return out, nil
}

// coordinateTarget maps a structure reference (such as an element of
// coordinate_system/coordinate) to its "values" leaf.
func coordinateTarget(n Node) Node {
	if s, ok := n.(*Structure); ok {
		if c, err := s.Child("values"); err == nil {
			return c
		}
		return nil
	}
	return n
}

func checkSize(n Node, dim, size int, ref Node, refDim int, coord *Coordinate) error {
	refShape := ref.Shape()
	refSize := 0
	if refDim < len(refShape) {
		refSize = refShape[refDim]
	} else if len(refShape) == 0 {
		// 0-D references cannot be checked.
		return nil
	}
	if refSize != size {
		return &ValidationError{
			Path:   n.Path(),
			Reason: fmt.Sprintf("dimension %d has size %d, but coordinate %s (%s) has size %d", dim+1, size, coord, ref.Path(), refSize),
		}
	}
	return nil
}
