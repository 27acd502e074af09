package backend

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// selection picks a time: value = (1-w)*v[i] + w*v[j].
type selection struct {
	i, j int
	w    float64
}

// selectTime chooses samples of times for the requested time. Times before the
// first sample select the first sample, times after the last select the last.
func selectTime(times []float64, t float64, method Interp) (selection, error) {
	n := len(times)
	if n == 0 {
		return selection{}, errors.New("empty timebase")
	}
	if t <= times[0] {
		return selection{}, nil
	}
	if t >= times[n-1] {
		return selection{i: n - 1, j: n - 1}, nil
	}
	i := sort.SearchFloat64s(times, t)
	if times[i] == t {
		return selection{i: i, j: i}, nil
	}
	prev := i - 1
	switch method {
	case Previous:
		return selection{i: prev, j: prev}, nil
	case Closest:
		if t-times[prev] <= times[i]-t {
			return selection{i: prev, j: prev}, nil
		}
		return selection{i: i, j: i}, nil
	case Linear:
		return selection{i: prev, j: i, w: (t - times[prev]) / (times[i] - times[prev])}, nil
	}
	return selection{}, fmt.Errorf("invalid interpolation method %v", method)
}

// Slice returns a copy of t holding the static and constant data of t and its
// dynamic data at time t0. Dynamic arrays of structures are reduced to one element;
// dynamic arrays keep their time dimension with length one.
func Slice(t *ids.Toplevel, t0 float64, method Interp) (*ids.Toplevel, error) {
	out := ids.Blank(t)
	s := slicer{t0: t0, method: method, homogeneous: t.TimeMode() == ids.TimeModeHomogeneous}
	if s.homogeneous {
		sel, err := selectTime(t.Time(), t0, method)
		if err != nil {
			return nil, fmt.Errorf("get_slice %s: %w", t.Name(), err)
		}
		s.global = &sel
	}
	if err := s.structure(&t.Structure, &out.Structure); err != nil {
		return nil, fmt.Errorf("get_slice %s: %w", t.Name(), err)
	}
	return out, nil
}

type slicer struct {
	t0          float64
	method      Interp
	homogeneous bool
	global      *selection
}

func (s slicer) structure(src, dst *ids.Structure) error {
	for _, c := range src.NonEmpty() {
		m := c.Metadata()
		switch n := c.(type) {
		case *ids.Structure:
			if err := s.structure(n, dst.Struct(m.Name)); err != nil {
				return err
			}
		case *ids.StructArray:
			da := dst.Array(m.Name)
			if m.IsDynamicAoS() {
				if err := s.dynamicAoS(n, da); err != nil {
					return err
				}
				continue
			}
			if err := da.Resize(n.Len(), false); err != nil {
				return err
			}
			for i, e := range n.Elements() {
				if err := s.structure(e, da.At(i)); err != nil {
					return err
				}
			}
		case *ids.Primitive:
			v, err := s.leaf(n)
			if err != nil {
				return err
			}
			if err := dst.Leaf(m.Name).Set(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s slicer) dynamicAoS(src, dst *ids.StructArray) error {
	var sel selection
	if s.homogeneous {
		sel = *s.global
		if sel.j >= src.Len() {
			logging.BackendWarn("get_slice: %s has %d elements, time has more; skipping", src.Path(), src.Len())
			return nil
		}
	} else {
		times := make([]float64, src.Len())
		for i, e := range src.Elements() {
			v, err := e.Value("time")
			f, ok := v.(float64)
			if err != nil || !ok || f == ids.EmptyFloat {
				logging.BackendWarn("get_slice: %s[%d]/time is not set; skipping %s", src.Path(), i, src.Path())
				return nil
			}
			times[i] = f
		}
		var err error
		if sel, err = selectTime(times, s.t0, s.method); err != nil {
			return nil
		}
	}
	if err := dst.Resize(1, false); err != nil {
		return err
	}
	out := dst.At(0)
	if err := ids.CopyInto(src.At(sel.i), out); err != nil {
		return err
	}
	if sel.w == 0 || sel.i == sel.j {
		return nil
	}
	// Interpolate the floating point leaves both elements share.
	other := src.At(sel.j)
	prefix := out.Path() + "/"
	return ids.Walk(out, ids.IterOptions{LeafOnly: true}, func(n ids.Node) error {
		p := n.(*ids.Primitive)
		dt := p.Metadata().DataType
		if dt != ids.TypeFlt && dt != ids.TypeCpx {
			return nil
		}
		on, err := other.Lookup(strings.TrimPrefix(p.Path(), prefix))
		if err != nil {
			return nil
		}
		v, ok := interpolate(p.Value(), on.(*ids.Primitive).Value(), sel.w)
		if !ok {
			return nil
		}
		return p.Set(v)
	})
}

// leaf returns the (sliced) value of a leaf.
func (s slicer) leaf(p *ids.Primitive) (any, error) {
	m := p.Metadata()
	v := ids.CloneValue(p.Value())
	if m.Type != ids.IDSTypeDynamic || m.NDim == 0 {
		return v, nil
	}
	axis := m.TimeIndex()
	var times []float64
	switch {
	case axis >= 0:
		cv, err := ids.CoordinateOf(p, axis)
		if err != nil || cv.Node == nil {
			logging.BackendWarn("get_slice: cannot resolve the timebase of %s", p.Path())
			return v, nil
		}
		tp, ok := cv.Node.(*ids.Primitive)
		if !ok {
			return v, nil
		}
		times = tp.Floats()
	case isTimebase(m):
		axis = 0
		times = p.Floats()
	default:
		return v, nil
	}

	shape := p.Shape()
	if len(times) == 0 || axis >= len(shape) || shape[axis] != len(times) {
		logging.BackendWarn("get_slice: size of %s does not match its timebase; not sliced", p.Path())
		return v, nil
	}
	sel, err := selectTime(times, s.t0, s.method)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []string:
		return []string{x[sel.i]}, nil
	case *ids.Array[int32]:
		return takeKeep(x, axis, sel.i), nil
	case *ids.Array[float64]:
		a := takeKeep(x, axis, sel.i)
		if sel.w > 0 {
			b := takeKeep(x, axis, sel.j)
			out, _ := interpolate(a, b, sel.w)
			return out, nil
		}
		return a, nil
	case *ids.Array[complex128]:
		a := takeKeep(x, axis, sel.i)
		if sel.w > 0 {
			b := takeKeep(x, axis, sel.j)
			out, _ := interpolate(a, b, sel.w)
			return out, nil
		}
		return a, nil
	}
	return v, nil
}

// isTimebase reports whether m is a time vector such as "/time" or "power/time".
func isTimebase(m *ids.Metadata) bool {
	return m.Name == "time" && m.DataType == ids.TypeFlt && m.NDim == 1
}

// takeKeep takes index i along axis, keeping the axis with length one.
func takeKeep[T ids.Numeric](a *ids.Array[T], axis, i int) *ids.Array[T] {
	t := a.Take(axis, i)
	shape := slices.Clone(a.Shape())
	shape[axis] = 1
	out, _ := ids.NewArray(shape, t.Data())
	return out
}

// interpolate returns (1-w)*a + w*b for floating point values of the same shape.
func interpolate(a, b any, w float64) (any, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok || x == ids.EmptyFloat || y == ids.EmptyFloat {
			return nil, false
		}
		return (1-w)*x + w*y, true
	case complex128:
		y, ok := b.(complex128)
		if !ok || x == ids.EmptyComplex || y == ids.EmptyComplex {
			return nil, false
		}
		return complex(1-w, 0)*x + complex(w, 0)*y, true
	case *ids.Array[float64]:
		y, ok := b.(*ids.Array[float64])
		if !ok || !slices.Equal(x.Shape(), y.Shape()) {
			return nil, false
		}
		out := make([]float64, x.Size())
		for k, xv := range x.Data() {
			out[k] = (1-w)*xv + w*y.Data()[k]
		}
		r, _ := ids.NewArray(x.Shape(), out)
		return r, true
	case *ids.Array[complex128]:
		y, ok := b.(*ids.Array[complex128])
		if !ok || !slices.Equal(x.Shape(), y.Shape()) {
			return nil, false
		}
		out := make([]complex128, x.Size())
		for k, xv := range x.Data() {
			out[k] = complex(1-w, 0)*xv + complex(w, 0)*y.Data()[k]
		}
		r, _ := ids.NewArray(x.Shape(), out)
		return r, true
	}
	return nil, false
}
