package ids

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is any element of an IDS tree.
//
// IDS trees are not safe for concurrent use.
type Node interface {
	Metadata() *Metadata
	// Parent returns the parent node, nil for a toplevel.
	Parent() Node
	Toplevel() *Toplevel
	// Path returns the runtime path with 0-based array indices, e.g. "profiles_1d[2]/zeff".
	Path() string
	// HasValue reports whether the node (or any descendant) holds non-default data.
	HasValue() bool
	// Shape returns the size per dimension: the length for arrays of structures,
	// nothing for structures and 0-D leaves.
	Shape() []int

	base() *nodeBase
}

// Loader fills nodes of a lazy toplevel on first access.
type Loader interface {
	// LoadSize returns the stored number of elements of an array of structures.
	LoadSize(a *StructArray) (int, error)
	// LoadValue returns the stored value of a leaf, nil when it is empty.
	LoadValue(p *Primitive) (any, error)
}

type nodeBase struct {
	meta   *Metadata
	parent Node
	top    *Toplevel
}

func (b *nodeBase) Metadata() *Metadata { return b.meta }
func (b *nodeBase) Toplevel() *Toplevel { return b.top }
func (b *nodeBase) base() *nodeBase     { return b }

func (b *nodeBase) Parent() Node {
	if b.parent == nil {
		return nil
	}
	return b.parent
}

func (b *nodeBase) childPath() string {
	if b.parent == nil {
		return ""
	}
	return joinPath(b.parent.Path(), b.meta.Name)
}

func (b *nodeBase) isLazy() bool { return b.top != nil && b.top.lazy }

func (b *nodeBase) checkWritable() error {
	if b.isLazy() {
		return fmt.Errorf("%w: cannot modify %s", ErrReadOnly, b.meta.Path)
	}
	return nil
}

func newNode(m *Metadata, parent Node, top *Toplevel) Node {
	switch m.DataType {
	case TypeStructArray:
		return &StructArray{nodeBase: nodeBase{meta: m, parent: parent, top: top}}
	case TypeStructure:
		return newStructure(m, parent, top, -1)
	default:
		return &Primitive{nodeBase: nodeBase{meta: m, parent: parent, top: top}}
	}
}

// =============================================================================
// Structure
// =============================================================================

// Structure is a DD structure, or one element of an array of structures.
// Children are created on first access.
type Structure struct {
	nodeBase
	index    int // position in the parent array, -1 for plain structures
	children map[string]Node
}

func newStructure(m *Metadata, parent Node, top *Toplevel, index int) *Structure {
	return &Structure{
		nodeBase: nodeBase{meta: m, parent: parent, top: top},
		index:    index,
		children: make(map[string]Node),
	}
}

// Path implements Node.
func (s *Structure) Path() string {
	if s.index >= 0 && s.parent != nil {
		return s.parent.Path() + "[" + strconv.Itoa(s.index) + "]"
	}
	return s.childPath()
}

// Index returns the position of an array element, -1 otherwise.
func (s *Structure) Index() int { return s.index }

// Shape implements Node.
func (s *Structure) Shape() []int { return []int{} }

// Child returns the named child, creating it on first access.
func (s *Structure) Child(name string) (Node, error) {
	if c, ok := s.children[name]; ok {
		return c, nil
	}
	cm, ok := s.meta.Child(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no element %q", ErrUnknownField, s.meta.describe(), name)
	}
	c := newNode(cm, s, s.top)
	s.children[name] = c
	return c, nil
}

func (s *Structure) mustChild(name string) Node {
	c, err := s.Child(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Struct returns the named child structure. It panics when the child does not exist
// or is not a structure.
func (s *Structure) Struct(name string) *Structure {
	c, ok := s.mustChild(name).(*Structure)
	if !ok {
		panic(fmt.Sprintf("ids: %s/%s is not a structure", s.meta.Path, name))
	}
	return c
}

// Array returns the named child array of structures, panicking like Struct.
func (s *Structure) Array(name string) *StructArray {
	c, ok := s.mustChild(name).(*StructArray)
	if !ok {
		panic(fmt.Sprintf("ids: %s/%s is not an array of structures", s.meta.Path, name))
	}
	return c
}

// Leaf returns the named data child, panicking like Struct.
func (s *Structure) Leaf(name string) *Primitive {
	c, ok := s.mustChild(name).(*Primitive)
	if !ok {
		panic(fmt.Sprintf("ids: %s/%s is not a data node", s.meta.Path, name))
	}
	return c
}

// Lookup resolves a relative runtime path such as "profiles_1d[0]/ion[1]/z_ion".
// Indices are 0-based.
func (s *Structure) Lookup(path string) (Node, error) {
	var cur Node = s
	if path == "" {
		return cur, nil
	}
	for _, step := range strings.Split(path, "/") {
		name, idx, hasIdx, err := splitStep(step)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", path, err)
		}
		st, ok := cur.(*Structure)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a structure", ErrUnknownField, cur.Path())
		}
		cur, err = st.Child(name)
		if err != nil {
			return nil, err
		}
		if !hasIdx {
			continue
		}
		aos, ok := cur.(*StructArray)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an array of structures", ErrUnknownField, cur.Path())
		}
		el, err := aos.Get(idx)
		if err != nil {
			return nil, err
		}
		cur = el
	}
	return cur, nil
}

func splitStep(step string) (name string, idx int, hasIdx bool, err error) {
	open := strings.IndexByte(step, '[')
	if open < 0 {
		return step, 0, false, nil
	}
	if !strings.HasSuffix(step, "]") {
		return "", 0, false, fmt.Errorf("unterminated index in %q", step)
	}
	idx, err = strconv.Atoi(step[open+1 : len(step)-1])
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid index in %q", step)
	}
	return step[:open], idx, true, nil
}

// Set assigns a value to the leaf at a relative runtime path.
func (s *Structure) Set(path string, v any) error {
	n, err := s.Lookup(path)
	if err != nil {
		return err
	}
	p, ok := n.(*Primitive)
	if !ok {
		return fmt.Errorf("%w: %s is not a data node", ErrType, n.Path())
	}
	return p.Set(v)
}

// Value returns the value of the leaf at a relative runtime path.
func (s *Structure) Value(path string) (any, error) {
	n, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	p, ok := n.(*Primitive)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a data node", ErrType, n.Path())
	}
	return p.Value(), nil
}

// Children returns all children in DD order, creating them as needed.
func (s *Structure) Children() []Node {
	out := make([]Node, 0, len(s.meta.children))
	for _, cm := range s.meta.children {
		out = append(out, s.mustChild(cm.Name))
	}
	return out
}

// NonEmpty returns the children that hold data, in DD order.
func (s *Structure) NonEmpty() []Node {
	var out []Node
	for _, cm := range s.meta.children {
		c, ok := s.children[cm.Name]
		if !ok {
			if !s.isLazy() {
				continue
			}
			c = s.mustChild(cm.Name)
		}
		if c.HasValue() {
			out = append(out, c)
		}
	}
	return out
}

// HasValue implements Node.
func (s *Structure) HasValue() bool {
	if s.isLazy() {
		return len(s.NonEmpty()) > 0
	}
	for _, c := range s.children {
		if c.HasValue() {
			return true
		}
	}
	return false
}

func (s *Structure) setTop(top *Toplevel) {
	s.top = top
	for _, c := range s.children {
		switch n := c.(type) {
		case *Structure:
			n.setTop(top)
		case *StructArray:
			n.top = top
			for _, e := range n.elems {
				e.setTop(top)
			}
		case *Primitive:
			n.top = top
		}
	}
}

// =============================================================================
// StructArray
// =============================================================================

// StructArray is an array of structures (AoS).
type StructArray struct {
	nodeBase
	elems  []*Structure
	loaded bool
}

// Path implements Node.
func (a *StructArray) Path() string { return a.childPath() }

// Load fetches the size of a lazy array. It is a no-op for other arrays.
func (a *StructArray) Load() error {
	if !a.isLazy() || a.loaded {
		return nil
	}
	a.loaded = true
	n, err := a.top.loader.LoadSize(a)
	if err != nil {
		err = fmt.Errorf("load %s: %w", a.Path(), err)
		a.top.recordErr(err)
		return err
	}
	a.elems = a.makeElements(0, n)
	return nil
}

func (a *StructArray) ensure() {
	if a.isLazy() && !a.loaded {
		_ = a.Load()
	}
}

func (a *StructArray) makeElements(from, to int) []*Structure {
	out := make([]*Structure, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, newStructure(a.meta, a, a.top, i))
	}
	return out
}

// Len returns the number of elements.
func (a *StructArray) Len() int {
	a.ensure()
	return len(a.elems)
}

// At returns element i and panics when i is out of range.
func (a *StructArray) At(i int) *Structure {
	a.ensure()
	return a.elems[i]
}

// Get returns element i.
func (a *StructArray) Get(i int) (*Structure, error) {
	a.ensure()
	if i < 0 || i >= len(a.elems) {
		return nil, fmt.Errorf("%w: %s[%d] (length %d)", ErrIndex, a.Path(), i, len(a.elems))
	}
	return a.elems[i], nil
}

// Elements returns all elements.
func (a *StructArray) Elements() []*Structure {
	a.ensure()
	return a.elems
}

// Resize changes the number of elements. With keep, existing elements are retained
// (and truncated when shrinking); otherwise all elements are replaced by empty ones.
func (a *StructArray) Resize(n int, keep bool) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: negative size %d for %s", ErrIndex, n, a.Path())
	}
	if !keep {
		a.elems = a.makeElements(0, n)
		return nil
	}
	if n <= len(a.elems) {
		a.elems = a.elems[:n]
		return nil
	}
	a.elems = append(a.elems, a.makeElements(len(a.elems), n)...)
	return nil
}

// NewElement returns a detached, empty element for this array. Add it with Append.
func (a *StructArray) NewElement() *Structure {
	return newStructure(a.meta, a, a.top, -1)
}

// Append adds elements to the end of the array. Elements must be built from the
// same DD node, typically with NewElement or taken from another IDS of the same
// version.
func (a *StructArray) Append(elems ...*Structure) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	for _, e := range elems {
		if e.meta.Path != a.meta.Path {
			return fmt.Errorf("%w: cannot append %s element to %s", ErrType, e.meta.Path, a.meta.Path)
		}
		if e.isLazy() {
			return fmt.Errorf("%w: cannot append lazy loaded element to %s", ErrReadOnly, a.Path())
		}
	}
	for _, e := range elems {
		e.parent = a
		e.index = len(a.elems)
		e.setTop(a.top)
		a.elems = append(a.elems, e)
	}
	return nil
}

// HasValue implements Node.
func (a *StructArray) HasValue() bool { return a.Len() > 0 }

// Shape implements Node.
func (a *StructArray) Shape() []int { return []int{a.Len()} }

// =============================================================================
// Toplevel
// =============================================================================

// Toplevel is the root structure of an IDS.
type Toplevel struct {
	Structure
	version string
	lazy    bool
	loader  Loader
	errs    LoadErrors
}

func newToplevel(m *Metadata, version string) *Toplevel {
	t := &Toplevel{version: version}
	t.Structure = Structure{
		nodeBase: nodeBase{meta: m, top: t},
		index:    -1,
		children: make(map[string]Node),
	}
	return t
}

// Name returns the IDS name.
func (t *Toplevel) Name() string { return t.meta.Name }

// Version returns the DD version the IDS was created with.
func (t *Toplevel) Version() string { return t.version }

// IsLazy reports whether the IDS is lazy loaded (and therefore read-only).
func (t *Toplevel) IsLazy() bool { return t.lazy }

// Err returns the lazy loading failures encountered so far, or nil.
func (t *Toplevel) Err() error {
	if len(t.errs) == 0 {
		return nil
	}
	return t.errs
}

func (t *Toplevel) recordErr(err error) { t.errs = append(t.errs, err) }

// TimeMode returns ids_properties/homogeneous_time, EmptyInt when unset or undefined.
func (t *Toplevel) TimeMode() int32 {
	v, err := t.Value("ids_properties/homogeneous_time")
	if err != nil {
		return EmptyInt
	}
	return v.(int32)
}

// SetTimeMode sets ids_properties/homogeneous_time.
func (t *Toplevel) SetTimeMode(mode int32) error {
	return t.Set("ids_properties/homogeneous_time", mode)
}

// Time returns the toplevel time vector, nil when the IDS has none.
func (t *Toplevel) Time() []float64 {
	n, err := t.Child("time")
	if err != nil {
		return nil
	}
	p, ok := n.(*Primitive)
	if !ok || p.meta.DataType != TypeFlt || p.meta.NDim != 1 {
		return nil
	}
	return p.Floats()
}

func (t *Toplevel) String() string {
	return fmt.Sprintf("<IDS %s (DD %s)>", t.Name(), t.version)
}
