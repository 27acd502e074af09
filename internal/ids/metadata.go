package ids

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Metadata describes one node of the Data Dictionary. It is built once while
// parsing the DD and must not be modified afterwards.
type Metadata struct {
	Name string
	// Path without indices, relative to the IDS toplevel ("" for the toplevel).
	Path string
	// PathDoc is the documentation path with dummy indices, e.g. "profiles_1d(itime)/zeff".
	PathDoc string
	// ParsedPath is Path parsed as a *Path.
	ParsedPath *Path

	Documentation string
	Units         string
	DataType      DataType
	NDim          int
	Type          IDSType

	// Coordinates has one entry per dimension.
	Coordinates []*Coordinate
	// CoordinatesSameAs has one entry per dimension; empty spec when unset.
	CoordinatesSameAs []*Coordinate

	TimebasePath    string
	MaxOccur        int
	LifecycleStatus string

	ChangeNBCVersion      string
	ChangeNBCDescription  string
	ChangeNBCPreviousName string

	AlternativeCoordinates []string

	// Attributes holds every raw DD attribute.
	Attributes map[string]string

	parent     *Metadata
	children   []*Metadata
	childIndex map[string]*Metadata
}

// NewMetadata builds the metadata of one DD element from its attributes and appends
// it to parent (nil for an IDS toplevel). Units "as_parent" resolve to the parent's.
func NewMetadata(attrs map[string]string, parent *Metadata) (*Metadata, error) {
	m := &Metadata{
		Name:       attrs["name"],
		Attributes: attrs,
		parent:     parent,
		childIndex: make(map[string]*Metadata),
	}
	if m.Name == "" {
		return nil, fmt.Errorf("DD element without a name")
	}

	var err error
	m.DataType, m.NDim, err = ParseDataType(attrs["data_type"])
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", m.Name, err)
	}
	if parent == nil {
		m.DataType, m.NDim = TypeStructure, 0
	} else {
		m.Path = attrs["path"]
		if m.Path == "" {
			m.Path = joinPath(parent.Path, m.Name)
		}
		m.PathDoc = attrs["path_doc"]
		if m.PathDoc == "" {
			m.PathDoc = m.Path
		}
		if m.DataType == TypeNone {
			m.DataType = TypeStructure
		}
	}
	m.ParsedPath, err = ParsePath(m.Path)
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", m.Name, err)
	}

	m.Documentation = attrs["documentation"]
	m.Units = attrs["units"]
	if m.Units == "as_parent" && parent != nil {
		m.Units = parent.Units
	}
	m.Type = ParseIDSType(attrs["type"])
	m.TimebasePath = attrs["timebasepath"]
	m.LifecycleStatus = attrs["lifecycle_status"]
	m.ChangeNBCVersion = attrs["change_nbc_version"]
	m.ChangeNBCDescription = attrs["change_nbc_description"]
	m.ChangeNBCPreviousName = attrs["change_nbc_previous_name"]
	if mo := attrs["maxoccur"]; mo != "" && mo != "unbounded" {
		m.MaxOccur, _ = strconv.Atoi(mo)
	}
	if alt := attrs["alternative_coordinate1"]; alt != "" {
		m.AlternativeCoordinates = strings.Split(alt, ";")
	}

	m.Coordinates = make([]*Coordinate, m.NDim)
	m.CoordinatesSameAs = make([]*Coordinate, m.NDim)
	for i := 0; i < m.NDim; i++ {
		m.Coordinates[i] = ParseCoordinate(attrs[fmt.Sprintf("coordinate%d", i+1)])
		m.CoordinatesSameAs[i] = ParseCoordinate(attrs[fmt.Sprintf("coordinate%d_same_as", i+1)])
	}

	if parent != nil {
		if _, dup := parent.childIndex[m.Name]; dup {
			return nil, fmt.Errorf("duplicate element %s in %s", m.Name, parent.Name)
		}
		parent.children = append(parent.children, m)
		parent.childIndex[m.Name] = m
	}
	return m, nil
}

func joinPath(a, b string) string {
	if a == "" {
		return b
	}
	return a + "/" + b
}

// Parent returns the parent metadata, nil for a toplevel.
func (m *Metadata) Parent() *Metadata { return m.parent }

// Children returns the child metadata in DD order.
func (m *Metadata) Children() []*Metadata { return m.children }

// Child returns the named child metadata.
func (m *Metadata) Child(name string) (*Metadata, bool) {
	c, ok := m.childIndex[name]
	return c, ok
}

// Lookup resolves a descendant by a "/"-separated path. Indices are ignored.
func (m *Metadata) Lookup(path string) (*Metadata, error) {
	if path == "" {
		return m, nil
	}
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	cur := m
	for _, part := range p.Parts {
		next, ok := cur.childIndex[part]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no element %s", ErrUnknownField, cur.describe(), part)
		}
		cur = next
	}
	return cur, nil
}

// Toplevel returns the IDS toplevel metadata.
func (m *Metadata) Toplevel() *Metadata {
	cur := m
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// IsDynamicAoS reports whether this is a time-dependent array of structures.
func (m *Metadata) IsDynamicAoS() bool {
	return m.DataType == TypeStructArray && m.Type == IDSTypeDynamic
}

// TimeIndex returns the dimension that has a time coordinate, or -1.
func (m *Metadata) TimeIndex() int {
	for i, c := range m.Coordinates {
		if c.IsTimeCoordinate {
			return i
		}
	}
	return -1
}

// AoSAncestors returns the array-of-structure ancestors from the toplevel down,
// including m itself when it is an AoS.
func (m *Metadata) AoSAncestors() []*Metadata {
	var out []*Metadata
	for cur := m; cur != nil; cur = cur.parent {
		if cur.DataType == TypeStructArray {
			out = append(out, cur)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Walk calls fn for m and all descendants, depth first in DD order.
func (m *Metadata) Walk(fn func(*Metadata) error) error {
	if err := fn(m); err != nil {
		return err
	}
	for _, c := range m.children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// SortedChildNames returns child names in lexical order.
func (m *Metadata) SortedChildNames() []string {
	names := make([]string, 0, len(m.children))
	for _, c := range m.children {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func (m *Metadata) describe() string {
	if m.Path == "" {
		return m.Name
	}
	return m.Path
}

func (m *Metadata) String() string {
	if m.DataType.IsPrimitive() {
		return fmt.Sprintf("%s (%s_%dD)", m.describe(), m.DataType, m.NDim)
	}
	return fmt.Sprintf("%s (%s)", m.describe(), m.DataType)
}
