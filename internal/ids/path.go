package ids

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// IndexKind classifies the index attached to a path part.
type IndexKind int

const (
	IndexNone  IndexKind = iota
	IndexDummy           // itime, i1, i2, ...
	IndexInt             // explicit 1-based index
	IndexSlice           // start:stop, either bound optional
	IndexPath            // another path whose (INT_0D) value is the index
)

// PathIndex is the index of one path part.
type PathIndex struct {
	Kind  IndexKind
	Dummy string
	Int   int
	Start int // 0 when absent
	Stop  int // 0 when absent
	Path  *Path
}

func (i PathIndex) String() string {
	switch i.Kind {
	case IndexDummy:
		return i.Dummy
	case IndexInt:
		return strconv.Itoa(i.Int)
	case IndexSlice:
		var b strings.Builder
		if i.Start > 0 {
			b.WriteString(strconv.Itoa(i.Start))
		}
		b.WriteByte(':')
		if i.Stop > 0 {
			b.WriteString(strconv.Itoa(i.Stop))
		}
		return b.String()
	case IndexPath:
		return i.Path.String()
	default:
		return ""
	}
}

// Path is a parsed DD path such as "profiles_1d(itime)/ion(i1)/element(1)/a".
// Paths are immutable and interned.
type Path struct {
	raw     string
	Parts   []string
	Indices []PathIndex
}

var (
	numberRe  = regexp.MustCompile(`^\d+$`)
	sliceRe   = regexp.MustCompile(`^\d*:\d*$`)
	dummyRe   = regexp.MustCompile(`^(itime|i\d)$`)
	fieldName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	pathCache sync.Map // string -> *Path
)

// ParsePath parses (and interns) a DD path.
func ParsePath(s string) (*Path, error) {
	if p, ok := pathCache.Load(s); ok {
		return p.(*Path), nil
	}
	p := &Path{raw: s}
	if err := p.parse(); err != nil {
		return nil, err
	}
	actual, _ := pathCache.LoadOrStore(s, p)
	return actual.(*Path), nil
}

// MustParsePath is like ParsePath but panics on invalid input.
func MustParsePath(s string) *Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// splitOnParens splits into [before (, inside (), between )(, ..., after last )].
func splitOnParens(s string) ([]string, error) {
	var out []string
	cur := 0
	for {
		open := indexFrom(s, '(', cur)
		closing := indexFrom(s, ')', cur)
		if open == -1 {
			if closing != -1 {
				return nil, fmt.Errorf("unmatched parentheses in: %s", s)
			}
			out = append(out, s[cur:])
			return out, nil
		}
		if closing == -1 || open > closing {
			return nil, fmt.Errorf("unmatched parentheses in: %s", s)
		}
		out = append(out, s[cur:open])
		depth := 0
		end := -1
		for i := open; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				end = i
				break
			}
		}
		if end == -1 {
			return nil, fmt.Errorf("unmatched parentheses in: %s", s)
		}
		out = append(out, s[open+1:end])
		cur = end + 1
	}
}

func indexFrom(s string, c byte, from int) int {
	i := strings.IndexByte(s[from:], c)
	if i < 0 {
		return -1
	}
	return i + from
}

func (p *Path) addParts(segment string) error {
	segment = strings.TrimPrefix(segment, "/")
	for _, part := range strings.Split(segment, "/") {
		p.Parts = append(p.Parts, part)
		p.Indices = append(p.Indices, PathIndex{})
	}
	return nil
}

func (p *Path) parse() error {
	if p.raw == "" {
		return nil
	}
	split, err := splitOnParens(p.raw)
	if err != nil {
		return err
	}
	for i := 0; i+1 < len(split); i += 2 {
		part, index := split[i], split[i+1]
		if part == "" || part == "/" {
			return fmt.Errorf("invalid empty node name in path: %s", p.raw)
		}
		if err := p.addParts(part); err != nil {
			return err
		}
		idx, err := parseIndex(index)
		if err != nil {
			return fmt.Errorf("invalid index in path %s: %w", p.raw, err)
		}
		p.Indices[len(p.Indices)-1] = idx
	}
	if last := split[len(split)-1]; last != "" {
		if err := p.addParts(last); err != nil {
			return err
		}
	}
	for _, part := range p.Parts {
		if !fieldName.MatchString(part) || strings.Contains(part, "__") {
			return fmt.Errorf("invalid node name '%s' in path: %s", part, p.raw)
		}
	}
	return nil
}

func parseIndex(s string) (PathIndex, error) {
	switch {
	case dummyRe.MatchString(s):
		return PathIndex{Kind: IndexDummy, Dummy: s}, nil
	case numberRe.MatchString(s):
		n, err := strconv.Atoi(s)
		if err != nil {
			return PathIndex{}, err
		}
		return PathIndex{Kind: IndexInt, Int: n}, nil
	case sliceRe.MatchString(s):
		start, stop, _ := strings.Cut(s, ":")
		idx := PathIndex{Kind: IndexSlice}
		if start != "" {
			idx.Start, _ = strconv.Atoi(start)
		}
		if stop != "" {
			idx.Stop, _ = strconv.Atoi(stop)
		}
		return idx, nil
	default:
		sub, err := ParsePath(s)
		if err != nil {
			return PathIndex{}, err
		}
		return PathIndex{Kind: IndexPath, Path: sub}, nil
	}
}

func (p *Path) String() string { return p.raw }

// Len returns the number of parts.
func (p *Path) Len() int { return len(p.Parts) }

// IsTimePath reports whether the path points to a "time" node.
func (p *Path) IsTimePath() bool {
	return len(p.Parts) > 0 && p.Parts[len(p.Parts)-1] == "time"
}

// Plain returns the path without indices, e.g. "profiles_1d/zeff".
func (p *Path) Plain() string { return strings.Join(p.Parts, "/") }

// IsAncestorOf reports whether p is a strict prefix of other, ignoring indices.
func (p *Path) IsAncestorOf(other *Path) bool {
	if len(p.Parts) >= len(other.Parts) {
		return false
	}
	for i, part := range p.Parts {
		if other.Parts[i] != part {
			return false
		}
	}
	return true
}

// Goto resolves the path starting at the toplevel of from. Dummy indices are taken
// from the array-of-structure ancestors of from that share the same path prefix.
func (p *Path) Goto(from Node) (Node, error) {
	top := from.Toplevel()
	if top == nil {
		return nil, fmt.Errorf("%w: node %s is not attached to a toplevel", ErrCoordinate, from.Path())
	}

	// Plain AoS path -> 0-based index for every AoS element above from.
	lineage := make(map[string]int)
	for n := Node(from); n != nil; n = n.Parent() {
		if s, ok := n.(*Structure); ok && s.index >= 0 {
			lineage[s.meta.Path] = s.index
		}
	}

	var cur Node = &top.Structure
	for i, part := range p.Parts {
		st, ok := cur.(*Structure)
		if !ok {
			return nil, fmt.Errorf("%w: cannot resolve %s: %s is not a structure", ErrCoordinate, p, cur.Path())
		}
		child, err := st.Child(part)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot resolve %s: %v", ErrCoordinate, p, err)
		}
		idx := p.Indices[i]
		if idx.Kind == IndexNone {
			cur = child
			continue
		}
		aos, ok := child.(*StructArray)
		if !ok {
			return nil, fmt.Errorf("%w: cannot index non-array %s in %s", ErrCoordinate, child.Path(), p)
		}
		var pos int
		switch idx.Kind {
		case IndexDummy:
			n, found := lineage[aos.meta.Path]
			if !found {
				return nil, fmt.Errorf("%w: %w %s of %s from %s", ErrCoordinate, errUnresolvedDummy, idx.Dummy, p, from.Path())
			}
			pos = n
		case IndexInt:
			pos = idx.Int - 1
		case IndexPath:
			target, err := idx.Path.Goto(from)
			if err != nil {
				return nil, err
			}
			prim, ok := target.(*Primitive)
			if !ok || prim.meta.DataType != TypeInt || prim.meta.NDim != 0 {
				return nil, fmt.Errorf("%w: indirect index %s must be an INT_0D", ErrCoordinate, idx.Path)
			}
			if !prim.HasValue() {
				return nil, fmt.Errorf("%w: indirect index %s is not set", ErrCoordinate, idx.Path)
			}
			pos = int(prim.Int()) - 1
		default:
			return nil, fmt.Errorf("%w: slice index not supported in %s", ErrCoordinate, p)
		}
		if pos < 0 || pos >= aos.Len() {
			return nil, fmt.Errorf("%w: index %d out of range for %s (length %d)", ErrCoordinate, pos+1, aos.Path(), aos.Len())
		}
		cur = aos.At(pos)
	}
	return cur, nil
}
