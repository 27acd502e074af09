package ids

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
)

// IterOptions selects the nodes visited by Walk and All.
type IterOptions struct {
	// LeafOnly skips structures and arrays of structures.
	LeafOnly bool
	// VisitEmpty also visits nodes without data.
	VisitEmpty bool
	// IncludeNode includes the starting node itself.
	IncludeNode bool
}

// SkipChildren can be returned by a Walk callback to not descend into a node.
var SkipChildren = errors.New("skip children")

// Walk calls fn for every node below n in DD order (array elements in index order).
func Walk(n Node, opts IterOptions, fn func(Node) error) error {
	err := walk(n, opts, opts.IncludeNode, fn)
	if errors.Is(err, SkipChildren) {
		return nil
	}
	return err
}

func walk(n Node, opts IterOptions, self bool, fn func(Node) error) error {
	if self {
		_, isLeaf := n.(*Primitive)
		if (isLeaf || !opts.LeafOnly) && (opts.VisitEmpty || n.HasValue()) {
			if err := fn(n); err != nil {
				if errors.Is(err, SkipChildren) {
					return nil
				}
				return err
			}
		}
	}
	switch t := n.(type) {
	case *Toplevel:
		return walk(&t.Structure, opts, false, fn)
	case *Structure:
		var children []Node
		if opts.VisitEmpty {
			children = t.Children()
		} else {
			children = t.NonEmpty()
		}
		for _, c := range children {
			if err := walk(c, opts, true, fn); err != nil {
				return err
			}
		}
	case *StructArray:
		for _, e := range t.Elements() {
			if err := walk(e, opts, true, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// All returns an iterator over the nodes Walk would visit.
func All(n Node, opts IterOptions) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		stop := errors.New("stop")
		_ = Walk(n, opts, func(c Node) error {
			if !yield(c) {
				return stop
			}
			return nil
		})
	}
}

// FindPaths returns the DD paths (without indices) of an IDS that match pattern.
func FindPaths(m *Metadata, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	var out []string
	_ = m.Walk(func(c *Metadata) error {
		if c.Path != "" && re.MatchString(c.Path) {
			out = append(out, c.Path)
		}
		return nil
	})
	return out, nil
}
