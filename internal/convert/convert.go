package convert

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// ErrMissingIDS is returned when the target DD has no IDS of the requested name.
var ErrMissingIDS = errors.New("IDS does not exist in target Data Dictionary")

// Options tune Convert.
type Options struct {
	// Deepcopy copies array buffers. By default the converted IDS shares its
	// N-dimensional arrays with the source.
	Deepcopy bool
}

type pairKey struct{ source, target *ids.Metadata }

// Path maps only depend on the two metadata trees, which are immutable.
var pathMaps sync.Map // pairKey -> *PathMap

// PathMapFor returns the (cached) path map between the definitions of IDS name in
// two factories.
func PathMapFor(name string, source, target *ids.Factory) (*PathMap, error) {
	sm, err := source.Metadata(name)
	if err != nil {
		return nil, err
	}
	tm, err := target.Metadata(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in DD %s", ErrMissingIDS, name, target.Version())
	}
	return cachedPathMap(sm, tm, source.Version(), target.Version()), nil
}

func cachedPathMap(sm, tm *ids.Metadata, sourceVersion, targetVersion string) *PathMap {
	key := pairKey{sm, tm}
	if pm, ok := pathMaps.Load(key); ok {
		return pm.(*PathMap)
	}
	pm := BuildPathMap(sm, tm, sourceVersion, targetVersion)
	actual, _ := pathMaps.LoadOrStore(key, pm)
	return actual.(*PathMap)
}

// Convert returns a new IDS holding the data of t in the DD version of target.
// Data without a counterpart in the target version is logged and skipped.
func Convert(t *ids.Toplevel, target *ids.Factory, opts Options) (*ids.Toplevel, error) {
	name := t.Name()
	if !target.Exists(name) {
		return nil, fmt.Errorf("%w: %s in DD %s", ErrMissingIDS, name, target.Version())
	}
	if t.Version() == target.Version() {
		return ids.Copy(t), nil
	}
	out, err := target.New(name)
	if err != nil {
		return nil, err
	}
	tm, _ := target.Metadata(name)
	pm := cachedPathMap(t.Metadata(), tm, t.Version(), target.Version())

	logging.Convert("starting conversion of IDS %s from DD %s to DD %s", name, t.Version(), target.Version())
	c := copier{pm: pm, opts: opts}
	if err := c.structure(&t.Structure, &out.Structure); err != nil {
		return nil, fmt.Errorf("convert %s: %w", name, err)
	}
	logging.Convert("conversion of IDS %s finished", name)
	return out, nil
}

type copier struct {
	pm   *PathMap
	opts Options
}

// structure copies the filled children of src into dst. dst corresponds to the
// target location of src, or to its closest mapped ancestor.
func (c copier) structure(src, dst *ids.Structure) error {
	for _, child := range src.NonEmpty() {
		m := child.Metadata()
		tp, ok := c.pm.Target(m.Path)
		if !ok {
			// Renames may skip a structure level; look for mapped descendants.
			if s, isStruct := child.(*ids.Structure); isStruct {
				if err := c.structure(s, dst); err != nil {
					return err
				}
				continue
			}
			logging.Convert("cannot find element %s in DD %s: data is not copied", child.Path(), c.pm.TargetVersion)
			continue
		}
		to, err := descend(dst, tp)
		if err != nil {
			logging.Convert("cannot copy %s to %s: %v", child.Path(), tp, err)
			continue
		}
		switch n := child.(type) {
		case *ids.Structure:
			if err := c.structure(n, to.(*ids.Structure)); err != nil {
				return err
			}
		case *ids.StructArray:
			ta := to.(*ids.StructArray)
			if err := ta.Resize(n.Len(), false); err != nil {
				return err
			}
			for i, e := range n.Elements() {
				if err := c.structure(e, ta.At(i)); err != nil {
					return err
				}
			}
		case *ids.Primitive:
			v := n.Value()
			if c.opts.Deepcopy {
				v = ids.CloneValue(v)
			}
			if err := to.(*ids.Primitive).Set(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// descend resolves the metadata path target below dst, whose metadata path must
// be a prefix of it. Only structure levels may be crossed.
func descend(dst *ids.Structure, target string) (ids.Node, error) {
	rel := target
	if base := dst.Metadata().Path; base != "" {
		if !strings.HasPrefix(target, base+"/") {
			return nil, fmt.Errorf("%s is not below %s", target, base)
		}
		rel = target[len(base)+1:]
	}
	var cur ids.Node = dst
	for _, part := range strings.Split(rel, "/") {
		s, ok := cur.(*ids.Structure)
		if !ok {
			return nil, fmt.Errorf("%s is not a structure", cur.Path())
		}
		next, err := s.Child(part)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
