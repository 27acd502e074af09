// Package convert migrates IDS data between Data Dictionary versions, following the
// non-backwards-compatible (NBC) renames recorded in the newer DD.
package convert

import (
	"sort"
	"strings"

	"imaspy/internal/dd"
	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// renames are the NBC descriptions that move a node to a new name.
var renames = map[string]bool{
	"aos_renamed":       true,
	"leaf_renamed":      true,
	"structure_renamed": true,
}

// PathMap maps metadata paths of one IDS between two DD versions.
type PathMap struct {
	SourceVersion string
	TargetVersion string

	// Paths maps a source path to the target path holding the same data.
	Paths map[string]string
	// Dropped lists source paths that have no target, or whose target has a
	// different data type. Descendants of a dropped path are not listed.
	Dropped map[string]string
}

// Target returns the target path for a source path.
func (pm *PathMap) Target(source string) (string, bool) {
	t, ok := pm.Paths[source]
	return t, ok
}

// TranslatePath maps a runtime path of the source version, such as
// "ec/launcher[1]/steering_angle_pol/reference", to the runtime path holding the
// same data in the target version. Indices are kept on the mapped arrays of
// structures.
func (pm *PathMap) TranslatePath(runtime string) (string, bool) {
	if runtime == "" {
		return "", true
	}
	type indexed struct {
		prefix string
		index  string
	}
	var (
		plain []string
		idx   []indexed
	)
	for _, seg := range strings.Split(runtime, "/") {
		name, index, hasIndex := strings.Cut(seg, "[")
		plain = append(plain, name)
		if hasIndex {
			idx = append(idx, indexed{prefix: strings.Join(plain, "/"), index: "[" + index})
		}
	}
	target, ok := pm.Paths[strings.Join(plain, "/")]
	if !ok {
		return "", false
	}
	parts := strings.Split(target, "/")
	for _, ix := range idx {
		tp, ok := pm.Paths[ix.prefix]
		if !ok {
			return "", false
		}
		n := strings.Count(tp, "/")
		if n >= len(parts) || !strings.HasPrefix(target, tp) {
			return "", false
		}
		parts[n] += ix.index
	}
	return strings.Join(parts, "/"), true
}

// DroppedPaths returns the dropped source paths in lexical order.
func (pm *PathMap) DroppedPaths() []string {
	out := make([]string, 0, len(pm.Dropped))
	for p := range pm.Dropped {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// BuildPathMap computes the path map from source to target metadata (both IDS
// toplevels). For every node of the newer tree its location in the older tree is
// derived from its parent's location, following renames whose change_nbc_version is
// newer than the older version.
func BuildPathMap(source, target *ids.Metadata, sourceVersion, targetVersion string) *PathMap {
	pm := &PathMap{
		SourceVersion: sourceVersion,
		TargetVersion: targetVersion,
		Paths:         make(map[string]string),
		Dropped:       make(map[string]string),
	}
	newer, older, olderVersion := target, source, sourceVersion
	newIsSource := dd.CompareVersions(sourceVersion, targetVersion) > 0
	if newIsSource {
		newer, older, olderVersion = source, target, targetVersion
	}

	// new path -> old path
	matched := make(map[string]string)
	var visit func(n *ids.Metadata, oldParent *ids.Metadata)
	visit = func(n *ids.Metadata, oldParent *ids.Metadata) {
		for _, c := range n.Children() {
			old := previous(c, oldParent, olderVersion)
			if old == nil {
				continue
			}
			if !compatible(c, old) {
				src := old.Path
				if newIsSource {
					src = c.Path
				}
				pm.Dropped[src] = "incompatible type in DD " + targetVersion
				logging.ConvertDebug("%s and %s have incompatible types", c, old)
				continue
			}
			matched[c.Path] = old.Path
			if c.DataType == ids.TypeStructure || c.DataType == ids.TypeStructArray {
				visit(c, old)
			}
		}
	}
	visit(newer, older)

	for n, o := range matched {
		if newIsSource {
			pm.Paths[n] = o
		} else {
			pm.Paths[o] = n
		}
	}

	// Anything in the source tree that nothing maps to is dropped.
	_ = source.Walk(func(m *ids.Metadata) error {
		if m == source {
			return nil
		}
		if _, ok := pm.Paths[m.Path]; ok {
			return nil
		}
		if _, ok := pm.Dropped[m.Path]; !ok && !hasDroppedAncestor(pm, m) {
			pm.Dropped[m.Path] = "not present in DD " + targetVersion
		}
		return nil
	})
	return pm
}

func hasDroppedAncestor(pm *PathMap, m *ids.Metadata) bool {
	for p := m.Parent(); p != nil && p.Path != ""; p = p.Parent() {
		if _, ok := pm.Dropped[p.Path]; ok {
			return true
		}
	}
	return false
}

// previous finds the node of the older tree that corresponds to n.
func previous(n, oldParent *ids.Metadata, olderVersion string) *ids.Metadata {
	if renames[n.ChangeNBCDescription] && n.ChangeNBCPreviousName != "" &&
		dd.CompareVersions(n.ChangeNBCVersion, olderVersion) > 0 {
		cur := oldParent
		for _, part := range strings.Split(n.ChangeNBCPreviousName, "/") {
			next, ok := cur.Child(part)
			if !ok {
				logging.ConvertDebug("cannot resolve previous name %q of %s", n.ChangeNBCPreviousName, n.Path)
				cur = nil
				break
			}
			cur = next
		}
		if cur != nil {
			logging.ConvertDebug("mapping %s -> %s", n.Path, cur.Path)
			return cur
		}
	}
	old, ok := oldParent.Child(n.Name)
	if !ok {
		return nil
	}
	return old
}

func compatible(a, b *ids.Metadata) bool {
	return a.DataType == b.DataType && a.NDim == b.NDim
}
