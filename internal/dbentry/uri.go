package dbentry

import (
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
)

// Backends lists the supported backend names.
var Backends = []string{"memory", "ascii", "sqlite", "netcdf"}

// URI identifies a data entry: imas:<backend>?path=<path>[;key=value...].
type URI struct {
	Backend string
	Path    string
	// Options holds the query keys other than path.
	Options map[string]string
}

// ParseURI parses an IMAS URI. A plain file name ending with .nc selects the netcdf
// backend. Query parameters may be separated by ";" or "&".
func ParseURI(s string) (URI, error) {
	if !strings.HasPrefix(s, "imas:") {
		if strings.HasSuffix(s, ".nc") {
			return URI{Backend: "netcdf", Path: s, Options: map[string]string{}}, nil
		}
		return URI{}, fmt.Errorf("invalid URI %q: expected imas:<backend>?path=... or a .nc file", s)
	}
	rest := strings.TrimPrefix(s, "imas:")
	rest = strings.TrimPrefix(rest, "//")
	backendName, query, _ := strings.Cut(rest, "?")
	u := URI{Backend: strings.ToLower(backendName), Options: map[string]string{}}
	if !slices.Contains(Backends, u.Backend) {
		return URI{}, fmt.Errorf("invalid URI %q: unsupported backend %q (supported: %s)", s, backendName, strings.Join(Backends, ", "))
	}
	for _, kv := range strings.FieldsFunc(query, func(r rune) bool { return r == ';' || r == '&' }) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return URI{}, fmt.Errorf("invalid URI %q: malformed query parameter %q", s, kv)
		}
		if k == "path" {
			u.Path = v
			continue
		}
		u.Options[k] = v
	}
	if u.Path == "" {
		return URI{}, fmt.Errorf("invalid URI %q: path is required", s)
	}
	return u, nil
}

// LegacyURI returns the URI of a (backend, database, pulse, run) entry.
func LegacyURI(backendName, db string, pulse, run int) string {
	return fmt.Sprintf("imas:%s?path=%s", backendName, path.Join(db, strconv.Itoa(pulse), strconv.Itoa(run)))
}

// String formats u as an imas: URI. Options are sorted by key.
func (u URI) String() string {
	var b strings.Builder
	b.WriteString("imas:")
	b.WriteString(u.Backend)
	b.WriteString("?path=")
	b.WriteString(u.Path)
	keys := make([]string, 0, len(u.Options))
	for k := range u.Options {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString(";" + k + "=" + u.Options[k])
	}
	return b.String()
}
