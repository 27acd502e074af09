package netcdf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// ErrCircularCoordinates is returned when DD coordinates reference each other.
var ErrCircularCoordinates = errors.New("unable to resolve Data Dictionary coordinates, does the DD contain circular coordinate references?")

// Metadata holds the netCDF dimensions and coordinates of every path of an IDS.
//
// It is built in three phases: DD coordinates are parsed for every node, dimensions
// shared through coordinate references or same_as are resolved, and finally the
// dimensions of array of structure ancestors are prepended (tensorization).
type Metadata struct {
	IDS *ids.Metadata

	// Paths lists all DD paths in DD order.
	Paths []string
	// AoS maps a path to its nearest array of structures ancestor.
	AoS map[string]string
	// TimeDimensions are the dimensions of (heterogeneous) time coordinates.
	TimeDimensions map[string]bool

	timeCoordinates map[string]bool
	dimensions      map[string][]string
	coordinates     map[string][]string

	// parse state
	pending  []pendingDim
	utDims   map[string][]string
	utCoords map[string][]string
	order    []string
}

type pendingDim struct {
	path     string
	dim      int
	target   string
	targetAt int
}

var metadataCache sync.Map // *ids.Metadata -> *Metadata

// MetadataFor returns the (cached) netCDF metadata of an IDS toplevel.
func MetadataFor(m *ids.Metadata) (*Metadata, error) {
	if v, ok := metadataCache.Load(m); ok {
		return v.(*Metadata), nil
	}
	nm, err := NewMetadata(m)
	if err != nil {
		return nil, err
	}
	v, _ := metadataCache.LoadOrStore(m, nm)
	return v.(*Metadata), nil
}

// NewMetadata scans the metadata tree of an IDS toplevel.
func NewMetadata(m *ids.Metadata) (*Metadata, error) {
	if m.Parent() != nil {
		return nil, fmt.Errorf("toplevel IDS metadata is required, got %s", m.Path)
	}
	timer := logging.StartTimer(logging.CategoryNetCDF, "NewMetadata "+m.Name)
	defer timer.Stop()

	nm := &Metadata{
		IDS:             m,
		AoS:             make(map[string]string),
		TimeDimensions:  make(map[string]bool),
		timeCoordinates: make(map[string]bool),
		dimensions:      make(map[string][]string),
		coordinates:     make(map[string][]string),
		utDims:          make(map[string][]string),
		utCoords:        make(map[string][]string),
	}
	nm.parse(m, "", 0)
	if err := nm.resolvePending(); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	nm.tensorize()
	for d := range nm.TimeDimensions {
		name, _, _ := strings.Cut(d, ":")
		nm.timeCoordinates[name] = true
	}
	nm.pending, nm.utDims, nm.utCoords, nm.order = nil, nil, nil, nil
	return nm, nil
}

// VarName converts a DD path to a variable name.
func VarName(path string) string { return strings.ReplaceAll(path, "/", ".") }

// PathOf converts a variable name to a DD path.
func PathOf(varName string) string { return strings.ReplaceAll(varName, ".", "/") }

func (nm *Metadata) parse(m *ids.Metadata, parentAoS string, aosLevel int) {
	for _, c := range m.Children() {
		nm.Paths = append(nm.Paths, c.Path)
		if parentAoS != "" {
			nm.AoS[c.Path] = parentAoS
		}
		switch {
		case c.DataType == ids.TypeStructure:
			nm.parse(c, parentAoS, aosLevel)
		case c.NDim > 0:
			nm.parseDimensions(c, aosLevel)
			if c.DataType == ids.TypeStructArray {
				nm.parse(c, c.Path, aosLevel+1)
			}
		default:
			nm.setUT(c.Path, []string{})
		}
	}
}

func (nm *Metadata) setUT(path string, dims []string) {
	nm.utDims[path] = dims
	nm.order = append(nm.order, path)
}

func (nm *Metadata) parseDimensions(m *ids.Metadata, aosLevel int) {
	dims := make([]string, m.NDim)
	var coords []string
	for i, coord := range m.Coordinates {
		dim := ""
		switch len(coord.References) {
		case 0:
			if sameAs := m.CoordinatesSameAs[i]; len(sameAs.References) > 0 {
				nm.pending = append(nm.pending, pendingDim{m.Path, i, sameAs.References[0].Plain(), i})
			} else {
				dim = indexDimension(m, i, aosLevel)
			}
		case 1:
			ref := coord.References[0]
			if m.ParsedPath.IsAncestorOf(ref) {
				// the coordinate is inside this AoS, e.g. profiles_1d -> profiles_1d/time
				dim = VarName(ref.Plain())
			} else {
				nm.pending = append(nm.pending, pendingDim{m.Path, i, ref.Plain(), 0})
				coords = append(coords, VarName(ref.Plain()))
			}
		default:
			// alternatives get a dimension of their own
			dim = indexDimension(m, i, aosLevel)
		}
		dims[i] = dim
		if dim != "" && coord.IsTimeCoordinate {
			nm.TimeDimensions[dim] = true
		}
	}
	nm.setUT(m.Path, dims)
	if len(coords) > 0 {
		nm.utCoords[m.Path] = coords
	}
}

// indexDimension names the dimension of an index coordinate after the path. Data
// that is more than one dimensional after tensorization gets a ":<dim>" suffix.
func indexDimension(m *ids.Metadata, i, aosLevel int) string {
	name := VarName(m.Path)
	if aosLevel+m.NDim != 1 && m.DataType != ids.TypeStructArray {
		name += ":" + strconv.Itoa(i)
	}
	return name
}

func (nm *Metadata) resolvePending() error {
	for len(nm.pending) > 0 {
		var left []pendingDim
		for _, p := range nm.pending {
			target, ok := nm.utDims[p.target]
			if !ok || p.targetAt >= len(target) {
				// unknown coordinate target: treat the dimension as an index
				m, err := nm.IDS.Lookup(p.path)
				if err != nil {
					return err
				}
				logging.Get(logging.CategoryNetCDF).Debug("coordinate %s of %s cannot be resolved, using an index dimension", p.target, p.path)
				nm.utDims[p.path][p.dim] = VarName(m.Path) + ":" + strconv.Itoa(p.dim)
				continue
			}
			if target[p.targetAt] == "" {
				left = append(left, p)
				continue
			}
			nm.utDims[p.path][p.dim] = target[p.targetAt]
		}
		if len(left) == len(nm.pending) {
			return ErrCircularCoordinates
		}
		nm.pending = left
	}
	return nil
}

func (nm *Metadata) tensorize() {
	for _, path := range nm.order {
		var aosDims, aosCoords []string
		if aos, ok := nm.AoS[path]; ok {
			aosDims = nm.dimensions[aos]
			aosCoords = nm.coordinates[aos]
		}
		dims := make([]string, 0, len(aosDims)+len(nm.utDims[path]))
		nm.dimensions[path] = append(append(dims, aosDims...), nm.utDims[path]...)
		if len(aosCoords) > 0 || len(nm.utCoords[path]) > 0 {
			coords := make([]string, 0, len(aosCoords)+len(nm.utCoords[path]))
			nm.coordinates[path] = append(append(coords, aosCoords...), nm.utCoords[path]...)
		}
	}
}

// Dimensions returns the dimension names of the variable of path. With homogeneous
// time, time dimensions are replaced by the root "time" dimension.
func (nm *Metadata) Dimensions(path string, homogeneous bool) []string {
	dims, ok := nm.dimensions[path]
	if !ok {
		return nil
	}
	out := make([]string, len(dims))
	for i, d := range dims {
		if homogeneous && nm.TimeDimensions[d] {
			d = "time"
		}
		out[i] = d
	}
	return out
}

// Coordinates returns the CF "coordinates" attribute of the variable of path.
func (nm *Metadata) Coordinates(path string, homogeneous bool) string {
	coords := nm.coordinates[path]
	out := make([]string, len(coords))
	for i, c := range coords {
		if homogeneous && nm.timeCoordinates[c] {
			c = "time"
		}
		out[i] = c
	}
	return strings.Join(out, " ")
}
