package ids

import (
	"strconv"
	"strings"
	"sync"

	"imaspy/internal/logging"
)

// Coordinate is a parsed coordinate specification from the DD.
//
//	"1...N"                        index, any size
//	"1...3"                        index, at most 3 items
//	"time"                         the toplevel time node
//	"profiles_1d(itime)/grid/rho_tor_norm OR profiles_1d(itime)/grid/psi"
//	"beam(i2)/length OR 1...1"     either length, or size one
//
// Coordinates are immutable and interned by their spec string.
type Coordinate struct {
	spec string

	// References to other nodes, in DD order.
	References []*Path
	// MaxSize is the maximum size when the coordinate may be an index, 0 if unbounded
	// or not an index.
	MaxSize int

	HasValidation    bool
	HasAlternatives  bool
	IsTimeCoordinate bool
}

var coordinateCache sync.Map // string -> *Coordinate

// ParseCoordinate parses (and interns) a coordinate specification.
// Invalid alternatives are ignored.
func ParseCoordinate(spec string) *Coordinate {
	if c, ok := coordinateCache.Load(spec); ok {
		return c.(*Coordinate)
	}
	c := &Coordinate{spec: spec}
	for _, alt := range strings.Split(spec, " OR ") {
		switch {
		case strings.HasPrefix(alt, "1..."):
			if alt == "1...N" {
				continue
			}
			n, err := strconv.Atoi(alt[4:])
			if err != nil {
				logging.Get(logging.CategoryIDS).Debug("ignoring invalid coordinate specifier %q", alt)
				continue
			}
			c.MaxSize = n
		case alt != "":
			p, err := ParsePath(alt)
			if err != nil {
				logging.Get(logging.CategoryIDS).Debug("ignoring invalid coordinate specifier %q: %v", alt, err)
				continue
			}
			c.References = append(c.References, p)
			if p.IsTimePath() {
				c.IsTimeCoordinate = true
			}
		}
	}
	rules := len(c.References)
	if c.MaxSize > 0 {
		rules++
	}
	c.HasValidation = rules > 0
	c.HasAlternatives = rules > 1
	actual, _ := coordinateCache.LoadOrStore(spec, c)
	return actual.(*Coordinate)
}

func (c *Coordinate) String() string { return c.spec }

// IsIndex reports whether the coordinate is a plain index ("1...N" or "1...K").
func (c *Coordinate) IsIndex() bool {
	return len(c.References) == 0
}
