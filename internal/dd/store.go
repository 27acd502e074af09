// Package dd locates, parses and caches IMAS Data Dictionary definitions.
package dd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"imaspy/assets"
	"imaspy/internal/config"
	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

var (
	// ErrNotFound is returned when no DD definitions can be found at all.
	ErrNotFound = errors.New("no Data Dictionary definitions found")
	// ErrUnknownVersion is returned for a DD version no source provides.
	ErrUnknownVersion = errors.New("unknown Data Dictionary version")
)

// Options configures a Store.
type Options struct {
	// ZipPaths are searched first, in order. Paths that are not files are skipped.
	ZipPaths []string
	// DefaultVersion is used by Resolve when no version is requested.
	DefaultVersion string
	// CacheSize is the number of parsed definitions kept in memory (default 4).
	CacheSize int
	// NoStandardLocations skips ./IDSDef.zip and <config dir>/IDSDef.zip.
	NoStandardLocations bool
	// NoEmbedded skips the definitions bundled with the binary.
	NoEmbedded bool
}

// Store locates DD definitions in IDSDef.zip files and the bundled assets.
// It is safe for concurrent use.
type Store struct {
	sources        []source
	defaultVersion string

	mu    sync.Mutex
	cache *lru.Cache
}

// NewStore builds a store. Sources are searched in this order: opts.ZipPaths,
// ./IDSDef.zip, <config dir>/IDSDef.zip, the embedded definitions.
func NewStore(opts Options) *Store {
	if opts.CacheSize < 1 {
		opts.CacheSize = 4
	}
	s := &Store{
		defaultVersion: opts.DefaultVersion,
		cache:          lru.New(opts.CacheSize),
	}
	for _, p := range opts.ZipPaths {
		if isFile(p) {
			s.sources = append(s.sources, zipSource{path: p})
		} else if p != "" {
			logging.DDWarn("ignoring DD zip %s: not a file", p)
		}
	}
	if !opts.NoStandardLocations {
		s.sources = append(s.sources,
			zipSource{path: "IDSDef.zip"},
			zipSource{path: filepath.Join(config.ConfigDir(), "IDSDef.zip")},
		)
	}
	if !opts.NoEmbedded {
		s.sources = append(s.sources, fsSource{name: "<embedded>", fsys: assets.DataDictionary})
	}
	return s
}

// NewStoreFromConfig builds a store from the imaspy configuration, which already
// carries $IMAS_VERSION and $IMASPY_DDZIP.
func NewStoreFromConfig(cfg *config.Config) *Store {
	return NewStore(Options{
		ZipPaths:       cfg.DDZipLocations(),
		DefaultVersion: cfg.DataDictionary.DefaultVersion,
		CacheSize:      cfg.DataDictionary.CacheSize,
	})
}

// Sources returns the names of the configured sources in search order.
func (s *Store) Sources() []string {
	out := make([]string, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.Name()
	}
	return out
}

// Versions returns every available version, de-duplicated and sorted oldest first.
func (s *Store) Versions() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, src := range s.sources {
		vs, err := src.Versions()
		if err != nil {
			return nil, err
		}
		for _, v := range vs {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	SortVersions(out)
	return out, nil
}

// Latest returns the newest available release. Development builds are only
// returned when no release is available.
func (s *Store) Latest() (string, error) {
	vs, err := s.Versions()
	if err != nil {
		return "", err
	}
	for i := len(vs) - 1; i >= 0; i-- {
		if !IsDevVersion(vs[i]) {
			return vs[i], nil
		}
	}
	return vs[len(vs)-1], nil
}

// Resolve maps an empty version to the default version, or else the latest one.
func (s *Store) Resolve(version string) (string, error) {
	if version != "" {
		return version, nil
	}
	if s.defaultVersion != "" {
		return s.defaultVersion, nil
	}
	return s.Latest()
}

// XML returns the definition of version from the first source providing it.
func (s *Store) XML(version string) ([]byte, error) {
	if CompareVersions(version, config.OldestSupportedDDVersion) < 0 {
		logging.DDWarn("DD version %s is older than %s, the oldest supported version", version, config.OldestSupportedDDVersion)
	}
	for _, src := range s.sources {
		data, err := src.Read(version)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read DD %s from %s: %w", version, src.Name(), err)
		}
		logging.DDDebug("found DD %s in %s", version, src.Name())
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
}

// Load returns the parsed definition of version, from cache when possible.
// An empty version is resolved first.
func (s *Store) Load(version string) (*Definition, error) {
	version, err := s.Resolve(version)
	if err != nil {
		return nil, err
	}
	key := "version:" + version
	if d, ok := s.cached(key); ok {
		return d, nil
	}
	data, err := s.XML(version)
	if err != nil {
		return nil, err
	}
	d, err := parseTimed(data, version, version)
	if err != nil {
		return nil, fmt.Errorf("DD %s: %w", version, err)
	}
	if d.version != version {
		logging.DDWarn("DD %s declares version %s", version, d.version)
	}
	s.store(key, d)
	return d, nil
}

// LoadFile parses a DD XML file outside of any source, e.g. a development build.
func (s *Store) LoadFile(path string) (*Definition, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read DD XML: %w", err)
	}
	key := fmt.Sprintf("file:%s:%d", abs, st.ModTime().UnixNano())
	if d, ok := s.cached(key); ok {
		return d, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read DD XML: %w", err)
	}
	fallback := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	d, err := parseTimed(data, fallback, abs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	s.store(key, d)
	return d, nil
}

// NewFactory returns an IDS factory for version (resolved when empty).
func (s *Store) NewFactory(version string) (*ids.Factory, error) {
	d, err := s.Load(version)
	if err != nil {
		return nil, err
	}
	return ids.NewFactory(d), nil
}

// NewFactoryFromXML returns an IDS factory for a DD XML file.
func (s *Store) NewFactoryFromXML(path string) (*ids.Factory, error) {
	d, err := s.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return ids.NewFactory(d), nil
}

func (s *Store) cached(key string) (*Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Definition), true
}

func (s *Store) store(key string, d *Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(key, d)
}

func parseTimed(data []byte, fallbackVersion, what string) (*Definition, error) {
	timer := logging.StartTimer(logging.CategoryDD, "parse DD "+what)
	defer timer.StopWithThreshold(2 * time.Second)
	d, err := Parse(data, fallbackVersion)
	if err != nil {
		return nil, err
	}
	logging.DD("parsed DD %s (%d IDSs)", d.version, len(d.names))
	return d, nil
}
