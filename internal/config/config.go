package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// OldestSupportedDDVersion is the oldest Data Dictionary release imaspy is tested with.
const OldestSupportedDDVersion = "3.22.0"

// Config holds all imaspy configuration.
type Config struct {
	// Data Dictionary lookup
	DataDictionary DataDictionaryConfig `yaml:"data_dictionary"`

	// Storage backends
	Backend BackendConfig `yaml:"backend"`

	// Validation on put
	Validation ValidationConfig `yaml:"validation"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DataDictionaryConfig configures where DD definitions are found.
type DataDictionaryConfig struct {
	// Default DD version used when none is requested. Empty means latest.
	DefaultVersion string `yaml:"default_version"`

	// Primary IDSDef.zip, searched before everything else ($IMASPY_DDZIP).
	ZipPath string `yaml:"zip_path,omitempty"`

	// Additional IDSDef.zip files, searched after ZipPath.
	ExtraZips []string `yaml:"extra_zips,omitempty"`

	// Number of parsed DD definitions kept in memory.
	CacheSize int `yaml:"cache_size"`
}

// BackendConfig configures storage backends.
type BackendConfig struct {
	Default string `yaml:"default"` // memory, ascii, sqlite, netcdf

	// database/sql driver for the sqlite backend: "sqlite" (modernc) or "sqlite3" (mattn, cgo)
	SQLiteDriver string `yaml:"sqlite_driver"`

	// Busy timeout for sqlite in milliseconds
	SQLiteBusyTimeoutMS int `yaml:"sqlite_busy_timeout_ms"`

	// zlib level for netCDF variable payloads (0 disables compression)
	NetCDFCompression int `yaml:"netcdf_compression"`
}

// ValidationConfig configures IDS validation.
type ValidationConfig struct {
	ValidateOnPut bool `yaml:"validate_on_put"`
}

// envOverrides is the set of environment variables imaspy honors.
type envOverrides struct {
	IMASVersion     string `env:"IMAS_VERSION"`
	DDZip           string `env:"IMASPY_DDZIP"`
	DisableValidate string `env:"IMAS_AL_DISABLE_VALIDATE"`
	LogLevel        string `env:"IMASPY_LOG_LEVEL"`
	XDGConfigHome   string `env:"XDG_CONFIG_HOME"`
	XDGConfigDir    string `env:"XDG_CONFIG_DIR"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDictionary: DataDictionaryConfig{
			CacheSize: 4,
		},
		Backend: BackendConfig{
			Default:             "sqlite",
			SQLiteDriver:        "sqlite",
			SQLiteBusyTimeoutMS: 5000,
			NetCDFCompression:   1,
		},
		Validation: ValidationConfig{
			ValidateOnPut: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the imaspy configuration directory.
// $XDG_CONFIG_HOME wins over $XDG_CONFIG_DIR, falling back to ~/.config.
func ConfigDir() string {
	ov, _ := env.ParseAs[envOverrides]()
	base := ov.XDGConfigHome
	if base == "" {
		base = ov.XDGConfigDir
	}
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "imaspy")
}

// DefaultPath returns the default location of the config file.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load loads configuration from a YAML file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the config from DefaultPath.
func LoadDefault() (*Config, error) {
	return Load(DefaultPath())
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	ov, err := env.ParseAs[envOverrides]()
	if err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if ov.IMASVersion != "" {
		c.DataDictionary.DefaultVersion = ov.IMASVersion
	}
	if ov.DDZip != "" {
		c.DataDictionary.ZipPath = ov.DDZip
	}
	// Any value except "0" disables validation
	if ov.DisableValidate != "" && ov.DisableValidate != "0" {
		c.Validation.ValidateOnPut = false
	}
	if ov.LogLevel != "" {
		c.Logging.Level = ov.LogLevel
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.DataDictionary.CacheSize < 1 {
		return fmt.Errorf("data_dictionary.cache_size must be at least 1, got %d", c.DataDictionary.CacheSize)
	}
	switch c.Backend.Default {
	case "memory", "ascii", "sqlite", "netcdf":
	default:
		return fmt.Errorf("unknown backend.default %q", c.Backend.Default)
	}
	switch c.Backend.SQLiteDriver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unknown backend.sqlite_driver %q", c.Backend.SQLiteDriver)
	}
	if c.Backend.NetCDFCompression < 0 || c.Backend.NetCDFCompression > 9 {
		return fmt.Errorf("backend.netcdf_compression must be within 0..9, got %d", c.Backend.NetCDFCompression)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// DDZipLocations returns the configured zip files in search order.
func (c *Config) DDZipLocations() []string {
	var out []string
	if c.DataDictionary.ZipPath != "" {
		out = append(out, c.DataDictionary.ZipPath)
	}
	return append(out, c.DataDictionary.ExtraZips...)
}
