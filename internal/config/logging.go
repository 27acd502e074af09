package config

import "imaspy/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`                // debug, info, warn, error
	Format     string          `yaml:"format"`               // json, text
	File       string          `yaml:"file,omitempty"`       // empty logs to stderr
	DebugMode  bool            `yaml:"debug_mode,omitempty"` // forces debug level
	Categories map[string]bool `yaml:"categories,omitempty"` // per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories that are not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Options converts the config into logging options.
func (c *LoggingConfig) Options() logging.Options {
	o := logging.Options{
		Level:      c.Level,
		JSONFormat: c.Format == "json",
		DebugMode:  c.DebugMode,
		Categories: c.Categories,
	}
	if c.File != "" {
		o.OutputPaths = []string{c.File}
	}
	return o
}
