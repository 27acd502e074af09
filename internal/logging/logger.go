// Package logging provides config-driven categorized logging for imaspy.
// Each subsystem logs through its own category, backed by a named zap logger.
// Until Initialize (or SetBase) is called every logger is a no-op, so the
// library stays silent when embedded in other programs.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup, config loading
	CategoryPerformance Category = "performance" // Slow operations
	CategoryDD          Category = "dd"          // Data Dictionary lookup and parsing
	CategoryIDS         Category = "ids"         // IDS tree operations, validation
	CategoryConvert     Category = "convert"     // DD version conversion
	CategoryBackend     Category = "backend"     // Storage backends
	CategoryNetCDF      Category = "netcdf"      // netCDF convention mapping
	CategoryEntry       Category = "dbentry"     // Data entry get/put
	CategoryCLI         Category = "cli"         // Command line tool
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string
	JSONFormat bool
	DebugMode  bool
	Categories map[string]bool
	// OutputPaths defaults to stderr.
	OutputPaths []string
}

// Logger is a category logger with printf-style helpers.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	opts    Options
	loggers = make(map[Category]*Logger)
)

// ParseLevel maps a config level string to a zap level. Unknown values map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Initialize builds the base zap logger from options.
// Should be called once at startup; later calls replace the base logger.
func Initialize(o Options) error {
	var cfg zap.Config
	if o.JSONFormat {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	level := ParseLevel(o.Level)
	if o.DebugMode {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if len(o.OutputPaths) > 0 {
		cfg.OutputPaths = o.OutputPaths
	} else {
		cfg.OutputPaths = []string{"stderr"}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	SetBase(l, o)

	Get(CategoryBoot).Debug("logging initialized: level=%s json=%v", level, o.JSONFormat)
	return nil
}

// SetBase installs an already configured zap logger (used by the CLI and tests).
func SetBase(l *zap.Logger, o Options) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	opts = o
	loggers = make(map[Category]*Logger)
}

// Reset returns the package to its silent default state.
func Reset() {
	SetBase(nil, Options{})
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories missing from the toggle map are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Sync flushes the base logger.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

// Category returns the category of this logger.
func (l *Logger) Category() Category { return l.category }

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// Convenience helpers
// =============================================================================

func DD(format string, args ...interface{})      { Get(CategoryDD).Info(format, args...) }
func DDDebug(format string, args ...interface{}) { Get(CategoryDD).Debug(format, args...) }
func DDWarn(format string, args ...interface{})  { Get(CategoryDD).Warn(format, args...) }

func Convert(format string, args ...interface{})      { Get(CategoryConvert).Info(format, args...) }
func ConvertDebug(format string, args ...interface{}) { Get(CategoryConvert).Debug(format, args...) }

func Backend(format string, args ...interface{})      { Get(CategoryBackend).Info(format, args...) }
func BackendDebug(format string, args ...interface{}) { Get(CategoryBackend).Debug(format, args...) }
func BackendWarn(format string, args ...interface{})  { Get(CategoryBackend).Warn(format, args...) }

func Entry(format string, args ...interface{})      { Get(CategoryEntry).Info(format, args...) }
func EntryDebug(format string, args ...interface{}) { Get(CategoryEntry).Debug(format, args...) }
func EntryWarn(format string, args ...interface{})  { Get(CategoryEntry).Warn(format, args...) }

// =============================================================================
// Timers
// =============================================================================

// Timer measures the duration of an operation and logs it to the performance category.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer starts timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(CategoryPerformance).Debug("[%s] %s took %v", t.category, t.operation, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning when the operation exceeded threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(CategoryPerformance).Warn("[%s] SLOW: %s took %v (threshold %v)", t.category, t.operation, elapsed, threshold)
	} else {
		Get(CategoryPerformance).Debug("[%s] %s took %v", t.category, t.operation, elapsed)
	}
	return elapsed
}
