// Package logging builds the zap logger tree for courtsync. Components log
// through a child named after their Category; categories can be switched off
// in the config without touching the code that logs.
package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup, config loading
	CategoryBrowser      Category = "browser"      // Browser automation backends
	CategoryStore        Category = "store"        // Record store and query history
	CategoryOrchestrator Category = "orchestrator" // Per-case query loop
	CategoryPortal       Category = "portal"       // Tribunal adapters
	CategoryExtract      Category = "extract"      // Field probe chains
	CategoryProgress     Category = "progress"     // Progress observer
	CategoryReport       Category = "report"       // Run reports
)

// Categories lists every known category.
var Categories = []Category{
	CategoryBoot, CategoryBrowser, CategoryStore, CategoryOrchestrator,
	CategoryPortal, CategoryExtract, CategoryProgress, CategoryReport,
}

// Config mirrors the logging section of the courtsync config.
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
	File   string `yaml:"file"`   // extra output path; stderr is always written
	// Categories switches individual categories; missing entries are enabled.
	Categories map[string]bool `yaml:"categories"`
}

// Set is the root logger plus the per-category switches.
type Set struct {
	root     *zap.Logger
	disabled map[Category]bool
}

// New builds the logger tree from cfg, starting from zap's production config.
func New(cfg Config) (*Set, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch cfg.Format {
	case "", "json":
	case "console":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	if cfg.File != "" {
		zc.OutputPaths = append(zc.OutputPaths, cfg.File)
	}

	root, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return Wrap(root, cfg.Categories), nil
}

// Wrap builds a Set around an existing logger.
func Wrap(root *zap.Logger, categories map[string]bool) *Set {
	s := &Set{root: root, disabled: make(map[Category]bool)}
	for name, enabled := range categories {
		if !enabled {
			s.disabled[Category(name)] = true
		}
	}
	return s
}

// NewNop returns a Set that discards everything.
func NewNop() *Set {
	return Wrap(zap.NewNop(), nil)
}

// ParseLevel maps a config level name onto a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// IsCategoryEnabled returns whether a specific category is enabled
func (s *Set) IsCategoryEnabled(c Category) bool {
	return !s.disabled[c]
}

// Get returns the logger for category, or a no-op logger when it is disabled.
func (s *Set) Get(c Category) *zap.Logger {
	if !s.IsCategoryEnabled(c) {
		return zap.NewNop()
	}
	return s.root.Named(string(c))
}

// Sync flushes buffered entries.
func (s *Set) Sync() error {
	return s.root.Sync()
}

// Timer measures one operation.
type Timer struct {
	logger *zap.Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation
func StartTimer(logger *zap.Logger, operation string) *Timer {
	return &Timer{logger: logger, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn(t.op+" was slow", zap.Duration("elapsed", elapsed), zap.Duration("threshold", threshold))
	} else {
		t.logger.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
