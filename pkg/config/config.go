// Package config loads and validates the logsplit configuration file.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

// EmptySource values accepted in the configuration file.
const (
	EmptySourceSkip  = "skip"
	EmptySourceChunk = "chunk"
)

// Config is the file-facing configuration. Size and duration fields stay
// strings so the file can say "250MB" or "2s"; the typed accessors parse them.
type Config struct {
	// TargetChunkSize is the soft ceiling per chunk, e.g. "250MB" or "64MiB".
	TargetChunkSize string `yaml:"target_chunk_size" validate:"required"`
	// BatchLineCount is how many lines accumulate before one write call.
	BatchLineCount int `yaml:"batch_line_count" validate:"gt=0"`
	// KeepSource disables deleting the source file after a successful split.
	KeepSource bool `yaml:"keep_source"`
	// UseMmap reads sources through a memory mapping.
	UseMmap bool `yaml:"use_mmap"`
	// EmptySource decides what a zero-byte input produces: "skip" or "chunk".
	EmptySource string `yaml:"empty_source" validate:"oneof=skip chunk"`
	// CleanupOnFailure removes partially written chunks after a failed split.
	CleanupOnFailure bool `yaml:"cleanup_on_failure"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Watch WatchConfig `yaml:"watch"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Ext is the file extension watched for, including the dot.
	Ext string `yaml:"ext" validate:"required,startswith=."`
	// Settle is how long a file must stay quiet before it counts as
	// complete, e.g. "2s".
	Settle string `yaml:"settle" validate:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TargetChunkSize: "16MB",
		BatchLineCount:  100,
		EmptySource:     EmptySourceSkip,
		LogLevel:        "info",
		Watch: WatchConfig{
			Ext:    ".log",
			Settle: "2s",
		},
	}
}

// TargetBytes parses the configured chunk size. Decimal ("250MB") and binary
// ("64MiB") units are both accepted.
func (c *Config) TargetBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.TargetChunkSize)
	if err != nil {
		return 0, fmt.Errorf("target_chunk_size %q: %w", c.TargetChunkSize, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("target_chunk_size %q: must be positive", c.TargetChunkSize)
	}
	return int64(n), nil
}

// SettleDuration parses the configured settle window.
func (w *WatchConfig) SettleDuration() (time.Duration, error) {
	d, err := time.ParseDuration(w.Settle)
	if err != nil {
		return 0, fmt.Errorf("watch.settle %q: %w", w.Settle, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("watch.settle %q: must be positive", w.Settle)
	}
	return d, nil
}

// Level maps the configured log level to a slog.Level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the field constraints and that every size and duration
// string actually parses.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.TargetBytes(); err != nil {
		return err
	}
	if _, err := c.Watch.SettleDuration(); err != nil {
		return err
	}
	return nil
}
