package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid config")

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Variants.InitialID == "" {
		return fmt.Errorf("variants.initial_id is empty: %w", ErrInvalidConfig)
	}
	if c.Variants.WorkerLimit < 0 {
		return fmt.Errorf("variants.worker_limit %d: %w", c.Variants.WorkerLimit, ErrInvalidConfig)
	}
	if c.Audit.CacheEntries < 0 {
		return fmt.Errorf("audit.cache_entries %d: %w", c.Audit.CacheEntries, ErrInvalidConfig)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q: %w", c.Log.Format, ErrInvalidConfig)
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", level, ErrInvalidConfig)
	}
}

// NewLogger builds a slog logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
