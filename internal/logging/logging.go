// Package logging provides structured logging for noterag. Logs are
// written as JSON to a rotating file under the data directory, with an
// optional mirror to stderr for interactive use.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config controls logging behavior.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level slog.Level

	// FilePath is where logs are written. Empty disables file logging.
	FilePath string

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int

	// MaxFiles is the number of rotated files to keep.
	MaxFiles int

	// WriteToStderr also mirrors logs to stderr.
	WriteToStderr bool
}

// DefaultConfig returns the standard logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:         slog.LevelInfo,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}
}

// DebugConfig returns a verbose configuration for troubleshooting.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = slog.LevelDebug
	cfg.WriteToStderr = true
	return cfg
}

// DefaultLogDir returns the default log directory (~/.noterag/logs).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".noterag", "logs")
	}
	return filepath.Join(home, ".noterag", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "noterag.log")
}

// Setup initializes logging and returns the logger plus a cleanup
// function that flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	cleanup := func() {}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}

		rotating, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, rotating)
		cleanup = func() { _ = rotating.Close() }
	}

	if cfg.WriteToStderr {
		writers = append(writers, os.Stderr)
	}

	if len(writers) == 0 {
		// Nothing to write to; discard but keep the API uniform.
		writers = append(writers, io.Discard)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: cfg.Level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, cleanup, nil
}

// LevelFromString parses a level name, defaulting to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
