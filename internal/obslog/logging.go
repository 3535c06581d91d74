// Package obslog provides opt-in, rotating structured logging for the
// retrieval core, mirroring the teacher's file-based logging wrapper
// around log/slog.
package obslog

import (
	"io"
	"log/slog"
	"os"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to a rotation-managed log file. Empty disables
	// file logging.
	FilePath string
	// MaxSizeMB is the rotation threshold in megabytes.
	MaxSizeMB int
	// MaxFiles is how many rotated files to retain.
	MaxFiles int
	// WriteToStderr mirrors log output to stderr in addition to the file.
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults: info level, stderr only.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		WriteToStderr: true,
		MaxSizeMB:     10,
		MaxFiles:      5,
	}
}

func levelFromString(level string) slog.Level {
	switch level {
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

// Setup builds a *slog.Logger per cfg and returns a cleanup function that
// must be called to flush and close any rotating file writer.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	cleanup := func() {}

	if cfg.WriteToStderr || cfg.FilePath == "" {
		writers = append(writers, os.Stderr)
	}

	if cfg.FilePath != "" {
		rw, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, rw)
		cleanup = func() { _ = rw.Close() }
	}

	var out io.Writer = os.Stderr
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: levelFromString(cfg.Level)})
	return slog.New(handler), cleanup, nil
}

// NoOp returns a logger that discards all output, for tests and library
// callers that don't configure logging explicitly.
func NoOp() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
