// Package logging wraps zerolog behind a small package-level API.
//
// The server logs JSON lines to stderr by default. When a log directory
// is configured the stream is duplicated into a per-run file so a crashed
// run can still be inspected.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger.
var Logger zerolog.Logger

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level to emit, parsed case-insensitively.
	// Unknown values fall back to info.
	Level string
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Pretty enables human-readable console output for interactive runs.
	Pretty bool
	// Dir, when set, additionally writes JSON lines to
	// <Dir>/tandem-<timestamp>.log.
	Dir string
}

// Init configures the global logger. It returns a cleanup function that
// closes the log file, if one was opened.
func Init(cfg Config) (func(), error) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.Kitchen}
	}

	cleanup := func() {}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		name := filepath.Join(cfg.Dir, "tandem-"+time.Now().Format("20060102-150405")+".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		cleanup = func() { f.Close() }
	}

	Logger = zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
	return cleanup, nil
}

// ParseLevel parses a level string. Unknown values map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug starts a debug-level event.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info starts an info-level event.
func Info() *zerolog.Event { return Logger.Info() }

// Warn starts a warn-level event.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error starts an error-level event.
func Error() *zerolog.Event { return Logger.Error() }

// Fatal starts a fatal-level event. Msg or Send on the returned event
// exits the process.
func Fatal() *zerolog.Event { return Logger.Fatal() }

// With creates a child logger context.
func With() zerolog.Context { return Logger.With() }

// Service returns a child logger tagged with a service name, used by
// long-lived components so their lines are filterable.
func Service(name string) zerolog.Logger {
	return Logger.With().Str("service", name).Logger()
}

func init() {
	Logger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}
