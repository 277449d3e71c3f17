// Package logging provides structured logging for pagechat using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Packages derive their own with Component.
var Logger zerolog.Logger

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string

	// Format is console or json.
	Format string

	// File appends logs to a file instead of Output.
	File string

	// Output is where logs go when File is empty. Defaults to stderr.
	Output io.Writer

	// EnableCaller adds file:line to every entry.
	EnableCaller bool
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init replaces the global logger. The returned closer releases the log file,
// if one was opened.
func Init(cfg Config) (io.Closer, error) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var closer io.Closer = nopCloser{}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	toFile := cfg.File != ""
	if toFile {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: toFile}
	}

	builder := zerolog.New(out).With().Timestamp()
	if cfg.EnableCaller {
		builder = builder.Caller()
	}
	Logger = builder.Logger()
	return closer, nil
}

// Disable silences the global logger. The TUI calls it so log lines do not
// tear the alternate screen.
func Disable() {
	Logger = zerolog.Nop()
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

// Debug starts a debug entry on the global logger.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Warn starts a warning entry on the global logger.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Component derives a logger tagged with the subsystem name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func init() {
	_, _ = Init(DefaultConfig())
}
