package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caffeineduck/dotstar/config"
	"github.com/rs/zerolog"
)

// NewLogger builds a logger from cfg. Output is stderr unless cfg names
// stdout or a file path; Format "json" disables the console writer.
func NewLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log output: %w", err)
		}
		w, closer = f, f
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		closer.Close()
		return zerolog.Nop(), nil, err
	}
	return newLogger(w, cfg.Format, level), closer, nil
}

func newLogger(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level. The empty name is warn.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(name) {
	case "":
		return zerolog.WarnLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// Component returns a child of l tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
