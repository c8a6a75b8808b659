// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Format constants
const (
	FormatAuto = "auto"
	FormatJSON = "json"
	FormatText = "text"
)

// Options configures the logger.
type Options struct {
	// Format is "auto" (colorized text on a terminal, JSON otherwise), "json" or "text"
	Format string
	// Level is a slog level name: debug, info, warn or error
	Level string
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// NewHandler returns a slog.Handler writing to out.
// Text output uses tint in the format:
//
//	HH:MM:SS LEVEL msg  key=value key=value
func NewHandler(out io.Writer, opts Options) (slog.Handler, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if isTerminal(out) {
			format = FormatText
		}
	}

	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
	case FormatText:
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		}), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: auto, json, text)", opts.Format)
	}
}

// Setup installs a logger writing to stdout as the slog default.
func Setup(opts Options) (*slog.Logger, error) {
	h, err := NewHandler(os.Stdout, opts)
	if err != nil {
		return nil, err
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
