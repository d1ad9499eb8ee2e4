// Package logging configures the process-wide slog default.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Options controls log output.
type Options struct {
	// Level is the minimum level: "debug", "info", "warn" or "error".
	Level string

	// Format forces an output format: "text", "json" or "" for auto.
	// Auto picks colorized text on a terminal and JSON elsewhere.
	Format string
}

// Setup installs the default slog logger. Colorized output goes to terminals,
// JSON everywhere else so log collectors get structured lines.
func Setup(opts Options) {
	slog.SetDefault(slog.New(newHandler(os.Stderr, opts)))
}

func newHandler(w io.Writer, opts Options) slog.Handler {
	level := parseLevel(opts.Level)

	format := opts.Format
	if format == "" {
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		} else {
			format = "json"
		}
	}

	if format == "text" {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

func parseLevel(s string) slog.Level {
	switch s {
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
