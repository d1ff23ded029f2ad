package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// LogOptions selects the handler used by NewLogger. The zero value logs JSON at info.
type LogOptions struct {
	Level  string
	Format string // json or console
	Output io.Writer
}

func NewLogger(service string, opts LogOptions) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "console", "text":
		h = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(out),
		})
	default:
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h).With("service", service)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
