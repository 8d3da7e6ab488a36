package app

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the engine-wide logger. It never touches the global
// default, so embedding callers and tests each get an isolated instance.
// Unknown levels fall back to info rather than failing startup over a
// typo in a log flag.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if levelStr != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(levelStr)); err == nil {
			level = parsed
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(formatStr) {
	case "json":
		handler = slog.NewJSONHandler(outW, opts)
	default:
		handler = slog.NewTextHandler(outW, opts)
	}
	return slog.New(handler).With("app", "rulegraph")
}
