package pageview

import (
	"io"
	"log/slog"
)

// NewLogger returns a slog logger writing to w: JSON when format is "json",
// text otherwise. Source locations are included.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
