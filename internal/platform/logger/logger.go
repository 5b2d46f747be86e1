package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON slog logger on stdout. Debug records are kept in dev mode.
func New(devMode bool) *slog.Logger {
	return NewWithWriter(os.Stdout, devMode)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, devMode bool) *slog.Logger {
	level := slog.LevelInfo
	if devMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).
		With("service", "homechef")
}
