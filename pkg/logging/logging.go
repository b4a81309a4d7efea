// Package logging builds the structured logger shared by the command line tools.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a text logger writing to stderr. Verbose enables debug output.
func New(verbose bool) *slog.Logger {
	return NewWithWriter(os.Stderr, verbose)
}

// NewWithWriter returns a text logger writing to w
func NewWithWriter(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Module returns a child logger tagged with the given module name
func Module(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With("module", name)
}
