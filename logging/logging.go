// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package logging provides a thin structured-logging wrapper shared by every
// component of the node.
package logging

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with a component tag.
type Logger struct {
	*slog.Logger
}

var defaultHandler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
})

// SetFormat switches the process-wide handler between "json" (default) and
// "text". Call before constructing any component logger.
func SetFormat(format string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch format {
	case "text":
		defaultHandler = slog.NewTextHandler(os.Stdout, opts)
	default:
		defaultHandler = slog.NewJSONHandler(os.Stdout, opts)
	}
}

// Component returns a Logger tagged with the given component name.
func Component(name string) *Logger {
	return &Logger{Logger: slog.New(defaultHandler).With(slog.String("component", name))}
}

func (l *Logger) Fatal(msg string, args ...any) {
	l.Logger.Error(msg, args...)
	os.Exit(1)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
