// Package logger owns the process-wide slog logger. Level and format come from
// config (LOG_LEVEL, LOG_FORMAT); output always goes to stderr.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Setup builds the default logger and installs it as slog's default too, so
// stray slog.Info calls end up in the same place.
func Setup(level, format string) *slog.Logger {
	return setup(os.Stderr, level, format)
}

func setup(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// L returns the default logger, falling back to an info-level text logger
// when Setup has not run (tests, mostly).
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	return Setup("info", "text")
}

// With returns L() with the given component tag, the slog counterpart of the
// "[TAG]" log prefixes used elsewhere.
func With(component string) *slog.Logger {
	return L().With("component", component)
}
