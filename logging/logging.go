// Package logging sets up the process wide slog logger. Output can be
// held back in memory until a destination (the TUI log pane) exists and
// is optionally copied to a log file.
package logging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"lautenbacher.net/ppmswitch/config"
)

// holdingWriter collects log lines while no target is attached and
// forwards them once one is. Every line is also appended to file if set.
type holdingWriter struct {
	mu      sync.Mutex
	pending bytes.Buffer
	target  io.Writer
	file    *os.File
	holding bool
}

func (w *holdingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	switch {
	case w.holding:
		w.pending.Write(p)
	case w.target != nil:
		if _, err := w.target.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return len(p), errors.Join(errs...)
}

var (
	writer = &holdingWriter{target: os.Stderr}
	level  = new(slog.LevelVar)
)

// Init installs a new default logger configured by cfg. With hold set,
// output is kept in memory until SetOutput is called.
func Init(cfg config.LogConfig, hold bool) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	w := &holdingWriter{holding: hold}
	if !hold {
		w.target = os.Stderr
	}
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("can't open log file %s: %w", cfg.File, err)
		}
		w.file = file
	}
	writer = w
	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to a slog
// level. An empty string means INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Level returns the current level of the default logger.
func Level() slog.Level {
	return level.Level()
}

// SetLevel changes the level of the default logger at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ToggleDebug switches between DEBUG and INFO and returns the new level.
func ToggleDebug() slog.Level {
	if level.Level() <= slog.LevelDebug {
		level.Set(slog.LevelInfo)
	} else {
		level.Set(slog.LevelDebug)
	}
	return level.Level()
}

// SetOutput writes everything held back so far to target and sends all
// further output there directly.
func SetOutput(target io.Writer) error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.pending.Len() > 0 {
		if _, err := target.Write(writer.pending.Bytes()); err != nil {
			return err
		}
		writer.pending.Reset()
	}
	writer.target = target
	writer.holding = false
	return nil
}

// BufferOutput detaches the current target and holds output in memory
// again, e.g. while the TUI is torn down.
func BufferOutput() {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	writer.target = nil
	writer.holding = true
}

// Close closes the log file. Output still held back goes to stderr
// unless a log file already has it.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var errs []error
	if writer.file == nil && writer.pending.Len() > 0 {
		if _, err := os.Stderr.Write(writer.pending.Bytes()); err != nil {
			errs = append(errs, err)
		}
	}
	if writer.file != nil {
		errs = append(errs, writer.file.Close())
		writer.file = nil
	}
	writer.pending.Reset()
	return errors.Join(errs...)
}
