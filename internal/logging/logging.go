// Package logging configures slog: colored console output through tint and
// an optional rotating debug.log written with lumberjack.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/natefinch/lumberjack"
)

// FileName is the log file written into the output directory.
const FileName = "debug.log"

// Config controls log output.
type Config struct {
	Level   string `yaml:"level" toml:"level"`
	Dir     string `yaml:"dir" toml:"dir"`
	MaxSize int    `yaml:"max_size_mb" toml:"max_log_size"`
	MaxAge  int    `yaml:"max_age_days" toml:"max_log_age"`
	NoColor bool   `yaml:"no_color" toml:"no_color"`
}

// Setup installs the default slog logger. The returned closer flushes the
// log file, if any.
func Setup(cfg Config, console io.Writer) (io.Closer, error) {
	level := ParseLevel(cfg.Level)
	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    cfg.NoColor,
		}),
	}

	var closer io.Closer = nopCloser{}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, err
		}
		l := &lumberjack.Logger{
			Filename: filepath.Join(cfg.Dir, FileName),
			MaxSize:  cfg.MaxSize, // megabytes
			MaxAge:   cfg.MaxAge,  // days
		}
		handlers = append(handlers, slog.NewTextHandler(l, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closer = l
	}

	slog.SetDefault(slog.New(fanout(handlers)))
	return closer, nil
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Since logs the duration of an operation at debug level.
func Since(msg string, start time.Time, args ...any) {
	slog.Debug(msg, append(args, "elapsed", time.Since(start).Round(time.Millisecond))...)
}
