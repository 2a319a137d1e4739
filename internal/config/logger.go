package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger builds the application logger from cfg and installs it as the
// slog default. Output goes to a rotated file unless cfg.Console is set.
func InitLogger(cfg *LoggingConfig) (*slog.Logger, error) {
	level := parseLogLevel(cfg.Level)

	var writer io.Writer
	if cfg.Console {
		writer = os.Stderr
	} else {
		if cfg.File == "" {
			cfg.File = filepath.Join(getStateDir(), appName, appName+".log")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writer = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
	}

	logger := slog.New(newHandler(writer, cfg, level))
	slog.SetDefault(logger)

	return logger, nil
}

func newHandler(w io.Writer, cfg *LoggingConfig, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		// colour only makes sense on a terminal
		if cfg.Color && cfg.Console {
			return NewColoredTextHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}
}

// NewColoredTextHandler returns a text handler whose level field is
// wrapped in ANSI colour codes.
func NewColoredTextHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewTextHandler(&levelColorWriter{w: w}, opts)
}

var levelColors = map[string]string{
	"level=DEBUG": "\033[90m", // gray
	"level=INFO":  "\033[32m", // green
	"level=WARN":  "\033[33m", // yellow
	"level=ERROR": "\033[31m", // red
}

// levelColorWriter relies on slog.TextHandler emitting one record per Write
type levelColorWriter struct {
	w io.Writer
}

func (c *levelColorWriter) Write(p []byte) (int, error) {
	for token, color := range levelColors {
		i := bytes.Index(p, []byte(token))
		if i < 0 {
			continue
		}
		end := i + len(token)
		var buf bytes.Buffer
		buf.Grow(len(p) + len(color) + 4)
		buf.Write(p[:i])
		buf.WriteString(color)
		buf.Write(p[i:end])
		buf.WriteString("\033[0m")
		buf.Write(p[end:])
		if _, err := c.w.Write(buf.Bytes()); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	return c.w.Write(p)
}

// parseLogLevel parses a log level string
func parseLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
