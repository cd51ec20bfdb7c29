package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"
)

// loggerConfig holds logger configuration.
type loggerConfig struct {
	Level string
	JSON  bool
}

// AddFlags registers the logger flags.
func (c *loggerConfig) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Level, "log-level", "warn", "Log level (debug, info, warn, error)")
	fs.BoolVar(&c.JSON, "log-json", false, "Output logs in JSON format")
}

// Configure returns a logger writing to w.
func (c *loggerConfig) Configure(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, &usageError{fmt.Errorf("unknown log level %q", c.Level)}
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if c.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), nil
}
