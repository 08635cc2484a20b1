// Package logger builds the slog loggers used across the browser. Text output
// goes through charmbracelet/log; json output writes one LogEntry per line.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"debotbrowser/pkg/config"
)

const envPrefix = "DEBOT_LOG_"

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// options is the logging config after environment overrides.
type options struct {
	format    string
	level     slog.Level
	addSource bool
}

// New builds the process logger writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	opts, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = io.Discard
	}

	if opts.format == "json" {
		return slog.New(newJSONHandler(w, opts.level, opts.addSource)), nil
	}

	pretty := charmLog.NewWithOptions(w, charmLog.Options{
		Level:           toCharm(opts.level),
		ReportTimestamp: true,
		ReportCaller:    opts.addSource,
		Formatter:       charmLog.TextFormatter,
		Prefix:          "debot",
	})
	return slog.New(pretty), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func resolve(cfg config.LoggingConfig) (options, error) {
	format := override("FORMAT", cfg.Format, "text")
	if format != "json" && format != "text" {
		return options{}, fmt.Errorf("unsupported log format %q", format)
	}

	name := override("LEVEL", cfg.Level, "info")
	level, ok := levels[name]
	if !ok {
		return options{}, fmt.Errorf("unsupported log level %q", name)
	}

	addSource := cfg.AddSource
	if env, set := lookupEnv("ADD_SOURCE"); set {
		switch env {
		case "1", "true", "yes", "on":
			addSource = true
		default:
			addSource = false
		}
	}

	return options{format: format, level: level, addSource: addSource}, nil
}

// override returns the DEBOT_LOG_<key> value when set, else configured, else
// fallback. The result is lower-cased.
func override(key, configured, fallback string) string {
	if env, set := lookupEnv(key); set {
		return env
	}
	if value := strings.ToLower(strings.TrimSpace(configured)); value != "" {
		return value
	}
	return fallback
}

func lookupEnv(key string) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(envPrefix + key)))
	return value, value != ""
}

func toCharm(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}
