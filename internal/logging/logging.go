// Package logging provides structured logging for the supervisor using Go's slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

type contextKey string

const (
	sessionKey contextKey = "session_id"
	issueKey   contextKey = "issue"
	featureKey contextKey = "feature"
)

var (
	defaultLogger *slog.Logger
	loggerMu      sync.RWMutex
	closer        io.Closer
)

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Config holds logging configuration.
type Config struct {
	Level    string          `yaml:"level"`  // debug, info, warn, error
	Format   string          `yaml:"format"` // json, text
	Output   string          `yaml:"output"` // stdout, stderr, or file path
	Rotation *RotationConfig `yaml:"rotation"`
}

// RotationConfig holds log rotation settings for file output.
type RotationConfig struct {
	MaxSize    string `yaml:"max_size"` // e.g. "50MB"
	MaxAge     string `yaml:"max_age"`  // e.g. "7d"
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultConfig returns the logging defaults used inside the agent container.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}
}

// Init installs a new global logger built from cfg. A previously opened log
// file is closed once the new handler is in place.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)
	writer, err := openOutput(cfg)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	loggerMu.Lock()
	prev := closer
	defaultLogger = slog.New(handler)
	closer = nil
	if c, ok := writer.(io.Closer); ok && writer != os.Stdout && writer != os.Stderr {
		closer = c
	}
	loggerMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Suppress discards all log output. The watch TUI calls this so log lines do
// not tear the terminal display.
func Suppress() {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	loggerMu.Lock()
	defaultLogger = discard
	loggerMu.Unlock()

	slog.SetDefault(discard)
}

func parseLevel(level string) slog.Level {
	switch level {
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

func openOutput(cfg *Config) (io.Writer, error) {
	switch cfg.Output {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return newRotatingWriter(cfg.Output, cfg.Rotation)
	}
}

// Logger returns the global logger.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) *slog.Logger {
	return Logger().With(slog.String("component", component))
}

// WithSession returns a logger tagged with the supervised session ID.
func WithSession(sessionID string) *slog.Logger {
	return Logger().With(slog.String("session_id", sessionID))
}

// WithContext returns a logger carrying the session, issue and feature stored in ctx.
func WithContext(ctx context.Context) *slog.Logger {
	logger := Logger()

	if v, ok := ctx.Value(sessionKey).(string); ok {
		logger = logger.With(slog.String("session_id", v))
	}
	if v, ok := ctx.Value(issueKey).(int); ok {
		logger = logger.With(slog.Int("issue", v))
	}
	if v, ok := ctx.Value(featureKey).(string); ok {
		logger = logger.With(slog.String("feature", v))
	}

	return logger
}

// ContextWithSession stores the session ID in ctx.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithIssue stores the tracker issue number in ctx.
func ContextWithIssue(ctx context.Context, issue int) context.Context {
	return context.WithValue(ctx, issueKey, issue)
}

// ContextWithFeature stores the ledger feature ID in ctx.
func ContextWithFeature(ctx context.Context, feature string) context.Context {
	return context.WithValue(ctx, featureKey, feature)
}
