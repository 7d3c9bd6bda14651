// Package logger wraps log/slog with the structured fields the session and
// subscription core attaches to its log lines: client id, node id, topic,
// and the per-component grouping used across session/subscription/retained/
// matcher/kvs.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level is this package's logging level, decoupled from slog's so callers
// don't need to import log/slog just to configure a Logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger wraps slog.Logger with a fixed component group.
type Logger struct {
	*slog.Logger
	level     Level
	component string
}

// Config configures a Logger.
type Config struct {
	Level       Level
	Format      string // "json" or "text"
	Output      io.Writer
	Component   string
	AddSource   bool
	Environment string
	Service     string
	NodeID      string
}

var (
	globalLogger *Logger
	mu           sync.RWMutex
)

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: convertLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, opts)
	default:
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	var attrs []slog.Attr
	if cfg.Service != "" {
		attrs = append(attrs, slog.String("service", cfg.Service))
	}
	if cfg.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", cfg.NodeID))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, slog.String("environment", cfg.Environment))
	}
	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}
	if cfg.Component != "" {
		handler = handler.WithGroup(cfg.Component)
	}

	return &Logger{Logger: slog.New(handler), level: cfg.Level, component: cfg.Component}
}

// InitGlobal sets the process-wide default Logger.
func InitGlobal(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger = New(cfg)
}

// Global returns the process-wide default Logger, initializing a
// development default on first use.
func Global() *Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		globalLogger = New(DevelopmentConfig())
	}
	return globalLogger
}

// Component returns a logger scoped to name, inheriting the global logger's
// handler configuration.
func Component(name string) *Logger {
	g := Global()
	return &Logger{
		Logger:    slog.New(g.Handler().WithGroup(name)),
		level:     g.level,
		component: name,
	}
}

// DevelopmentConfig is a human-readable default for local runs.
func DevelopmentConfig() Config {
	return Config{Level: LevelDebug, Format: "text", Service: "brokercore", Environment: "development"}
}

// ProductionConfig is a machine-readable default for cluster deployment.
func ProductionConfig() Config {
	return Config{Level: LevelInfo, Format: "json", Service: "brokercore", Environment: "production"}
}

// LogPresence logs a presence transition (updateConnectedNode/removeConnectedNode).
func (l *Logger) LogPresence(clientID, node, action string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("client_id", clientID),
		slog.String("node", node),
		slog.String("action", action),
	}
	l.LogAttrs(context.Background(), slog.LevelInfo, "presence transition", append(base, attrs...)...)
}

// LogSubscription logs a subscribe/unsubscribe event.
func (l *Logger) LogSubscription(clientID, filter string, qos byte, action string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("client_id", clientID),
		slog.String("topic_filter", filter),
		slog.Int("qos", int(qos)),
		slog.String("action", action),
	}
	l.LogAttrs(context.Background(), slog.LevelInfo, "subscription event", append(base, attrs...)...)
}

// LogMatch logs the outcome of a publish-time matcher walk.
func (l *Logger) LogMatch(topicName string, subscriberCount int, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("topic", topicName),
		slog.Int("subscriber_count", subscriberCount),
	}
	l.LogAttrs(context.Background(), slog.LevelDebug, "topic matched", append(base, attrs...)...)
}

// LogInvariantDrift logs a detected-and-repaired invariant violation, e.g. a
// trie counter clamped to zero or an orphan in-flight id skipped.
func (l *Logger) LogInvariantDrift(context_, detail string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("context", context_),
		slog.String("detail", detail),
	}
	l.LogAttrs(context.Background(), slog.LevelWarn, "invariant drift repaired", append(base, attrs...)...)
}

// Debug, Info, Warn, Error are thin convenience wrappers over slog.Attr-based logging.
func (l *Logger) Debug(msg string, attrs ...slog.Attr) {
	l.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}
func (l *Logger) Info(msg string, attrs ...slog.Attr) {
	l.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}
func (l *Logger) Warn(msg string, attrs ...slog.Attr) {
	l.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}
func (l *Logger) Error(msg string, attrs ...slog.Attr) {
	l.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// Field builds a slog.Attr, letting callers outside this package attach
// structured fields without importing log/slog themselves.
func Field(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

func convertLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
