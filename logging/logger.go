// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer SaathiLogger with contextual
// helpers (session, run, component) and domain specific logging helpers for
// inference calls, tools, composition nodes and memory compaction.
package logging

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel. Unknown
// names map to LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return LogLevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return LogLevelWarn
	case "error", "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface for saathi. Args are
// alternating key/value pairs, as with slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// SaathiLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It should be cheap to copy via With* methods.
type SaathiLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	sessionID string
	runID     string
}

// LoggerConfig configures construction of a SaathiLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	SessionID   string
	RunID       string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: false, CustomAttrs: map[string]any{}}
}

// NewLogger builds a SaathiLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *SaathiLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	ctx := maps.Clone(cfg.CustomAttrs)
	if ctx == nil {
		ctx = map[string]any{}
	}
	return &SaathiLogger{logger: slog.New(handler), level: cfg.Level, context: ctx, component: cfg.Component, sessionID: cfg.SessionID, runID: cfg.RunID}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SaathiLogger) clone() *SaathiLogger {
	nl := *l
	nl.context = maps.Clone(l.context)
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *SaathiLogger) WithContext(key string, value any) *SaathiLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (memory, gateway, graph, ...).
func (l *SaathiLogger) WithComponent(c string) *SaathiLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithRun attaches session and run identifiers.
func (l *SaathiLogger) WithRun(sessionID, runID string) *SaathiLogger {
	nl := l.clone()
	nl.sessionID = sessionID
	nl.runID = runID
	return nl
}

func (l *SaathiLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *SaathiLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	attrs = append(attrs, argsToAttrs(args)...)
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// argsToAttrs converts alternating key/value pairs into attributes. A trailing
// key without value is logged under "!BADKEY" like slog does.
func argsToAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		switch k := args[i].(type) {
		case slog.Attr:
			attrs = append(attrs, k)
		case string:
			if i+1 >= len(args) {
				attrs = append(attrs, slog.String("!BADKEY", k))
				continue
			}
			attrs = append(attrs, slog.Any(k, args[i+1]))
			i++
		default:
			attrs = append(attrs, slog.Any("!BADKEY", k))
		}
	}
	return attrs
}

// Debug logs at debug level.
func (l *SaathiLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *SaathiLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *SaathiLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *SaathiLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

func (l *SaathiLogger) outcome(level slog.Level, msg string, attrs []slog.Attr, err error) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogToolCall records execution details for a tool invocation.
func (l *SaathiLogger) LogToolCall(tool, op string, dur time.Duration, success bool, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("tool_name", tool), slog.String("operation", op), slog.Duration("duration", dur), slog.Bool("success", success))
	level, msg := slog.LevelInfo, "Tool call completed"
	if !success {
		level, msg = slog.LevelWarn, "Tool call failed"
	}
	l.outcome(level, msg, attrs, err)
}

// LogInferenceCall records reasoning call latency, attempts, token usage and success.
func (l *SaathiLogger) LogInferenceCall(model string, tokens, attempts int, dur time.Duration, success bool, err error) {
	attrs := l.buildAttrs()

	attrs = append(attrs, slog.String("model", model), slog.Int("token_count", tokens), slog.Int("attempts", attempts), slog.Duration("duration", dur), slog.Bool("success", success))

	level := slog.LevelInfo

	msg := "Inference call completed"

	if !success {
		level = slog.LevelError
		msg = "Inference call failed"
	}

	l.outcome(level, msg, attrs, err)
}

// LogNodeExecution records the outcome of one composition node.
func (l *SaathiLogger) LogNodeExecution(path, kind, status string, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("node_path", path), slog.String("node_kind", kind), slog.String("status", status), slog.Duration("duration", dur))
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	l.outcome(level, "Node execution finished", attrs, err)
}

// LogCompaction records a compaction pass.
func (l *SaathiLogger) LogCompaction(evicted, sizeBefore, sizeAfter int, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.Int("evicted", evicted), slog.Int("size_before", sizeBefore), slog.Int("size_after", sizeAfter), slog.Duration("duration", dur))
	level, msg := slog.LevelInfo, "Memory compaction completed"
	if err != nil {
		level, msg = slog.LevelWarn, "Memory compaction failed"
	}
	l.outcome(level, msg, attrs, err)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new SaathiLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *SaathiLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// ForComponent scopes l to a component. A *SaathiLogger keeps its concrete
// type; other loggers get a "component" attribute on every entry.
func ForComponent(l Logger, component string) Logger {
	if sl, ok := l.(*SaathiLogger); ok {
		return sl.WithComponent(component)
	}
	return With(l, "component", component)
}

// ForRun scopes l to one run of a session, like ForComponent.
func ForRun(l Logger, sessionID, runID string) Logger {
	if sl, ok := l.(*SaathiLogger); ok {
		return sl.WithRun(sessionID, runID)
	}
	return With(l, "session_id", sessionID, "run_id", runID)
}

// With returns a Logger that appends args to every entry.
func With(l Logger, args ...any) Logger {
	l = OrNoOp(l)
	if _, ok := l.(NoOpLogger); ok {
		return l
	}
	return &withLogger{next: l, args: args}
}

type withLogger struct {
	next Logger
	args []any
}

func (w *withLogger) merge(args []any) []any {
	return append(append(make([]any, 0, len(w.args)+len(args)), w.args...), args...)
}

func (w *withLogger) Debug(msg string, args ...any) { w.next.Debug(msg, w.merge(args)...) }
func (w *withLogger) Info(msg string, args ...any)  { w.next.Info(msg, w.merge(args)...) }
func (w *withLogger) Warn(msg string, args ...any)  { w.next.Warn(msg, w.merge(args)...) }
func (w *withLogger) Error(msg string, args ...any) { w.next.Error(msg, w.merge(args)...) }
