// Package log provides a structured logging system for ldes services.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
}

// Logger defines the core logging interface for ldes components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// Printf-style variants, kept for call sites that format their own message.
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})

	// With adds multiple fields to the logger.
	With(fields ...Field) Logger
	WithError(err error) Logger
	// WithComponent tags logs with a component name
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter defines the interface for formatting log entries.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output defines the interface for log outputs.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// LoggerOption is a function that configures a logger.
type LoggerOption func(*BaseLogger)

// BaseLogger implements the Logger interface on top of slog.
type BaseLogger struct {
	level      *atomic.Int32
	formatter  Formatter
	outputs    []Output
	slogLogger *slog.Logger

	redact           []string
	sampleInitial    int
	sampleThereafter int
}

// NewLogger creates a new logger with the given options.
func NewLogger(options ...LoggerOption) Logger {
	logger := &BaseLogger{
		level:     new(atomic.Int32),
		formatter: &JSONFormatter{},
	}
	logger.level.Store(int32(InfoLevel))

	for _, option := range options {
		option(logger)
	}

	if len(logger.outputs) == 0 {
		logger.outputs = append(logger.outputs, NewConsoleOutput())
	}

	h := newBridgeHandler(logger).withRedactions(logger.redact).withSampler(logger.sampleInitial, logger.sampleThereafter)
	logger.slogLogger = slog.New(h)
	return logger
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) {
		l.level.Store(int32(level))
	}
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) {
		l.formatter = formatter
	}
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) {
		l.outputs = append(l.outputs, output)
	}
}

// WithRedactedKeys replaces the values of the given field keys with [REDACTED].
func WithRedactedKeys(keys ...string) LoggerOption {
	return func(l *BaseLogger) {
		l.redact = append(l.redact, keys...)
	}
}

// WithSampling logs the first `initial` occurrences of a message and every
// `thereafter`-th one after that.
func WithSampling(initial, thereafter int) LoggerOption {
	return func(l *BaseLogger) {
		l.sampleInitial = initial
		l.sampleThereafter = thereafter
	}
}

func (l *BaseLogger) log(level Level, msg string, attrs []slog.Attr) {
	if Level(l.level.Load()) > level {
		return
	}
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, attrs...)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, attrsFromFieldSlice(fields))
}

// Fatal logs at error severity and exits the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, attrsFromFieldSlice(fields))
	os.Exit(1)
}

func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(msg, args...), nil)
}

func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(msg, args...), nil)
}

func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(msg, args...), nil)
}

func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(msg, args...), nil)
}

// With returns a child logger carrying the provided fields. The child shares
// level, formatter and outputs with its parent.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	nl := *l
	nl.slogLogger = l.slogLogger.With(attrsToAny(attrsFromFieldSlice(fields))...)
	return &nl
}

func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.With(Err(err))
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

func (l *BaseLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

func (l *BaseLogger) GetLevel() Level { return Level(l.level.Load()) }

// Close closes all outputs.
func (l *BaseLogger) Close() error {
	var first error
	for _, o := range l.outputs {
		if err := o.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
