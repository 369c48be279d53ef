package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents the severity level of a log entry
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// contextKey is the type used for context keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	jobNameKey   contextKey = "job"
	providerKey  contextKey = "provider_id"
)

// Package-level logger instances
var (
	appLogger *Logger
	jobLogger *Logger
	mu        sync.RWMutex
)

// Entry represents a single log entry
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger provides structured JSON logging
type Logger struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
}

// Config holds logger configuration
type Config struct {
	Output   io.Writer
	MinLevel Level
}

// New creates a new logger with the given configuration
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.MinLevel == "" {
		cfg.MinLevel = LevelInfo
	}

	return &Logger{
		output:   cfg.Output,
		minLevel: cfg.MinLevel,
	}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(Config{})
}

// NewWithLevel creates a new logger with a specific log level string
func NewWithLevel(level string) *Logger {
	return New(Config{MinLevel: ParseLevel(level)})
}

// AppLogger returns the shared application logger instance
func AppLogger() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if appLogger == nil {
		return Default()
	}
	return appLogger
}

// JobLogger returns the shared job-engine logger instance
func JobLogger() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if jobLogger == nil {
		return Default()
	}
	return jobLogger
}

// Initialize sets up the shared loggers with the given levels
func Initialize(appLevel, jobLevel string) {
	mu.Lock()
	defer mu.Unlock()
	appLogger = NewWithLevel(appLevel)
	jobLogger = NewWithLevel(jobLevel)
}

// SetAppLogger replaces the application logger (primarily for testing)
func SetAppLogger(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	appLogger = l
}

// SetLevel changes the minimum level at runtime. The job engine uses this
// to honor the log_stream_level setting without a restart.
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = ParseLevel(level)
}

// ParseLevel converts a string log level to a Level type
func ParseLevel(level string) Level {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.log(LevelDebug, msg, nil, nil)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.log(LevelInfo, msg, nil, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.log(LevelWarn, msg, nil, nil)
}

// Error logs an error message
func (l *Logger) Error(msg string, err error) {
	l.log(LevelError, msg, nil, err)
}

// InfoContext logs an info message with context values
func (l *Logger) InfoContext(ctx context.Context, msg string) {
	l.logContext(ctx, LevelInfo, msg, nil, nil)
}

// WarnContext logs a warning message with context values
func (l *Logger) WarnContext(ctx context.Context, msg string) {
	l.logContext(ctx, LevelWarn, msg, nil, nil)
}

// ErrorContext logs an error message with context values
func (l *Logger) ErrorContext(ctx context.Context, msg string, err error) {
	l.logContext(ctx, LevelError, msg, nil, err)
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{
		logger: l,
		fields: fields,
	}
}

// WithProvider returns a logger scoped to a provider
func (l *Logger) WithProvider(providerID string) *FieldLogger {
	return l.WithFields(map[string]interface{}{"provider_id": providerID})
}

// WithJob returns a logger scoped to a job
func (l *Logger) WithJob(name string) *FieldLogger {
	return l.WithFields(map[string]interface{}{"job": name})
}

func (l *Logger) log(level Level, msg string, fields map[string]interface{}, err error) {
	if !l.shouldLog(level) {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Context:   fields,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	data, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(l.output, string(data))
	l.mu.Unlock()
}

func (l *Logger) logContext(ctx context.Context, level Level, msg string, fields map[string]interface{}, err error) {
	if !l.shouldLog(level) {
		return
	}

	merged := make(map[string]interface{})
	if requestID := ctx.Value(requestIDKey); requestID != nil {
		merged["request_id"] = requestID
	}
	if job := ctx.Value(jobNameKey); job != nil {
		merged["job"] = job
	}
	if provider := ctx.Value(providerKey); provider != nil {
		merged["provider_id"] = provider
	}
	for k, v := range fields {
		merged[k] = v
	}

	l.log(level, msg, merged, err)
}

func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}

	l.mu.Lock()
	min := l.minLevel
	l.mu.Unlock()

	return levels[level] >= levels[min]
}

// FieldLogger is a logger with pre-set fields
type FieldLogger struct {
	logger *Logger
	fields map[string]interface{}
}

// Debug logs a debug message with fields
func (fl *FieldLogger) Debug(msg string) {
	fl.logger.log(LevelDebug, msg, fl.fields, nil)
}

// Info logs an info message with fields
func (fl *FieldLogger) Info(msg string) {
	fl.logger.log(LevelInfo, msg, fl.fields, nil)
}

// Warn logs a warning message with fields
func (fl *FieldLogger) Warn(msg string) {
	fl.logger.log(LevelWarn, msg, fl.fields, nil)
}

// Error logs an error message with fields
func (fl *FieldLogger) Error(msg string, err error) {
	fl.logger.log(LevelError, msg, fl.fields, err)
}

// ContextWithRequestID adds a request ID to the context
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithJob adds a job name to the context
func ContextWithJob(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jobNameKey, name)
}

// ContextWithProvider adds a provider id to the context
func ContextWithProvider(ctx context.Context, providerID string) context.Context {
	return context.WithValue(ctx, providerKey, providerID)
}
