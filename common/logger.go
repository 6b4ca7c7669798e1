// Package common: this file extends the base logging with context-aware
// logging, structured field helpers, and run/service-scoped logger
// construction used by the HTTP client, the cache, the collectors, and the
// orchestrator.
package common

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents standard logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// LoggerConfig contains configuration for creating a logger.
type LoggerConfig struct {
	Level      LogLevel
	Format     string // "json" or "text"
	Service    string
	AddCaller  bool
	TimeFormat string
}

// DefaultLoggerConfig returns a logger config with sensible defaults.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:      LogLevelInfo,
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new configured logger instance.
func NewLogger(config LoggerConfig) *logrus.Logger {
	logger := logrus.New()

	switch config.Level {
	case LogLevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelFatal:
		logger.SetLevel(logrus.FatalLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: config.TimeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: config.TimeFormat, FullTimestamp: true})
	}

	logger.SetReportCaller(config.AddCaller)
	logger.SetOutput(&OutputSplitter{})

	return logger
}

// ContextLogger is the structured logger every component is handed at
// construction time rather than reaching for a package-global instance.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger creates a new context-aware logger with base fields. A
// nil logger falls back to the package's base Logger.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	baseFields := make(logrus.Fields, len(fields))
	for k, v := range fields {
		baseFields[k] = v
	}
	return &ContextLogger{logger: logger, fields: baseFields}
}

func (cl *ContextLogger) clone() logrus.Fields {
	newFields := make(logrus.Fields, len(cl.fields))
	for k, v := range cl.fields {
		newFields[k] = v
	}
	return newFields
}

// WithField adds a single field to the logger context.
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	f := cl.clone()
	f[key] = value
	return &ContextLogger{logger: cl.logger, fields: f}
}

// WithFields adds multiple fields to the logger context.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	f := cl.clone()
	for k, v := range fields {
		f[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: f}
}

// WithError adds an error to the logger context.
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

// WithContext extracts the run id and (when present) worker slot from ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	f := cl.clone()
	if runID := ctx.Value(runIDKey{}); runID != nil {
		f["run_id"] = runID
	}
	if worker := ctx.Value(workerKey{}); worker != nil {
		f["worker"] = worker
	}
	return &ContextLogger{logger: cl.logger, fields: f}
}

type runIDKey struct{}
type workerKey struct{}

// WithRunID returns a context carrying the run id for later WithContext calls.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// WithWorker returns a context carrying a worker slot identifier.
func WithWorker(ctx context.Context, worker int) context.Context {
	return context.WithValue(ctx, workerKey{}, worker)
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Debugf(format, args...)
}
func (cl *ContextLogger) Info(msg string) { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Infof(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Infof(format, args...)
}
func (cl *ContextLogger) Warn(msg string) { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Warnf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Warnf(format, args...)
}
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Errorf(format, args...)
}

// RunLogger creates a logger pre-scoped to a single invocation.
func RunLogger(runID string) *ContextLogger {
	return NewContextLogger(Logger, map[string]interface{}{"run_id": runID})
}

// LogDuration logs the duration of an operation when the returned func runs;
// typical use is `defer common.LogDuration(logger, "collect_releases")()`.
func LogDuration(logger *ContextLogger, operation string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start)
		logger.WithFields(map[string]interface{}{
			"operation":   operation,
			"duration_ms": duration.Milliseconds(),
		}).Info("operation completed")
	}
}

// LogPanic recovers from a panic in the calling goroutine, logging it with a
// stack trace instead of letting it crash the run, and stores a descriptive
// error into *out so the caller can still record the failing item as an
// error rather than silently leaving its result at the zero value. Must be
// deferred directly (recover only takes effect when called directly by a
// deferred function, not by a function a deferred closure calls):
//
//	defer common.LogPanic(logger, &errs[i], "collect release")
func LogPanic(logger *ContextLogger, out *error, context string) {
	r := recover()
	if r == nil {
		return
	}
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	logger.WithFields(map[string]interface{}{
		"panic":      fmt.Sprintf("%v", r),
		"stacktrace": string(buf[:n]),
	}).Error("panic recovered")
	*out = fmt.Errorf("panic in %s: %v", context, r)
}

// SummarizeForLog produces the short value summary the cache logs on a hit,
// per invariant: namespace, key, and a short description, never a full dump.
func SummarizeForLog(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		if len(val) > 40 {
			return fmt.Sprintf("string(len=%d)", len(val))
		}
		return val
	case []interface{}:
		return fmt.Sprintf("[]interface{}(len=%d)", len(val))
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
			if len(keys) == 3 {
				break
			}
		}
		return fmt.Sprintf("map(len=%d, keys=%v...)", len(val), keys)
	default:
		if rv := reflect.ValueOf(val); rv.Kind() == reflect.Slice {
			return fmt.Sprintf("%T(len=%d)", val, rv.Len())
		}
		return fmt.Sprintf("%T", val)
	}
}
