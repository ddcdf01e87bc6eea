package events

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	operationKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	// Return default logger
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("request_id", id)
	ctx = context.WithValue(ctx, requestIDKey, id)
	return WithLogger(ctx, logger)
}

// EnsureRequestID assigns a fresh request ID unless ctx already carries one.
func EnsureRequestID(ctx context.Context) context.Context {
	if GetRequestID(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, uuid.NewString())
}

// WithOperation adds the operation name (encrypt, decrypt, ...) to context.
func WithOperation(ctx context.Context, op string) context.Context {
	logger := FromContext(ctx).WithField("op", op)
	ctx = context.WithValue(ctx, operationKey, op)
	return WithLogger(ctx, logger)
}

// GetRequestID retrieves request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetOperation retrieves the operation name from context.
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok {
		return op
	}
	return ""
}

var defaultLogger = &Logger{
	mu:     &sync.Mutex{},
	level:  InfoLevel,
	format: "text",
	output: os.Stderr,
	fields: make(map[string]interface{}),
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
