package logger

import "context"

// Fields is the structured payload attached to a log entry.
type Fields = map[string]interface{}

// Logger defines the interface for structured logging with context support.
type Logger interface {
	Debug(ctx context.Context, msg string, fields Fields)
	Info(ctx context.Context, msg string, fields Fields)
	Warn(ctx context.Context, msg string, fields Fields)
	Error(ctx context.Context, msg string, fields Fields)

	// WithField returns a logger that adds key to every subsequent entry.
	WithField(key string, value interface{}) Logger

	// WithFields returns a logger that adds fields to every subsequent entry.
	WithFields(fields Fields) Logger
}

type ctxKey struct{}

// IntoContext stores a request or run scoped logger in ctx.
func IntoContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by IntoContext, or fallback.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return fallback
}
