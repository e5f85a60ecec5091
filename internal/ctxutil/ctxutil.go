// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import (
	"context"

	"go.uber.org/zap"
)

// LoggerKey is the context key for the logger.
type LoggerKey struct{}

// InstanceKey is the context key for the invocation's instance id.
type InstanceKey struct{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

// Logger returns the logger from context, or a no-op logger if not set.
func Logger(ctx context.Context) *zap.Logger {
	if v, ok := ctx.Value(LoggerKey{}).(*zap.Logger); ok && v != nil {
		return v
	}
	return zap.NewNop()
}

// WithInstanceID returns a context with the instance id embedded.
func WithInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, InstanceKey{}, instanceID)
}

// InstanceFromContext returns the instance id from context, or empty string if not set.
func InstanceFromContext(ctx context.Context) string {
	if v := ctx.Value(InstanceKey{}); v != nil {
		return v.(string)
	}
	return ""
}
