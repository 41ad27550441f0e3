package logging

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey int

const (
	shardIDKey contextKey = iota
	loggerKey
)

// WithShardCtx returns a new context with the shard ID set.
func WithShardCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, shardIDKey, id)
}

// ShardFromCtx extracts the shard ID from the context.
func ShardFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(shardIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLoggerCtx returns a new context with the logger attached.
func WithLoggerCtx(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromCtx returns the logger from context, or nil if not set.
func LoggerFromCtx(ctx context.Context) *Logger {
	l, _ := ctx.Value(loggerKey).(*Logger)
	return l
}

// FromCtx returns a logger from the context. If none is attached, the
// global logger is used, scoped to the context's shard ID when present.
func FromCtx(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}

	l := Global()
	if id := ShardFromCtx(ctx); id != "" {
		l = l.WithShard(id)
	}
	return l
}
