package logging

import (
	"context"

	"go.uber.org/zap"
)

type sessionIDKey struct{}

// WithSessionID attaches a session id to the context for log correlation.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the session id attached by WithSessionID.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok
}

// ContextFields extracts correlation fields from the context.
func ContextFields(ctx context.Context) []zap.Field {
	if id, ok := SessionIDFromContext(ctx); ok && id != "" {
		return []zap.Field{zap.String("session_id", id)}
	}
	return nil
}
