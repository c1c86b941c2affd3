package logging

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestIDFromContext returns the request id if present.
func RequestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDKey)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// ContextWithRequestID stores rid on ctx.
func ContextWithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// NewRequestID returns a random request id without dashes (32 hex chars).
func NewRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
