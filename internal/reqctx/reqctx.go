// Package reqctx carries per-request values through context.
package reqctx

import "context"

type contextKey string

const keyRequestID contextKey = "request_id"

// HeaderRequestID is the header used to propagate request ids.
const HeaderRequestID = "X-Request-ID"

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(keyRequestID).(string); ok {
		return id
	}
	return ""
}
