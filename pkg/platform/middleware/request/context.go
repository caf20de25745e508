package request

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	deviceKey    contextKey = "device"
)

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithDevice returns a context carrying a human-readable device label.
func WithDevice(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, deviceKey, label)
}

// GetDevice returns the device label stored in ctx, or "".
func GetDevice(ctx context.Context) string {
	if v, ok := ctx.Value(deviceKey).(string); ok {
		return v
	}
	return ""
}
