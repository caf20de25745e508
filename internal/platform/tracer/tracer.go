// Package tracer provides a lightweight tracing abstraction for the client layers.
//
// The auth service and request layer emit spans through this interface so they
// stay decoupled from OpenTelemetry APIs.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an int attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute, exported in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value}
}

// Token attaches the fingerprint of a credential under AttrTokenFP.
func Token(secret string) Attribute {
	return String(AttrTokenFP, Fingerprint(secret))
}

// fingerprintLen is the hex length of a Fingerprint.
const fingerprintLen = 12

// Fingerprint returns a short SHA-256 prefix of a credential so traces can
// correlate calls made with the same token without carrying the token.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:fingerprintLen/2])
}

// Span names.
const (
	SpanRequest     = "backend.request"
	SpanLogin       = "auth.login"
	SpanRefresh     = "auth.refresh"
	SpanCurrentUser = "auth.current_user"
)

// Attribute keys.
const (
	AttrMethod       = "http.method"
	AttrPath         = "http.path"
	AttrStatus       = "http.status_code"
	AttrRetried      = "request.retried"
	AttrTokenFP      = "auth.token_fp"
	AttrSharedResult = "auth.refresh_shared"
)
