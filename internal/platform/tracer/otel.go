package tracer

import (
	"context"
	"encoding/hex"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "procura/pkg/domain-errors"
)

const instrumentationName = "procura/client"

// AttrErrorCode carries the domain code of a failed span.
const AttrErrorCode = "error.code"

// OTelTracer exports spans through OpenTelemetry. Every span it opens is a
// client span: each one covers a call made to the backend on the session's
// behalf.
type OTelTracer struct {
	tracer trace.Tracer
}

// OTelOption configures an OTelTracer.
type OTelOption func(*OTelTracer)

// WithTracerProvider takes spans from provider instead of the global one.
func WithTracerProvider(provider trace.TracerProvider) OTelOption {
	return func(o *OTelTracer) {
		if provider != nil {
			o.tracer = provider.Tracer(instrumentationName)
		}
	}
}

// NewOTel creates a tracer on the global provider unless one is given.
func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(instrumentationName)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(keyValues(attrs)...),
	)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

// End marks a failed span with its domain code. The status description is the
// code alone; backend message text stays in the recorded error event.
func (s *otelSpan) End(err error) {
	if err != nil {
		code := string(dErrors.CodeOf(err))
		s.span.SetAttributes(attribute.String(AttrErrorCode, code))
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, code)
	}
	s.span.End()
}

func (s *otelSpan) SetAttributes(attrs ...Attribute) {
	if kvs := keyValues(attrs); len(kvs) > 0 {
		s.span.SetAttributes(kvs...)
	}
}

func (s *otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(keyValues(attrs)...))
}

func keyValues(attrs []Attribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if kv, ok := keyValue(a); ok {
			out = append(out, kv)
		}
	}
	return out
}

// keyValue converts one attribute. Anything under AttrTokenFP that is not
// already a fingerprint is fingerprinted here, so a raw credential never
// reaches the exporter; an empty one is dropped.
func keyValue(a Attribute) (attribute.KeyValue, bool) {
	key := attribute.Key(a.Key)
	switch v := a.Value.(type) {
	case string:
		if a.Key == AttrTokenFP {
			if v == "" {
				return attribute.KeyValue{}, false
			}
			if !isFingerprint(v) {
				v = Fingerprint(v)
			}
		}
		return key.String(v), true
	case bool:
		return key.Bool(v), true
	case int:
		return key.Int(v), true
	case int64:
		return key.Int64(v), true
	case float64:
		return key.Float64(v), true
	case time.Duration:
		return key.Int64(v.Milliseconds()), true
	case dErrors.Code:
		return key.String(string(v)), true
	default:
		return attribute.KeyValue{}, false
	}
}

func isFingerprint(v string) bool {
	if len(v) != fingerprintLen {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = (*otelSpan)(nil)
)
