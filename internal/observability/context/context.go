package context

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "request_id"
	correlationIDKey ctxKey = "correlation_id"
	subjectKey       ctxKey = "subject"
)

// Request-scoped values that handlers hand to the outer gin middlewares.
const (
	GinKeySubject        = "subject"
	GinKeyWebhookOutcome = "webhook_outcome"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithCorrelationID binds id to ctx, generating a ULID when id is empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		id = ulid.Make().String()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithSubject records the authenticated identity-provider subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, strings.TrimSpace(subject))
}

func SubjectFromContext(ctx context.Context) string {
	return stringValue(ctx, subjectKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
