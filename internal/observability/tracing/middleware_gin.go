package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/kelas/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrSubject         = attribute.Key("kelas.subject")
	AttrWebhookProvider = attribute.Key("kelas.webhook.provider")
	AttrWebhookOutcome  = attribute.Key("kelas.webhook.outcome")
	AttrRateLimited     = attribute.Key("kelas.rate_limited_reason")
)

// health checks and metric scrapes stay out of traces
var untracedPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// GinMiddleware opens a server span per request and tags it with the
// caller subject, webhook provider and outcome set by the handlers.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("kelas/http")
	return func(c *gin.Context) {
		if _, skip := untracedPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestIDBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, status)...)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func requestAttributes(c *gin.Context, route string, status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}
	if subject := strings.TrimSpace(c.GetString(obscontext.GinKeySubject)); subject != "" {
		attrs = append(attrs, AttrSubject.String(subject))
	}
	if provider := strings.ToLower(strings.TrimSpace(c.Param("provider"))); provider != "" {
		attrs = append(attrs, AttrWebhookProvider.String(provider))
	}
	if outcome := strings.TrimSpace(c.GetString(obscontext.GinKeyWebhookOutcome)); outcome != "" {
		attrs = append(attrs, AttrWebhookOutcome.String(outcome))
	}
	if reason := strings.TrimSpace(c.Writer.Header().Get("X-Rate-Limited-Reason")); reason != "" {
		attrs = append(attrs, AttrRateLimited.String(reason))
	}
	return attrs
}

func withRequestIDBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
