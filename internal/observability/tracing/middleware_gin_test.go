package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/kelas/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return recorder
}

func newTracedEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/webhooks/:provider", func(c *gin.Context) {
		c.Set(obscontext.GinKeyWebhookOutcome, "duplicate")
		c.Status(http.StatusOK)
	})
	r.POST("/api/billing/cancel", func(c *gin.Context) {
		c.Set(obscontext.GinKeySubject, "user_1")
		c.Header("X-Rate-Limited-Reason", "subject-rate")
		c.Status(http.StatusTooManyRequests)
	})
	r.GET("/api/subscription", func(c *gin.Context) {
		c.Set(obscontext.GinKeySubject, "user_1")
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})
	return r
}

func serve(r *gin.Engine, method, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareTagsWebhookSpans(t *testing.T) {
	recorder := recordSpans(t)
	serve(newTracedEngine(), http.MethodPost, "/api/webhooks/Stripe")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /api/webhooks/:provider", spans[0].Name())
	got := attrs(spans[0])
	assert.Equal(t, "stripe", got[AttrWebhookProvider].AsString())
	assert.Equal(t, "duplicate", got[AttrWebhookOutcome].AsString())
	assert.Equal(t, int64(http.StatusOK), got["http.status_code"].AsInt64())
	_, hasSubject := got[AttrSubject]
	assert.False(t, hasSubject)
}

func TestGinMiddlewareTagsSubjectAndRateLimit(t *testing.T) {
	recorder := recordSpans(t)
	serve(newTracedEngine(), http.MethodPost, "/api/billing/cancel")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	got := attrs(spans[0])
	assert.Equal(t, "user_1", got[AttrSubject].AsString())
	assert.Equal(t, "subject-rate", got[AttrRateLimited].AsString())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	recorder := recordSpans(t)
	serve(newTracedEngine(), http.MethodGet, "/api/subscription")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestGinMiddlewareSkipsHealth(t *testing.T) {
	recorder := recordSpans(t)
	serve(newTracedEngine(), http.MethodGet, "/health")
	assert.Empty(t, recorder.Ended())
}
