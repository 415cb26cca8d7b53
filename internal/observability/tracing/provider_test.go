package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, provider)
}

func TestNewProviderRejectsUnknownProtocol(t *testing.T) {
	_, err := NewProvider(nil, Config{Enabled: true, ExporterProtocol: "carrier-pigeon"}, zap.NewNop())
	require.Error(t, err)
}

func TestSafeAttributes(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/webhooks/stripe"),
		attribute.String("http.request.header.stripe-signature", "t=1,v1=abc"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorTruncates(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(errors.New(strings.Repeat("x", 1000)))
	assert.Len(t, err.Error(), 256)
}
