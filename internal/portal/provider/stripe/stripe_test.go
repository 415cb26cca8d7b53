package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/kelas/internal/config"
	portaldomain "github.com/smallbiznis/kelas/internal/portal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, timeoutMS int64) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{Stripe: config.StripeConfig{
		SecretKey: "sk_test_123",
		APIURL:    srv.URL,
		TimeoutMS: timeoutMS,
	}}
	return New(cfg, zap.NewNop())
}

func TestCreatePortalSession(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/billing_portal/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "https://kelas.example/account", r.PostForm.Get("return_url"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"bps_1","object":"billing_portal.session","customer":"cus_1","url":"https://billing.stripe.com/p/session/test_1"}`))
	}, 0)

	url, err := p.CreatePortalSession(context.Background(), "cus_1", "https://kelas.example/account")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.com/p/session/test_1", url)
}

func TestCancelSubscription(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sub_1","object":"subscription","status":"canceled"}`))
	}, 0)

	require.NoError(t, p.CancelSubscription(context.Background(), "sub_1"))
}

func TestProviderErrorsAreSurfaced(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription: 'sub_x'"}}`))
	}, 0)

	err := p.CancelSubscription(context.Background(), "sub_x")
	require.ErrorIs(t, err, portaldomain.ErrProviderCallFailed)
	assert.Contains(t, err.Error(), "resource_missing")
}

func TestProviderCallIsBounded(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}, 50)
	defer close(release)

	start := time.Now()
	_, err := p.CreatePortalSession(context.Background(), "cus_1", "https://kelas.example")
	require.ErrorIs(t, err, portaldomain.ErrProviderCallFailed)
	assert.Less(t, time.Since(start), time.Second)
}
