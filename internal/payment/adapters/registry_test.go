package adapters

import (
	"context"
	"net/http"
	"testing"

	eventdomain "github.com/smallbiznis/kelas/internal/billingevent/domain"
	"github.com/smallbiznis/kelas/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct{ name string }

func (f fakeAdapter) Provider() string { return f.name }
func (fakeAdapter) Verify(context.Context, []byte, http.Header) error {
	return nil
}
func (fakeAdapter) Parse(context.Context, []byte) (*eventdomain.Envelope, error) {
	return &eventdomain.Envelope{}, nil
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(fakeAdapter{name: " Stripe "}, nil, fakeAdapter{name: ""})

	adapter, err := registry.Adapter("STRIPE")
	require.NoError(t, err)
	assert.Equal(t, " Stripe ", adapter.Provider())

	_, err = registry.Adapter("paypal")
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
	assert.False(t, registry.ProviderExists(""))

	var nilRegistry *Registry
	assert.False(t, nilRegistry.ProviderExists("stripe"))
}
