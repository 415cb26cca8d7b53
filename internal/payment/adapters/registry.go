package adapters

import (
	"strings"

	"github.com/smallbiznis/kelas/internal/payment/domain"
)

// Registry resolves the adapter serving a webhook path segment.
type Registry struct {
	adapters map[string]domain.PaymentAdapter
}

func NewRegistry(adapters ...domain.PaymentAdapter) *Registry {
	registry := &Registry{adapters: map[string]domain.PaymentAdapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(adapter.Provider()))
		if provider == "" {
			continue
		}
		registry.adapters[provider] = adapter
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	_, err := r.Adapter(provider)
	return err == nil
}

func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}
