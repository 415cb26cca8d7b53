package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPlanCatalogHolderLoadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans.yml")
	content := "plans:\n  prices:\n    price_basic_monthly: basic\n    price_premium_yearly: PREMIUM\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	holder, err := NewPlanCatalogHolder(Config{PlanCatalogPath: path}, zap.NewNop())
	require.NoError(t, err)

	tier, ok := holder.Get().TierForPrice("price_basic_monthly")
	require.True(t, ok)
	assert.Equal(t, "BASIC", tier)

	tier, ok = holder.Get().TierForPrice("price_premium_yearly")
	require.True(t, ok)
	assert.Equal(t, "PREMIUM", tier)

	_, ok = holder.Get().TierForPrice("price_unknown")
	assert.False(t, ok)
}

func TestPlanCatalogHolderRejectsUnknownTier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans.yml")
	content := "plans:\n  prices:\n    price_x: GOLD\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := NewPlanCatalogHolder(Config{PlanCatalogPath: path}, zap.NewNop())
	require.Error(t, err)
}

func TestStaticPlanCatalog(t *testing.T) {
	holder := NewStaticPlanCatalog(map[string]string{"price_1": "basic"})
	tier, ok := holder.Get().TierForPrice("price_1")
	require.True(t, ok)
	assert.Equal(t, "BASIC", tier)

	var nilHolder *PlanCatalogHolder
	_, ok = nilHolder.Get().TierForPrice("price_1")
	assert.False(t, ok)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WEBHOOK_TOLERANCE_SECONDS", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	cfg := Load()
	assert.Equal(t, int64(300), cfg.Stripe.WebhookTolerance)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.RateLimitBurst)
}
