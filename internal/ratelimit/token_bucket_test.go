package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/kelas/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 5))
	assert.Equal(t, 10*time.Second, defaultBucketTTL(1, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(3), castToInt(3.9))
	assert.Equal(t, int64(0), castToInt("x"))
	assert.Equal(t, 2.5, castToFloat("2.5"))
	assert.Equal(t, float64(4), castToFloat(int64(4)))
	assert.Equal(t, float64(0), castToFloat(nil))
}

func TestTokenBucketRequiresClient(t *testing.T) {
	var bucket *TokenBucket
	res, err := bucket.Allow(context.Background(), "k", 1, 1)
	require.Error(t, err)
	assert.False(t, res.Allowed)
}

func TestBillingActionLimiterDisabledAllows(t *testing.T) {
	limiter, err := NewBillingActionLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "cancel", "user_1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	var nilLimiter *BillingActionLimiter
	res, err = nilLimiter.Allow(context.Background(), "portal", "user_1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
