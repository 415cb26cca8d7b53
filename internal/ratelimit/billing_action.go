package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kelas/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyBillingAction = "billing:action:%s:%s"

// BillingActionLimiter throttles user-initiated portal and cancel calls per subject.
// A nil or disabled limiter allows everything.
type BillingActionLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

// NewRedisClient returns nil when REDIS_ADDR is unset.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Info("redis not configured, billing action rate limiting disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewBillingActionLimiter(cfg config.Config, client *redis.Client) (*BillingActionLimiter, error) {
	if client == nil {
		return &BillingActionLimiter{}, nil
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return nil, errors.New("billing action rate limit must be positive")
	}
	return &BillingActionLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.RateLimitRPS,
		burst:   cfg.RateLimitBurst,
	}, nil
}

func (l *BillingActionLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one token for subject on action.
func (l *BillingActionLimiter) Allow(ctx context.Context, action, subject string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyBillingAction, strings.TrimSpace(action), strings.TrimSpace(subject))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
