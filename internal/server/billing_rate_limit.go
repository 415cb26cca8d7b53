package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kelas/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	actionPortalSession      = "portal_session"
	actionCancelSubscription = "cancel_subscription"

	rateLimitReasonSubjectRate = "subject-rate"
)

// BillingActionRateLimit throttles portal and cancel calls per authenticated subject.
func (s *Server) BillingActionRateLimit(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		subject, ok := subjectFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.Allow(ctx, action, subject)
		if err != nil {
			logger.FromContext(ctx).Warn("billing action rate limit check failed",
				zap.String("action", action),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if result.Allowed {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		logger.FromContext(ctx).Warn("billing action rate limit exceeded",
			zap.String("reason", rateLimitReasonSubjectRate),
			zap.String("endpoint", endpoint),
		)
		s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonSubjectRate)

		c.Header("Retry-After", retryAfterSeconds(result.RetryAfter.Seconds()))
		c.Header("X-Rate-Limited-Reason", rateLimitReasonSubjectRate)
		AbortWithError(c, ErrRateLimited)
	}
}

func retryAfterSeconds(seconds float64) string {
	if seconds < 1 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(seconds)))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
