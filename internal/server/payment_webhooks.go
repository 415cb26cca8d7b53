package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/kelas/internal/observability/context"
	paymentdomain "github.com/smallbiznis/kelas/internal/payment/domain"
)

const maxWebhookBytes = 1 << 20

// HandlePaymentWebhook answers 200 for processed, duplicate and ignored
// deliveries so the provider stops retrying them.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	c.Set(obscontext.GinKeyWebhookOutcome, string(outcome))
	if err != nil {
		if outcome == paymentdomain.OutcomeFailed {
			// Lookup misses while processing are retryable, never a 4xx.
			err = fmt.Errorf("%w: %v", ErrInternal, err)
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
