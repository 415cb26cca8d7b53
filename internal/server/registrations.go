package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	registrationdomain "github.com/smallbiznis/kelas/internal/registration/domain"
)

// ListRegistrations returns the caller's registrations for a payment intent,
// or the most recent ones. An empty array means not reconciled yet.
func (s *Server) ListRegistrations(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.EnsureUser(ctx, subject)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var items []registrationdomain.Registration
	if ref := paymentRefQuery(c); ref != "" {
		items, err = s.registrations.ByPayment(ctx, user.ID, ref)
	} else {
		items, err = s.registrations.Latest(ctx, user.ID)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []registrationdomain.Registration{}
	}

	c.JSON(http.StatusOK, items)
}

func paymentRefQuery(c *gin.Context) string {
	if ref := strings.TrimSpace(c.Query("payment_intent")); ref != "" {
		return ref
	}
	return strings.TrimSpace(c.Query("paymentIntentId"))
}
