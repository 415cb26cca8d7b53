package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	authservice "github.com/smallbiznis/kelas/internal/auth/service"
	obscontext "github.com/smallbiznis/kelas/internal/observability/context"
)

const contextSubjectKey = obscontext.GinKeySubject

// AuthRequired verifies the bearer token and binds the caller subject to the request.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := authservice.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: %w", ErrUnauthorized, err))
			return
		}

		identity, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: %w", ErrUnauthorized, err))
			return
		}

		ctx := obscontext.WithSubject(c.Request.Context(), identity.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextSubjectKey, identity.Subject)
		c.Next()
	}
}

func subjectFrom(c *gin.Context) (string, bool) {
	subject := strings.TrimSpace(c.GetString(contextSubjectKey))
	return subject, subject != ""
}
