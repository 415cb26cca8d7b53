package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSubscription returns the cached plan fields, creating a FREE record on first call.
func (s *Server) GetSubscription(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	snapshot, err := s.users.Current(c.Request.Context(), subject)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
