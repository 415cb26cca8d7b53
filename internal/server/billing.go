package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type portalSessionRequest struct {
	ReturnURL string `json:"returnUrl"`
}

func (s *Server) CreatePortalSession(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req portalSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	url, err := s.portalSvc.CreatePortalSession(c.Request.Context(), subject, req.ReturnURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.portalSvc.CancelSubscription(c.Request.Context(), subject)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
