package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	integrationdomain "github.com/porterhq/porter/internal/integration/domain"
)

type initiateOAuthRequest struct {
	Scopes      []string       `json:"scopes"`
	RedirectURI string         `json:"redirect_uri"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) InitiateOAuth(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	providerName := strings.TrimSpace(c.Param("provider"))
	if providerName == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req initiateOAuthRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	initiation, err := s.orchestrator.InitiateFlow(c.Request.Context(), integrationdomain.FlowRequest{
		UserID:      userID,
		Provider:    providerName,
		Scopes:      req.Scopes,
		RedirectURI: req.RedirectURI,
		Metadata:    req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, initiation)
}

func (s *Server) OAuthCallback(c *gin.Context) {
	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		AbortWithError(c, newValidationError("error", "provider_denied", providerErr))
		return
	}

	stateToken := strings.TrimSpace(c.Query("state"))
	code := strings.TrimSpace(c.Query("code"))
	if stateToken == "" || code == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	// Provider is optional on the callback; the state row carries it.
	providerName := strings.TrimSpace(c.Query("provider"))

	result, err := s.orchestrator.HandleCallback(c.Request.Context(), stateToken, code, providerName)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
