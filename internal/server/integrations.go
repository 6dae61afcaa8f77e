package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	integrationdomain "github.com/porterhq/porter/internal/integration/domain"
)

type listIntegrationsQuery struct {
	Provider   string `form:"provider"`
	ActiveOnly *bool  `form:"active_only"`
}

func (s *Server) ListIntegrations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listIntegrationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	activeOnly := true
	if query.ActiveOnly != nil {
		activeOnly = *query.ActiveOnly
	}

	integrations, err := s.orchestrator.ListForUser(c.Request.Context(), userID, strings.TrimSpace(query.Provider), activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"integrations": integrations})
}

func (s *Server) RefreshIntegration(c *gin.Context) {
	integration, ok := s.ownedIntegration(c)
	if !ok {
		return
	}

	refreshed, err := s.orchestrator.RefreshTokens(c.Request.Context(), integration.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"integration_id": integration.ID,
		"refreshed":      refreshed,
	})
}

type revokeIntegrationRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RevokeIntegration(c *gin.Context) {
	integration, ok := s.ownedIntegration(c)
	if !ok {
		return
	}

	var req revokeIntegrationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	revoked, err := s.orchestrator.Revoke(c.Request.Context(), integration.ID, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"integration_id": integration.ID,
		"revoked":        revoked,
	})
}

func (s *Server) DeactivateIntegration(c *gin.Context) {
	integration, ok := s.ownedIntegration(c)
	if !ok {
		return
	}

	if err := s.orchestrator.Deactivate(c.Request.Context(), integration.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"integration_id": integration.ID,
		"status":         integrationdomain.StatusInactive,
	})
}

func (s *Server) SyncIntegrations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	report, err := s.orchestrator.SyncAll(c.Request.Context(), &userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ownedIntegration parses the path id and checks the integration belongs to
// the acting user. Foreign integrations read as not found.
func (s *Server) ownedIntegration(c *gin.Context) (*integrationdomain.Integration, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}

	integrationID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return nil, false
	}

	integrations, err := s.orchestrator.ListForUser(c.Request.Context(), userID, "", false)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	for _, integration := range integrations {
		if integration.ID == integrationID {
			return integration, true
		}
	}

	AbortWithError(c, ErrNotFound)
	return nil, false
}
