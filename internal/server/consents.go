package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	consentdomain "github.com/porterhq/porter/internal/consent/domain"
	"github.com/porterhq/porter/pkg/db/pagination"
)

type listConsentsQuery struct {
	pagination.Pagination

	IntegrationID string `form:"integration_id"`
	Status        string `form:"status"`
}

func (s *Server) ListConsents(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listConsentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := consentdomain.ListRequest{
		Pagination: query.Pagination,
		Status:     consentdomain.Status(strings.TrimSpace(query.Status)),
	}
	if raw := strings.TrimSpace(query.IntegrationID); raw != "" {
		integrationID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("integration_id", "invalid_integration_id", "invalid integration_id"))
			return
		}
		req.IntegrationID = integrationID
	}

	page, err := s.consents.ListForUser(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"consents": page.Consents, "page_info": page.PageInfo})
}

func (s *Server) ConsentSummary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := s.consents.Summarize(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

type revokeConsentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RevokeConsent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	consentID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req revokeConsentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	if err := s.consents.Revoke(c.Request.Context(), userID, consentID, strings.TrimSpace(req.Reason)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"consent_id": consentID, "revoked": true})
}
