package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	secdomain "github.com/porterhq/porter/internal/security/domain"
	"github.com/porterhq/porter/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	pagination.Pagination

	Provider string `form:"provider"`
	Action   string `form:"action"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	page, err := s.guard.ListAuditLogs(c.Request.Context(), secdomain.ListAuditLogsRequest{
		Pagination: query.Pagination,
		UserID:     userID,
		Provider:   strings.TrimSpace(query.Provider),
		Action:     strings.TrimSpace(query.Action),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"audit_logs": page.Logs, "page_info": page.PageInfo})
}
