package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/porterhq/porter/internal/provider"
)

func (s *Server) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers":  provider.Names(),
		"configured": s.registry.Configured(),
	})
}

func (s *Server) ListProviderScopes(c *gin.Context) {
	providerName := strings.TrimSpace(c.Param("provider"))

	adapter, err := s.registry.Resolve(providerName)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider": adapter.Name(),
		"scopes":   adapter.AvailableScopes(),
	})
}
