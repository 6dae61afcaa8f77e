package integration

import (
	"github.com/porterhq/porter/internal/config"
	"github.com/porterhq/porter/internal/integration/repository"
	"github.com/porterhq/porter/internal/integration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("integration.orchestrator",
	fx.Provide(repository.Provide),
	fx.Provide(provideConfig),
	fx.Provide(service.New),
)

func provideConfig(cfg config.Config) service.Config {
	return service.Config{
		AllowedRedirectURIs: cfg.AllowedRedirectURIs,
		AuditRetentionDays:  cfg.AuditRetentionDays,
	}
}
