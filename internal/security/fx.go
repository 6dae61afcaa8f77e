package security

import (
	"github.com/porterhq/porter/internal/config"
	"github.com/porterhq/porter/internal/security/repository"
	"github.com/porterhq/porter/internal/security/service"
	"go.uber.org/fx"
)

var Module = fx.Module("security.guard",
	fx.Provide(repository.Provide),
	fx.Provide(provideConfig),
	fx.Provide(service.New),
)

func provideConfig(cfg config.Config) service.Config {
	return service.Config{
		StateTTL: cfg.StateTTL,
	}
}
