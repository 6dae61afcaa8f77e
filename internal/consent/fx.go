package consent

import (
	"github.com/porterhq/porter/internal/consent/repository"
	"github.com/porterhq/porter/internal/consent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("consent.ledger",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
