package token

import (
	"github.com/porterhq/porter/internal/config"
	"github.com/porterhq/porter/internal/token/crypto"
	"github.com/porterhq/porter/internal/token/repository"
	"github.com/porterhq/porter/internal/token/service"
	"go.uber.org/fx"
)

var Module = fx.Module("token.store",
	fx.Provide(repository.Provide),
	fx.Provide(provideCipher),
	fx.Provide(provideConfig),
	fx.Provide(service.New),
)

func provideCipher(cfg config.Config) (*crypto.Cipher, error) {
	return crypto.New(cfg.TokenEncryptionKey)
}

func provideConfig(cfg config.Config) service.Config {
	return service.Config{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}
}
