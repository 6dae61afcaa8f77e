package refreshlock

import (
	"strings"
	"time"

	"github.com/porterhq/porter/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("refresh.lock",
	fx.Provide(Provide),
)

func Provide(cfg config.Config) *Guard {
	var client *redis.Client
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: strings.TrimSpace(cfg.RedisPassword),
			DB:       cfg.RedisDB,
		})
	}
	return NewGuard(client, 30*time.Second)
}
