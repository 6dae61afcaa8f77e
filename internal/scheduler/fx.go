package scheduler

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(Start),
)

func ProvideConfig() Config {
	cfg := DefaultConfig()
	if value := strings.TrimSpace(os.Getenv("SCHEDULER_INTERVAL")); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			cfg.RunInterval = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("SCHEDULER_REFRESH_WINDOW")); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			cfg.RefreshWindow = parsed
		}
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("SCHEDULER_DISABLED")), "true") {
		cfg.Enabled = false
	}
	return cfg
}

func Start(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
