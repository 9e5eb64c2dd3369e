package scheduler

import (
	"context"

	"github.com/mentorlane/mentorlane/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(RegisterSweeper),
)

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	if cfg.SweepInterval > 0 {
		c.RunInterval = cfg.SweepInterval
	}
	return c
}

// RegisterSweeper starts the interval loop when enabled. The cron endpoint
// can always trigger a run regardless.
func RegisterSweeper(lc fx.Lifecycle, cfg config.Config, sweeper *Sweeper) {
	if !cfg.SweepEnabled {
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go sweeper.RunForever(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
