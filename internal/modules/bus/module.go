package bus

import (
	"context"

	"alert_engine/internal/modules/bus/service"
	"alert_engine/internal/modules/config"
	healthsvc "alert_engine/internal/modules/health/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("bus",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config, state *healthsvc.State) (*service.Bus, error) {
				b := service.New(cfg.AMQP.URL, cfg.AMQP.Prefetch)
				lc.Append(fx.Hook{
					OnStart: func(_ context.Context) error {
						if err := b.Connect(); err != nil {
							return err
						}
						state.SetBusConnected(true)
						return nil
					},
					OnStop: func(_ context.Context) error {
						state.SetBusConnected(false)
						return b.Close()
					},
				})
				return b, nil
			},
		),
	)
}
