package evaluator

import (
	"context"

	"alert_engine/internal/modules/config"
	dispatchsvc "alert_engine/internal/modules/dispatch/service"
	"alert_engine/internal/modules/evaluator/service"
	healthsvc "alert_engine/internal/modules/health/service"
	mdservice "alert_engine/internal/modules/marketdata/service"
	registrysvc "alert_engine/internal/modules/registry/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("evaluator",
		fx.Provide(
			func(cfg *config.Config, reg *registrysvc.Registry, provider *mdservice.Provider,
				disp *dispatchsvc.Dispatcher, state *healthsvc.State) *service.Evaluator {
				return service.NewEvaluator(cfg, reg, provider, disp, state)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, e *service.Evaluator, state *healthsvc.State) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go e.Run(ctx)
					state.SetReady(true)
					return nil
				},
				OnStop: func(_ context.Context) error {
					state.SetReady(false)
					cancel()
					return nil
				},
			})
		}),
	)
}
