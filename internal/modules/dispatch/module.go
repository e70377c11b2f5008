package dispatch

import (
	"context"

	bussvc "alert_engine/internal/modules/bus/service"
	"alert_engine/internal/modules/config"
	"alert_engine/internal/modules/dispatch/pg/triggers"
	"alert_engine/internal/modules/dispatch/service"
	registrysvc "alert_engine/internal/modules/registry/service"
	"alert_engine/pkg/db"
	"alert_engine/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("dispatch",
		fx.Provide(
			func(txm *db.PgTxManager) *triggers.Triggers {
				return triggers.New(txm)
			},
			func(store *triggers.Triggers, b *bussvc.Bus, reg *registrysvc.Registry) *service.Dispatcher {
				return service.NewDispatcher(store, b, reg)
			},
		),
		// периодический свип неопубликованных триггеров
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, store *triggers.Triggers, b *bussvc.Bus) {
			reconciler := service.NewReconciler(store, b, cfg.ReconcileGrace)
			c := cron.New(cron.WithSeconds())
			_, err := c.AddFunc(cfg.ReconcileSpec, func() {
				if _, sweepErr := reconciler.Sweep(context.Background()); sweepErr != nil {
					logger.Error("reconcile sweep: %v", sweepErr)
				}
			})
			if err != nil {
				logger.Fatal("bad reconcile spec %q: %v", cfg.ReconcileSpec, err)
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					c.Start()
					return nil
				},
				OnStop: func(_ context.Context) error {
					<-c.Stop().Done()
					return nil
				},
			})
		}),
	)
}
