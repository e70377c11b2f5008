package registry

import (
	"alert_engine/internal/modules/registry/pg/conditions"
	"alert_engine/internal/modules/registry/pg/subscriptions"
	"alert_engine/internal/modules/registry/service"
	"alert_engine/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(
			func(txm *db.PgTxManager) *service.Registry {
				return service.NewRegistry(
					conditions.New(txm),
					subscriptions.New(txm),
				)
			},
		),
	)
}
