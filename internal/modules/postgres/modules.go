package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"alert_engine/internal/modules/config"
	"alert_engine/pkg/db"

	"github.com/jackc/pgx/v5"
	"go.uber.org/fx"
)

//go:embed schema.sql
var schemaSQL string

// PgTxManager регистрируем как fx-провайдер; схему накатываем при старте,
// все выражения идемпотентны (IF NOT EXISTS).
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				m := db.NewPgTxManager(poolMaster)
				err = m.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
					_, execErr := tx.Exec(ctxTx, schemaSQL)
					return execErr
				})
				if err != nil {
					return nil, fmt.Errorf("failed to apply schema: %w", err)
				}

				return m, nil
			},
		),
	)
}
