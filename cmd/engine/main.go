package main

import (
	"context"
	"log"

	"alert_engine/internal/modules/api"
	"alert_engine/internal/modules/bus"
	"alert_engine/internal/modules/config"
	"alert_engine/internal/modules/dispatch"
	"alert_engine/internal/modules/evaluator"
	"alert_engine/internal/modules/health"
	"alert_engine/internal/modules/marketdata"
	"alert_engine/internal/modules/notify"
	"alert_engine/internal/modules/postgres"
	"alert_engine/internal/modules/redis"
	"alert_engine/internal/modules/registry"
	"alert_engine/pkg/logger"
	"alert_engine/pkg/tracing"

	"go.uber.org/fx"
)

const serviceName = "alert_engine"

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
		config.Module(),
		postgres.Module(),
		redis.Module(),
		health.Module(),
		bus.Module(),
		registry.Module(),
		marketdata.Module(),
		dispatch.Module(),
		evaluator.Module(),
		notify.Module(),
		api.Module(),
	)
	app.Run()
}
