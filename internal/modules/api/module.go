package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"alert_engine/internal/modules/api/handler"
	"alert_engine/internal/modules/config"
	"alert_engine/internal/modules/dispatch/pg/triggers"
	registrysvc "alert_engine/internal/modules/registry/service"
	"alert_engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("api",
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, reg *registrysvc.Registry, trg *triggers.Triggers) {
			gin.SetMode(gin.ReleaseMode)
			r := gin.New()
			r.Use(gin.Recovery())

			h := &handler.RegistryHandler{Registry: reg, Triggers: trg}
			h.Register(r)

			srv := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.PublicPort),
				Handler:           r,
				ReadHeaderTimeout: 5 * time.Second,
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						logger.Info("api: listening on %s", srv.Addr)
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							logger.Fatal("api: %v", err)
						}
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return srv.Shutdown(ctx)
				},
			})
		}),
	)
}
