package notify

import (
	"context"
	"time"

	"alert_engine/internal/models"
	bussvc "alert_engine/internal/modules/bus/service"
	"alert_engine/internal/modules/config"
	dispatchsvc "alert_engine/internal/modules/dispatch/service"
	"alert_engine/internal/modules/notify/service"
	"alert_engine/pkg/logger"

	"go.uber.org/fx"
)

const consumeRetry = 5 * time.Second

func Module() fx.Option {
	return fx.Module("notify",
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, b *bussvc.Bus) error {
			if cfg.Telegram.Token == "" {
				logger.Info("notify: telegram token not set, alert executor disabled")
				return nil
			}
			n, err := service.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					queue := dispatchsvc.QueueFor(models.SubscriberAlert)
					go func() {
						// шина at-least-once и живёт дольше одного коннекта:
						// упавший Consume перезаходит после паузы
						for {
							err := b.Consume(ctx, queue, n.Handle)
							if ctx.Err() != nil {
								return
							}
							logger.Error("notify: consumer stopped, retry in %s: %v", consumeRetry, err)
							select {
							case <-ctx.Done():
								return
							case <-time.After(consumeRetry):
							}
						}
					}()
					return nil
				},
				OnStop: func(_ context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		}),
	)
}
