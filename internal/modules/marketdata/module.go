package marketdata

import (
	"context"
	"sort"
	"time"

	"alert_engine/internal/models"
	"alert_engine/internal/modules/config"
	mdservice "alert_engine/internal/modules/marketdata/service"
	registrysvc "alert_engine/internal/modules/registry/service"
	"alert_engine/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const warmRefresh = 5 * time.Minute

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			func(cfg *config.Config) *mdservice.Client {
				return mdservice.NewClient(cfg.FetchTimeout)
			},
			func(cfg *config.Config, client *mdservice.Client, rdb *goredis.Client) *mdservice.Provider {
				return mdservice.NewProvider(client, rdb, cfg.CandleTTL)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			cfg *config.Config,
			client *mdservice.Client,
			provider *mdservice.Provider,
			reg *registrysvc.Registry,
			ctx context.Context,
		) {
			if !cfg.WarmStream {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go warmLoop(ctx, cfg, client, provider, reg)
					return nil
				},
			})
		}),
	)
}

// warmLoop переподписывает WS-потоки на текущий набор (symbol, timeframe) из
// реестра; набор перечитывается раз в warmRefresh.
func warmLoop(ctx context.Context, cfg *config.Config, client *mdservice.Client, provider *mdservice.Provider, reg *registrysvc.Registry) {
	for {
		subs, err := reg.ListActive(ctx)
		if err != nil {
			logger.Error("warm stream: list active failed: %v", err)
		}

		streamCtx, cancel := context.WithCancel(ctx)
		for tf, symbols := range groupSymbols(subs) {
			go func(tf models.Timeframe, symbols []string) {
				for ct := range client.StreamCandlesBatch(streamCtx, symbols, tf) {
					provider.PutClosed(streamCtx, ct, cfg.Lookback)
				}
			}(tf, symbols)
		}

		select {
		case <-ctx.Done():
			cancel()
			return
		case <-time.After(warmRefresh):
			cancel()
		}
	}
}

func groupSymbols(subs []models.ActiveSubscription) map[models.Timeframe][]string {
	seen := map[models.Timeframe]map[string]bool{}
	for _, s := range subs {
		tf := s.Condition.Timeframe
		if seen[tf] == nil {
			seen[tf] = map[string]bool{}
		}
		seen[tf][s.Condition.Symbol] = true
	}
	out := make(map[models.Timeframe][]string, len(seen))
	for tf, set := range seen {
		symbols := make([]string, 0, len(set))
		for s := range set {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		out[tf] = symbols
	}
	return out
}
