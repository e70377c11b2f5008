package service

import (
	"context"
	"fmt"
	"time"

	"alert_engine/internal/helper"
	"alert_engine/internal/models"
	"alert_engine/pkg/logger"

	"github.com/bytedance/sonic"
	goredis "github.com/redis/go-redis/v9"
)

const keyPatternCandles = "candles.%s.%s" // tf, symbol

// Provider — источник свечей для оценщика: redis-кэш с коротким TTL перед
// REST-клиентом. Недоступный redis не ошибка — идём сразу в REST.
type Provider struct {
	client *Client
	rdb    *goredis.Client
	ttl    time.Duration
}

func NewProvider(client *Client, rdb *goredis.Client, ttl time.Duration) *Provider {
	return &Provider{client: client, rdb: rdb, ttl: ttl}
}

func (p *Provider) GetCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int) ([]models.CandleTick, error) {
	key := fmt.Sprintf(keyPatternCandles, tf, symbol)

	if p.rdb != nil {
		if data, err := p.rdb.Get(ctx, key).Bytes(); err == nil {
			var cached []models.CandleTick
			if err := sonic.Unmarshal(data, &cached); err == nil && len(cached) >= lookback {
				return cached[len(cached)-lookback:], nil
			}
		}
	}

	candles, err := p.client.GetCandles(ctx, symbol, tf, lookback)
	if err != nil {
		return nil, err
	}

	if p.rdb != nil {
		if data, err := sonic.Marshal(candles); err == nil {
			if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
				logger.Error("candle cache set failed: %s %s: %v", symbol, tf, err)
			}
		}
	}
	return candles, nil
}

// PutClosed дописывает закрытую свечу из WS-прогрева в кэш, сдвигая окно.
func (p *Provider) PutClosed(ctx context.Context, ct models.CandleTick, maxLen int) {
	if p.rdb == nil {
		return
	}
	key := fmt.Sprintf(keyPatternCandles, ct.TimeframeRaw, ct.InstID)

	var window []models.CandleTick
	if data, err := p.rdb.Get(ctx, key).Bytes(); err == nil {
		_ = sonic.Unmarshal(data, &window)
	}
	if n := len(window); n > 0 && window[n-1].Start.Equal(ct.Start) {
		window[n-1] = ct
	} else {
		window = append(window, ct)
	}
	if len(window) > maxLen {
		window = window[len(window)-maxLen:]
	}
	// прогретое окно живёт до следующего закрытия бара, не до следующего тика
	ttl := p.ttl
	if d := helper.TFDuration(helper.NormTF(ct.TimeframeRaw)); d > 0 {
		ttl = 2 * d
	}
	if data, err := sonic.Marshal(window); err == nil {
		if err := p.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			logger.Error("candle cache put failed: %s %s: %v", ct.InstID, ct.TimeframeRaw, err)
		}
	}
}
