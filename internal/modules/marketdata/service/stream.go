package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"alert_engine/internal/helper"
	"alert_engine/internal/models"
	"alert_engine/pkg/logger"
)

const wsURL = "wss://ws.okx.com:8443/ws/v5/business"

// StreamCandlesBatch — один WebSocket на таймфрейм с пачкой инструментов в args.
// Возвращает поток CandleTick: instId + полная информация по закрытой свече.
// Прогрев кэша: закрытые свечи уходят в Provider.PutClosed, чтобы тиковые
// выборки чаще попадали в кэш.
func (c *Client) StreamCandlesBatch(ctx context.Context, symbols []string, tf models.Timeframe) <-chan models.CandleTick {
	ch := make(chan models.CandleTick)

	go func() {
		defer close(ch)

		if len(symbols) == 0 {
			return
		}

		channel := "candle" + okxBar(tf)
		tfDur := helper.TFDuration(tf)

		// подготавливаем args сразу пачкой
		args := make([]map[string]string, 0, len(symbols))
		for _, s := range symbols {
			args = append(args, map[string]string{
				"channel": channel,
				"instId":  okxInstID(s),
			})
		}

		for {
			logger.Info("[WS] batch connect %s %d symbols", channel, len(symbols))
			conn, _, err := c.wsDialer.Dial(wsURL, nil)
			if err != nil {
				logger.Error("[WS] batch dial error %s: %v", channel, err)
				time.Sleep(time.Second)
				continue
			}

			sub := map[string]any{
				"op":   "subscribe",
				"args": args,
			}
			if err := conn.WriteJSON(sub); err != nil {
				logger.Error("[WS] batch subscribe error %s: %v", channel, err)
				_ = conn.Close()
				continue
			}

			// keepalive ping каждые 20s — иначе OKX рвёт соединение с 4004
			stopPing := make(chan struct{})
			go func() {
				defer close(stopPing)
				t := time.NewTicker(20 * time.Second)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-stopPing:
						return
					case <-t.C:
						_ = conn.WriteJSON(map[string]string{"op": "ping"})
					}
				}
			}()

			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					logger.Error("[WS] batch read error %s: %v", channel, err)
					_ = conn.Close()
					break
				}

				var frame struct {
					Arg struct {
						Channel string `json:"channel"`
						InstID  string `json:"instId"`
					} `json:"arg"`
					Data [][]string `json:"data"`
				}
				if err := json.Unmarshal(msg, &frame); err != nil {
					continue
				}
				if frame.Arg.Channel != channel || len(frame.Data) == 0 {
					continue
				}

				for _, row := range frame.Data {
					// ожидаемый формат data:
					// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
					if len(row) < 6 {
						continue
					}

					// confirm всегда в последнем элементе, не хардкодим индекс 8
					if row[len(row)-1] != "1" {
						continue // ждём закрытую свечу
					}

					tsMs, err := strconv.ParseInt(row[0], 10, 64)
					if err != nil {
						continue
					}
					start := time.UnixMilli(tsMs).UTC()

					open, err1 := strconv.ParseFloat(row[1], 64)
					high, err2 := strconv.ParseFloat(row[2], 64)
					low, err3 := strconv.ParseFloat(row[3], 64)
					closep, err4 := strconv.ParseFloat(row[4], 64)
					if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
						continue
					}
					if closep <= 0 {
						continue
					}

					var vol float64
					vol, _ = strconv.ParseFloat(row[5], 64)

					var volQuote float64
					if len(row) >= 8 {
						volQuote, _ = strconv.ParseFloat(row[7], 64)
					}

					tick := models.CandleTick{
						InstID:       helper.NormSymbol(frame.Arg.InstID),
						Open:         open,
						High:         high,
						Low:          low,
						Close:        closep,
						Volume:       vol,
						QuoteVolume:  volQuote,
						Start:        start,
						End:          start.Add(tfDur),
						TimeframeRaw: string(tf),
					}

					select {
					case ch <- tick:
					case <-ctx.Done():
						_ = conn.Close()
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			default:
				time.Sleep(time.Second)
			}
		}
	}()

	return ch
}
