package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"alert_engine/internal/helper"
	"alert_engine/internal/models"

	"github.com/gorilla/websocket"
)

// ErrUpstreamUnavailable — поставщик данных временно недоступен. Для оценщика
// это "пропусти группу в этом тике", не фатальная ошибка.
var ErrUpstreamUnavailable = errors.New("market data unavailable")

const restBase = "https://www.okx.com"

type Client struct {
	http     *http.Client
	wsDialer *websocket.Dialer
}

func NewClient(fetchTimeout time.Duration) *Client {
	return &Client{
		http:     &http.Client{Timeout: fetchTimeout},
		wsDialer: websocket.DefaultDialer,
	}
}

type candlesResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// GetCandles — последние lookback закрытых свечей, самая свежая последней.
func (c *Client) GetCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int) ([]models.CandleTick, error) {
	q := url.Values{}
	q.Set("instId", okxInstID(symbol))
	q.Set("bar", okxBar(tf))
	q.Set("limit", strconv.Itoa(lookback))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		restBase+"/api/v5/market/candles?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrUpstreamUnavailable, resp.StatusCode, string(rb))
	}
	var respData candlesResponse
	if err := json.Unmarshal(rb, &respData); err != nil {
		return nil, err
	}
	if respData.Code != "0" {
		return nil, fmt.Errorf("%w: okx candles error: code=%s msg=%s", ErrUpstreamUnavailable, respData.Code, respData.Msg)
	}

	tfDur := helper.TFDuration(tf)
	// OKX отдаёт новейшие первыми; разворачиваем, чтобы свежая была последней
	out := make([]models.CandleTick, 0, len(respData.Data))
	for i := len(respData.Data) - 1; i >= 0; i-- {
		row := respData.Data[i]
		if len(row) < 6 {
			continue
		}
		tsMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(row[1], 64)
		high, err2 := strconv.ParseFloat(row[2], 64)
		low, err3 := strconv.ParseFloat(row[3], 64)
		closep, err4 := strconv.ParseFloat(row[4], 64)
		vol, err5 := strconv.ParseFloat(row[5], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		var volQuote float64
		if len(row) >= 8 {
			volQuote, _ = strconv.ParseFloat(row[7], 64)
		}
		start := time.UnixMilli(tsMs).UTC()
		out = append(out, models.CandleTick{
			InstID:       symbol,
			Open:         open,
			High:         high,
			Low:          low,
			Close:        closep,
			Volume:       vol,
			QuoteVolume:  volQuote,
			Start:        start,
			End:          start.Add(tfDur),
			TimeframeRaw: string(tf),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty candle response for %s %s", ErrUpstreamUnavailable, symbol, tf)
	}
	return out, nil
}

var knownQuotes = []string{"USDT", "USDC", "USD", "BTC", "ETH"}

// okxInstID: канонический символ без разделителей -> instId OKX ("BTCUSDT" -> "BTC-USDT").
func okxInstID(symbol string) string {
	for _, quote := range knownQuotes {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "-" + quote
		}
	}
	return symbol
}

func okxBar(tf models.Timeframe) string {
	switch tf {
	case models.TF1h:
		return "1H"
	case models.TF4h:
		return "4H"
	case models.TF1d:
		return "1D"
	default:
		return string(tf)
	}
}
