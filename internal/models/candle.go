package models

import "time"

// CandleTick — закрытая свеча (symbol, timeframe), как отдаёт OKX.
type CandleTick struct {
	InstID       string    `json:"instId"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	QuoteVolume  float64   `json:"quoteVolume"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TimeframeRaw string    `json:"timeframe"`
}
