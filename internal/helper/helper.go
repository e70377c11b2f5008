package helper

import (
	"strings"
	"time"

	"alert_engine/internal/models"
)

func NormTF(raw string) models.Timeframe {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "1m", "1min", "60s":
		return models.TF1m
	case "5m", "5min":
		return models.TF5m
	case "15m", "15min":
		return models.TF15m
	case "60m", "1h", "1hour":
		return models.TF1h
	case "240m", "4h", "4hour":
		return models.TF4h
	case "1d", "24h", "1day":
		return models.TF1d
	default:
		return models.Timeframe(s)
	}
}

func KnownTF(tf models.Timeframe) bool {
	switch tf {
	case models.TF1m, models.TF5m, models.TF15m, models.TF1h, models.TF4h, models.TF1d:
		return true
	}
	return false
}

// NormSymbol: верхний регистр, разделители убираем — "btc/usdt" и "BTC-USDT"
// это один и тот же инструмент.
func NormSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

func TFDuration(tf models.Timeframe) time.Duration {
	switch tf {
	case models.TF1m:
		return time.Minute
	case models.TF5m:
		return 5 * time.Minute
	case models.TF15m:
		return 15 * time.Minute
	case models.TF1h:
		return time.Hour
	case models.TF4h:
		return 4 * time.Hour
	case models.TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// BarOpen — начало бара, в который попадает t: слот по Unix-секундам.
func BarOpen(t time.Time, tf models.Timeframe) time.Time {
	d := TFDuration(tf)
	if d <= 0 {
		return t
	}
	sec := t.Unix()
	step := int64(d.Seconds())
	sec -= sec % step
	return time.Unix(sec, 0).UTC()
}

// BarsBetween — сколько баров tf помещается между a и b (a <= b).
func BarsBetween(a, b time.Time, tf models.Timeframe) int {
	d := TFDuration(tf)
	if d <= 0 || b.Before(a) {
		return 0
	}
	return int(b.Sub(a) / d)
}
