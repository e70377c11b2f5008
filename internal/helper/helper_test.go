package helper

import (
	"testing"
	"time"

	"alert_engine/internal/models"
)

func TestNormSymbol(t *testing.T) {
	cases := map[string]string{
		"btc/usdt":  "BTCUSDT",
		"BTC-USDT":  "BTCUSDT",
		" ethusdt ": "ETHUSDT",
		"BTCUSDT":   "BTCUSDT",
	}
	for in, want := range cases {
		if got := NormSymbol(in); got != want {
			t.Errorf("NormSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormTF(t *testing.T) {
	cases := map[string]models.Timeframe{
		"1H":       models.TF1h,
		"60m":      models.TF1h,
		"candle1m": models.TF1m,
		"5min":     models.TF5m,
		"1day":     models.TF1d,
		"240m":     models.TF4h,
	}
	for in, want := range cases {
		if got := NormTF(in); got != want {
			t.Errorf("NormTF(%q) = %q, want %q", in, got, want)
		}
	}
	if KnownTF(NormTF("7m")) {
		t.Error("7m must not be a known timeframe")
	}
}

func TestBarOpen(t *testing.T) {
	ts := time.Date(2026, 3, 15, 14, 37, 42, 0, time.UTC)
	got := BarOpen(ts, models.TF1h)
	want := time.Date(2026, 3, 15, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("BarOpen 1h = %v, want %v", got, want)
	}
	got = BarOpen(ts, models.TF15m)
	want = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("BarOpen 15m = %v, want %v", got, want)
	}
}

func TestBarsBetween(t *testing.T) {
	a := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	b := a.Add(3 * time.Hour)
	if got := BarsBetween(a, b, models.TF1h); got != 3 {
		t.Errorf("BarsBetween = %d, want 3", got)
	}
	if got := BarsBetween(b, a, models.TF1h); got != 0 {
		t.Errorf("BarsBetween reversed = %d, want 0", got)
	}
	if got := BarsBetween(a, a, models.TF1h); got != 0 {
		t.Errorf("BarsBetween same = %d, want 0", got)
	}
}
