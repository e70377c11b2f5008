package service

import (
	"testing"

	"alert_engine/internal/models"
)

func TestOkxInstID(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT": "BTC-USDT",
		"ETHUSDC": "ETH-USDC",
		"SOLBTC":  "SOL-BTC",
		"USDT":    "USDT", // голая квота не делится
	}
	for in, want := range cases {
		if got := okxInstID(in); got != want {
			t.Errorf("okxInstID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOkxBar(t *testing.T) {
	cases := map[models.Timeframe]string{
		models.TF1m: "1m",
		models.TF5m: "5m",
		models.TF1h: "1H",
		models.TF4h: "4H",
		models.TF1d: "1D",
	}
	for in, want := range cases {
		if got := okxBar(in); got != want {
			t.Errorf("okxBar(%q) = %q, want %q", in, got, want)
		}
	}
}
