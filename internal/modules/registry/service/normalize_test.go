package service

import (
	"errors"
	"testing"

	"alert_engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

// Тысяча ботов шлёт одно и то же условие чуть по-разному — хэш обязан
// совпасть.
func TestNormalizeHashSymmetry(t *testing.T) {
	a := RawCondition{Symbol: "BTC/USDT", Kind: "indicator", TF: "1H", Indicator: "RSI", Op: "lt", Value: f(30)}
	b := RawCondition{Symbol: "btcusdt", Type: "indicator", Interval: "60m", Indicator: "rsi", Operator: "lt", CompareValue: f(30)}

	ca, err := Normalize(a)
	require.NoError(t, err)
	cb, err := Normalize(b)
	require.NoError(t, err)

	assert.Equal(t, ca.ConditionID, cb.ConditionID)
	assert.Equal(t, "BTCUSDT", ca.Symbol)
	assert.Equal(t, models.TF1h, ca.Timeframe)
	assert.Len(t, ca.ConditionID, 16)
}

// Дефолты проставляются до хэширования: опущенный period и явный period=14
// дают один condition_id.
func TestNormalizeDefaultsBeforeHash(t *testing.T) {
	withPeriod := RawCondition{Symbol: "ETHUSDT", Kind: "indicator", TF: "1h", Indicator: "rsi", Op: "lt", Value: f(30), Period: i(14)}
	withoutPeriod := RawCondition{Symbol: "ETHUSDT", Kind: "indicator", TF: "1h", Indicator: "rsi", Op: "lt", Value: f(30)}

	ca, err := Normalize(withPeriod)
	require.NoError(t, err)
	cb, err := Normalize(withoutPeriod)
	require.NoError(t, err)
	assert.Equal(t, ca.ConditionID, cb.ConditionID)

	// а другой период — другое условие
	cc, err := Normalize(RawCondition{Symbol: "ETHUSDT", Kind: "indicator", TF: "1h", Indicator: "rsi", Op: "lt", Value: f(30), Period: i(7)})
	require.NoError(t, err)
	assert.NotEqual(t, ca.ConditionID, cc.ConditionID)
}

func TestNormalizeKinds(t *testing.T) {
	rng, err := Normalize(RawCondition{Symbol: "BTCUSDT", Kind: "price_range", TF: "1h", Min: f(60000), Max: f(65000)})
	require.NoError(t, err)
	assert.Equal(t, models.OpBetween, rng.Operator)
	assert.Equal(t, 60000.0, rng.Params[models.ParamLower])
	assert.Equal(t, 65000.0, rng.Params[models.ParamUpper])

	cross, err := Normalize(RawCondition{Symbol: "BTCUSDT", Kind: "price_cross", TF: "1h", Op: "crosses_below", Level: f(64000)})
	require.NoError(t, err)
	assert.Equal(t, models.OpCrossesBelow, cross.Operator)
	assert.Equal(t, 64000.0, cross.Params[models.ParamLevel])

	vol, err := Normalize(RawCondition{Symbol: "BTCUSDT", Kind: "volume", TF: "5m", Threshold: f(1e6)})
	require.NoError(t, err)
	assert.Equal(t, models.OpGT, vol.Operator)
	assert.Equal(t, 1e6, vol.Params[models.ParamThreshold])

	// RSI between с двумя порогами
	between, err := Normalize(RawCondition{Symbol: "BTCUSDT", Kind: "indicator", TF: "1h", Indicator: "rsi", Op: "between", Lower: f(25), Upper: f(35)})
	require.NoError(t, err)
	assert.Equal(t, 25.0, between.Params[models.ParamLower])
	assert.Equal(t, 35.0, between.Params[models.ParamUpper])
}

func TestNormalizeValidation(t *testing.T) {
	_, err := Normalize(RawCondition{Kind: "indicator", TF: "1h"})
	assert.True(t, errors.Is(err, ErrValidation), "missing symbol")

	_, err = Normalize(RawCondition{Symbol: "BTCUSDT", Kind: "indicator", TF: "7m"})
	assert.True(t, errors.Is(err, ErrValidation), "unknown timeframe")

	_, err = Normalize(RawCondition{Symbol: "BTCUSDT", Kind: "hunch", TF: "1h"})
	assert.True(t, errors.Is(err, ErrValidation), "unknown kind")
}

func TestHashStableAcrossParamOrder(t *testing.T) {
	cond := models.Condition{
		Symbol: "BTCUSDT", Timeframe: models.TF1h, Kind: models.KindIndicator,
		Indicator: "rsi", Operator: models.OpLT,
		Params: map[string]float64{"value": 30, "period": 14},
	}
	h1 := Hash(cond)
	cond.Params = map[string]float64{"period": 14, "value": 30}
	assert.Equal(t, h1, Hash(cond))
}
