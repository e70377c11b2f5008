package models

import "time"

// Kind — закрытый набор типов условий. Ветвление по Kind всегда через switch,
// никакого угадывания формы по наличию полей.
type Kind string

const (
	KindIndicator  Kind = "indicator"
	KindPriceRange Kind = "price_range"
	KindPriceCross Kind = "price_cross"
	KindVolume     Kind = "volume"
)

type Operator string

const (
	OpGT           Operator = "gt"
	OpGTE          Operator = "gte"
	OpLT           Operator = "lt"
	OpLTE          Operator = "lte"
	OpEQ           Operator = "eq"
	OpBetween      Operator = "between"
	OpCrossesAbove Operator = "crosses_above"
	OpCrossesBelow Operator = "crosses_below"
)

type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Condition — каноническое условие. ConditionID — контент-хэш нормализованных
// полей: два условия, отличающиеся только подачей ("BTC/USDT" vs "BTCUSDT"),
// схлопываются в одну строку. Строка иммутабельна: изменение = новая строка
// с новым хэшем.
type Condition struct {
	ConditionID string
	Symbol      string
	Timeframe   Timeframe
	Kind        Kind
	// Indicator заполнен только для KindIndicator (rsi/ema/sma).
	Indicator string
	Operator  Operator
	Params    map[string]float64
	CreatedAt time.Time
}

// Ключи Params по видам условий.
const (
	ParamValue     = "value"     // indicator: порог сравнения
	ParamPeriod    = "period"    // indicator: период
	ParamLower     = "lower"     // price_range
	ParamUpper     = "upper"     // price_range
	ParamLevel     = "level"     // price_cross
	ParamThreshold = "threshold" // volume
)
