package service

import (
	"errors"
	"fmt"
	"math"

	"alert_engine/internal/models"
)

var errStaleCache = errors.New("stale cache entry")

// EvalCondition — дешёвая часть тика: сравнение с порогом по уже посчитанным
// данным. Ветвление строго по Kind (закрытый enum), никакого угадывания формы.
func EvalCondition(cond models.Condition, cache *EvalCache, candles []models.CandleTick) (bool, error) {
	if len(candles) == 0 {
		return false, fmt.Errorf("eval %s: no candles", cond.ConditionID)
	}
	last := candles[len(candles)-1]
	bar := last.Start

	switch cond.Kind {
	case models.KindIndicator:
		period := int(cond.Params[models.ParamPeriod])
		e, ok := cache.Get(cond.Symbol, cond.Timeframe, IndicatorKey(cond.Indicator, period), bar)
		if !ok {
			return false, fmt.Errorf("eval %s: %w: %s", cond.ConditionID, errStaleCache, IndicatorKey(cond.Indicator, period))
		}
		return compare(cond, e.Value, e.Prev)

	case models.KindPriceRange:
		lower, upper := cond.Params[models.ParamLower], cond.Params[models.ParamUpper]
		return last.Close >= lower && last.Close <= upper, nil

	case models.KindPriceCross:
		if len(candles) < 2 {
			return false, fmt.Errorf("eval %s: price cross needs 2 candles", cond.ConditionID)
		}
		prev := candles[len(candles)-2].Close
		return compare(cond, last.Close, prev)

	case models.KindVolume:
		return compare(cond, last.Volume, 0)

	default:
		return false, fmt.Errorf("eval %s: unknown kind %q", cond.ConditionID, cond.Kind)
	}
}

func compare(cond models.Condition, value, prev float64) (bool, error) {
	if math.IsNaN(value) {
		return false, fmt.Errorf("eval %s: value is NaN (warmup?)", cond.ConditionID)
	}

	threshold := cond.Params[models.ParamValue]
	switch cond.Kind {
	case models.KindPriceCross:
		threshold = cond.Params[models.ParamLevel]
	case models.KindVolume:
		threshold = cond.Params[models.ParamThreshold]
	}

	switch cond.Operator {
	case models.OpGT:
		return value > threshold, nil
	case models.OpGTE:
		return value >= threshold, nil
	case models.OpLT:
		return value < threshold, nil
	case models.OpLTE:
		return value <= threshold, nil
	case models.OpEQ:
		return value == threshold, nil
	case models.OpBetween:
		return value >= cond.Params[models.ParamLower] && value <= cond.Params[models.ParamUpper], nil
	case models.OpCrossesAbove:
		return prev <= threshold && value > threshold, nil
	case models.OpCrossesBelow:
		return prev >= threshold && value < threshold, nil
	default:
		return false, fmt.Errorf("eval %s: unknown operator %q", cond.ConditionID, cond.Operator)
	}
}

// ComputeIndicators — дорогая часть тика: по одной серии на каждый
// различный (indicator, period) группы, сколько бы подписок его ни ждало.
// Ошибка по одному ключу не блокирует остальные.
func ComputeIndicators(cache *EvalCache, candles []models.CandleTick, conds []models.Condition) map[string]error {
	if len(candles) == 0 {
		return nil
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	bar := candles[len(candles)-1].Start

	failed := map[string]error{}
	done := map[string]bool{}
	for _, cond := range conds {
		if cond.Kind != models.KindIndicator {
			continue
		}
		period := int(cond.Params[models.ParamPeriod])
		key := IndicatorKey(cond.Indicator, period)
		if done[key] || failed[key] != nil {
			continue
		}

		var (
			series []float64
			err    error
		)
		switch cond.Indicator {
		case "rsi":
			series, err = RSISeries(closes, period)
		case "ema":
			series, err = EMASeries(closes, period)
		case "sma":
			series, err = SMASeries(closes, period)
		default:
			err = fmt.Errorf("unknown indicator %q", cond.Indicator)
		}
		if err != nil {
			failed[key] = err
			continue
		}

		e := Entry{Value: series[len(series)-1], BarTS: bar, Prev: math.NaN()}
		if len(series) > 1 {
			e.Prev = series[len(series)-2]
		}
		cache.Put(cond.Symbol, cond.Timeframe, key, e)
		done[key] = true
	}
	return failed
}
