package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"alert_engine/internal/helper"
	"alert_engine/internal/models"
)

// RawCondition — то, что присылают разные подписчики. Одно и то же поле у
// разных клиентов называется по-разному (value/compareValue, tf/interval),
// поэтому тут все варианты сразу; Normalize сводит их к одной форме.
type RawCondition struct {
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	ConditionType string `json:"conditionType"`
	Kind          string `json:"kind"`

	Timeframe string `json:"timeframe"`
	TF        string `json:"tf"`
	Interval  string `json:"interval"`

	Indicator string `json:"indicator"`
	Operator  string `json:"operator"`
	Op        string `json:"op"`

	Value        *float64 `json:"value"`
	CompareValue *float64 `json:"compareValue"`
	Threshold    *float64 `json:"threshold"`
	Level        *float64 `json:"level"`
	Period       *int     `json:"period"`

	Lower *float64 `json:"lower"`
	Min   *float64 `json:"min"`
	Upper *float64 `json:"upper"`
	Max   *float64 `json:"max"`
}

func firstStr(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstFloat(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

func defaultPeriod(indicator string) float64 {
	switch indicator {
	case "rsi":
		return 14
	case "ema", "sma":
		return 20
	default:
		return 14
	}
}

// Normalize приводит сырое условие к канонической форме. Дефолты
// проставляются ДО хэширования: опущенный period и явный period=14 обязаны
// давать одинаковый condition_id.
func Normalize(raw RawCondition) (models.Condition, error) {
	symbol := helper.NormSymbol(raw.Symbol)
	tfRaw := firstStr(raw.Timeframe, raw.TF, raw.Interval)
	if symbol == "" || tfRaw == "" {
		return models.Condition{}, fmt.Errorf("%w: symbol and timeframe are required", ErrValidation)
	}
	tf := helper.NormTF(tfRaw)
	if !helper.KnownTF(tf) {
		return models.Condition{}, fmt.Errorf("%w: unknown timeframe %q", ErrValidation, tfRaw)
	}

	kind := models.Kind(strings.ToLower(firstStr(raw.Kind, raw.Type, raw.ConditionType)))
	if kind == "" {
		kind = models.KindIndicator
	}

	cond := models.Condition{
		Symbol:    symbol,
		Timeframe: tf,
		Kind:      kind,
		Params:    map[string]float64{},
		CreatedAt: time.Now().UTC(),
	}

	op := models.Operator(strings.ToLower(firstStr(raw.Operator, raw.Op)))

	switch kind {
	case models.KindIndicator:
		cond.Indicator = strings.ToLower(firstStr(raw.Indicator, "rsi"))
		if op == "" {
			op = models.OpLT
		}
		if v, ok := firstFloat(raw.Value, raw.CompareValue, raw.Threshold, raw.Level); ok {
			cond.Params[models.ParamValue] = v
		}
		// между порогами: "RSI between 25-35"
		if v, ok := firstFloat(raw.Lower, raw.Min); ok {
			cond.Params[models.ParamLower] = v
		}
		if v, ok := firstFloat(raw.Upper, raw.Max); ok {
			cond.Params[models.ParamUpper] = v
		}
		if raw.Period != nil {
			cond.Params[models.ParamPeriod] = float64(*raw.Period)
		} else {
			cond.Params[models.ParamPeriod] = defaultPeriod(cond.Indicator)
		}

	case models.KindPriceRange:
		op = models.OpBetween
		if v, ok := firstFloat(raw.Lower, raw.Min); ok {
			cond.Params[models.ParamLower] = v
		}
		if v, ok := firstFloat(raw.Upper, raw.Max); ok {
			cond.Params[models.ParamUpper] = v
		}

	case models.KindPriceCross:
		if op != models.OpCrossesAbove && op != models.OpCrossesBelow {
			op = models.OpCrossesAbove
		}
		if v, ok := firstFloat(raw.Level, raw.Value, raw.CompareValue, raw.Threshold); ok {
			cond.Params[models.ParamLevel] = v
		}

	case models.KindVolume:
		if op == "" {
			op = models.OpGT
		}
		if v, ok := firstFloat(raw.Threshold, raw.Value, raw.CompareValue); ok {
			cond.Params[models.ParamThreshold] = v
		}

	default:
		return models.Condition{}, fmt.Errorf("%w: unknown condition kind %q", ErrValidation, kind)
	}

	cond.Operator = op
	cond.ConditionID = Hash(cond)
	return cond, nil
}

// Hash — детерминированный контент-хэш канонического условия: фиксированный
// порядок полей, сортированные ключи params, каноничный формат чисел.
// SHA-256 усекаем до 16 hex-символов: на тысячах условий риск коллизии
// принят осознанно ради читаемых идентификаторов.
func Hash(c models.Condition) string {
	var b strings.Builder
	b.WriteString("symbol=")
	b.WriteString(c.Symbol)
	b.WriteString("|tf=")
	b.WriteString(string(c.Timeframe))
	b.WriteString("|kind=")
	b.WriteString(string(c.Kind))
	b.WriteString("|ind=")
	b.WriteString(c.Indicator)
	b.WriteString("|op=")
	b.WriteString(string(c.Operator))

	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strconv.FormatFloat(c.Params[k], 'g', -1, 64))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}
