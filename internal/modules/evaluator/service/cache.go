package service

import (
	"fmt"
	"time"

	"alert_engine/internal/models"
)

// Entry — последнее и предпоследнее значение индикатора на текущем баре.
// Prev нужен операторам crosses_above/crosses_below.
type Entry struct {
	Value float64
	Prev  float64
	BarTS time.Time
}

// EvalCache живёт один тик: создаётся в начале, передаётся аргументом и
// выбрасывается. Ключ несёт бар, так что чтение устаревшей записи
// обнаруживается сравнением BarTS с текущим баром группы.
type EvalCache struct {
	entries map[string]Entry
}

func NewEvalCache() *EvalCache {
	return &EvalCache{entries: make(map[string]Entry)}
}

func cacheKey(symbol string, tf models.Timeframe, indicatorKey string) string {
	return symbol + "|" + string(tf) + "|" + indicatorKey
}

// IndicatorKey — "rsi(14)": имя + период, разные params не делят запись.
func IndicatorKey(indicator string, period int) string {
	return fmt.Sprintf("%s(%d)", indicator, period)
}

func (c *EvalCache) Put(symbol string, tf models.Timeframe, indicatorKey string, e Entry) {
	c.entries[cacheKey(symbol, tf, indicatorKey)] = e
}

func (c *EvalCache) Get(symbol string, tf models.Timeframe, indicatorKey string, bar time.Time) (Entry, bool) {
	e, ok := c.entries[cacheKey(symbol, tf, indicatorKey)]
	if !ok || !e.BarTS.Equal(bar) {
		return Entry{}, false
	}
	return e, true
}

func (c *EvalCache) Len() int { return len(c.entries) }
