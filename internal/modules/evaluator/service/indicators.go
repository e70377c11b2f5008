package service

import (
	"fmt"
	"math"
)

// Серии считаются по закрытиям целиком, значение i-го элемента относится к
// i-й свече; до прогрева — NaN.

func EMASeries(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema: bad period %d", period)
	}
	if len(closes) < period {
		return nil, fmt.Errorf("ema(%d): need %d closes, have %d", period, period, len(closes))
	}
	out := make([]float64, len(closes))
	alpha := 2.0 / (float64(period) + 1)
	ema := closes[0]
	out[0] = ema
	for i := 1; i < len(closes); i++ {
		ema = alpha*closes[i] + (1-alpha)*ema
		out[i] = ema
	}
	for i := 0; i < period-1; i++ {
		out[i] = math.NaN()
	}
	return out, nil
}

func SMASeries(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma: bad period %d", period)
	}
	if len(closes) < period {
		return nil, fmt.Errorf("sma(%d): need %d closes, have %d", period, period, len(closes))
	}
	out := make([]float64, len(closes))
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// RSISeries — классический RSI со сглаживанием Уайлдера: первые средние —
// простое среднее приростов/потерь, дальше экспонента с alpha=1/period.
func RSISeries(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi: bad period %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("rsi(%d): need %d closes, have %d", period, period+1, len(closes))
	}
	out := make([]float64, len(closes))
	for i := 0; i < len(out); i++ {
		out[i] = math.NaN()
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (1-alpha)*avgGain + alpha*gain
		avgLoss = (1-alpha)*avgLoss + alpha*loss
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
