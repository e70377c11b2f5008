package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMASeries(t *testing.T) {
	out, err := SMASeries([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2, out[2], 1e-9)
	assert.InDelta(t, 3, out[3], 1e-9)
	assert.InDelta(t, 4, out[4], 1e-9)

	_, err = SMASeries([]float64{1, 2}, 3)
	assert.Error(t, err)
	_, err = SMASeries([]float64{1, 2, 3}, 0)
	assert.Error(t, err)
}

func TestEMASeries(t *testing.T) {
	// alpha = 0.5 при period=3, сид от первого закрытия
	out, err := EMASeries([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.25, out[2], 1e-9)
	assert.InDelta(t, 3.125, out[3], 1e-9)
	assert.InDelta(t, 4.0625, out[4], 1e-9)
}

func TestRSISeriesExtremes(t *testing.T) {
	// только рост — RSI 100, только падение — 0, штиль — 50
	up, err := RSISeries([]float64{1, 2, 3}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 100, up[2], 1e-9)

	down, err := RSISeries([]float64{3, 2, 1}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0, down[2], 1e-9)

	flat, err := RSISeries([]float64{5, 5, 5}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 50, flat[2], 1e-9)
}

func TestRSISeriesWilderSmoothing(t *testing.T) {
	// period=2, alpha=0.5: после [1,2,3] avgGain=1, avgLoss=0;
	// бар 2->3->2: avgGain=0.5, avgLoss=0.5 => RS=1 => RSI=50
	out, err := RSISeries([]float64{1, 2, 3, 2}, 2)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 100, out[2], 1e-9)
	assert.InDelta(t, 50, out[3], 1e-9)
}

func TestRSISeriesWarmup(t *testing.T) {
	_, err := RSISeries([]float64{1, 2}, 14)
	assert.Error(t, err)
}
