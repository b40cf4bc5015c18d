package formulas

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCVaRNotWorseThanVaR(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, confidence := range []float64{0.90, 0.95, 0.99} {
		returns := make([]float64, 250)
		for i := range returns {
			returns[i] = rng.NormFloat64() * 0.01
		}
		varValue := HistoricalVaR(returns, confidence)
		cvar := CVaR(returns, confidence)
		assert.LessOrEqual(t, cvar, varValue,
			"CVaR must be at least as bad as VaR at confidence %.2f", confidence)
	}
}

func TestHistoricalVaREmpty(t *testing.T) {
	assert.Equal(t, 0.0, HistoricalVaR(nil, 0.95))
	assert.Equal(t, 0.0, CVaR(nil, 0.95))
}

func TestCVaRSinglePoint(t *testing.T) {
	assert.InDelta(t, -0.03, CVaR([]float64{-0.03}, 0.95), 1e-12)
}

func TestCVaRTailMean(t *testing.T) {
	// 10 points, 95% confidence: tail is the single worst return
	returns := []float64{0.01, 0.02, -0.05, 0.005, 0.015, -0.01, 0.02, 0.03, -0.02, 0.01}
	assert.InDelta(t, -0.05, CVaR(returns, 0.95), 1e-12)
}

func TestBetaAgainstSelf(t *testing.T) {
	x := []float64{0.01, -0.02, 0.03, 0.005, -0.01}
	assert.InDelta(t, 1.0, Beta(x, x), 1e-12)
}

func TestBetaFlatBenchmark(t *testing.T) {
	portfolio := []float64{0.01, -0.02, 0.03}
	flat := []float64{0.01, 0.01, 0.01}
	assert.Equal(t, 0.0, Beta(portfolio, flat))
}

func TestTrackingErrorIdenticalSeries(t *testing.T) {
	x := []float64{0.01, -0.02, 0.03, 0.005}
	assert.Equal(t, 0.0, TrackingError(x, x))
	assert.Equal(t, 0.0, InformationRatio(x, x))
}

func TestCaptureRatios(t *testing.T) {
	portfolio := []float64{0.02, -0.01, 0.04, -0.03}
	benchmark := []float64{0.01, -0.02, 0.02, -0.01}

	up, upCount := CaptureRatio(portfolio, benchmark, true)
	assert.Equal(t, 2, upCount)
	assert.InDelta(t, 2.0, up, 1e-12) // mean(0.02,0.04)/mean(0.01,0.02)

	down, downCount := CaptureRatio(portfolio, benchmark, false)
	assert.Equal(t, 2, downCount)
	assert.InDelta(t, (-0.01-0.03)/2/((-0.02-0.01)/2), down, 1e-12)
}
