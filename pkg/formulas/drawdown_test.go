package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxDrawdownConcreteScenario(t *testing.T) {
	// NAV path 100 -> 110 -> 99 -> 108: peak 110, trough 99
	returns := []float64{0.10, -0.10, 0.0909090909090909}
	assert.InDelta(t, -0.10, MaxDrawdown(returns), 1e-9)
}

func TestDrawdownBounds(t *testing.T) {
	tests := []struct {
		name    string
		returns []float64
	}{
		{"mixed", []float64{0.05, -0.03, 0.01, -0.08, 0.12}},
		{"all positive", []float64{0.01, 0.02, 0.03}},
		{"all negative", []float64{-0.01, -0.02, -0.03}},
		{"flat", []float64{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := CalculateDrawdownStats(tt.returns)
			assert.LessOrEqual(t, stats.MaxDrawdown, 0.0)
			assert.GreaterOrEqual(t, stats.CurrentDrawdown, stats.MaxDrawdown)
			assert.GreaterOrEqual(t, stats.MaxDuration, 0)
		})
	}
}

func TestDrawdownDurationCountsPeriods(t *testing.T) {
	// Down for 2 periods, recover above peak, down again for 1
	returns := []float64{-0.05, -0.05, 0.30, -0.01}
	stats := CalculateDrawdownStats(returns)
	assert.Equal(t, 2, stats.MaxDuration)
}

func TestDrawdownSeriesEmpty(t *testing.T) {
	assert.Nil(t, DrawdownSeries(nil))
	assert.Equal(t, DrawdownStats{}, CalculateDrawdownStats(nil))
}
