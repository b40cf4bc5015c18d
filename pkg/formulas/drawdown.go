package formulas

// DrawdownStats summarizes the drawdown behaviour of a return series
type DrawdownStats struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Most negative drawdown (<= 0)
	CurrentDrawdown float64 `json:"current_drawdown"` // Drawdown at the last point (<= 0)
	AvgDrawdown     float64 `json:"avg_drawdown"`     // Mean of the drawdown series
	MaxDuration     int     `json:"max_duration"`     // Longest run of periods below the peak
}

// DrawdownSeries builds the drawdown path of a return series: the wealth index
// (cumulative product of 1+r) relative to its running peak, as a fraction <= 0.
func DrawdownSeries(returns []float64) []float64 {
	if len(returns) == 0 {
		return nil
	}

	dd := make([]float64, len(returns))
	wealth := 1.0
	peak := 1.0
	for i, r := range returns {
		wealth *= 1 + r
		if wealth > peak {
			peak = wealth
		}
		if peak != 0 {
			dd[i] = (wealth - peak) / peak
		}
	}
	return dd
}

// MaxDrawdown returns the most negative drawdown of the series (<= 0).
// An empty or monotonically rising series yields 0.
func MaxDrawdown(returns []float64) float64 {
	worst := 0.0
	for _, d := range DrawdownSeries(returns) {
		if d < worst {
			worst = d
		}
	}
	return worst
}

// CalculateDrawdownStats computes the full drawdown summary in one pass over
// the drawdown series
func CalculateDrawdownStats(returns []float64) DrawdownStats {
	dd := DrawdownSeries(returns)
	if len(dd) == 0 {
		return DrawdownStats{}
	}

	stats := DrawdownStats{CurrentDrawdown: dd[len(dd)-1]}
	sum := 0.0
	run := 0
	for _, d := range dd {
		sum += d
		if d < stats.MaxDrawdown {
			stats.MaxDrawdown = d
		}
		// Duration is counted in periods spent below the running peak
		if d < 0 {
			run++
			if run > stats.MaxDuration {
				stats.MaxDuration = run
			}
		} else {
			run = 0
		}
	}
	stats.AvgDrawdown = sum / float64(len(dd))
	return stats
}
