package formulas

import (
	"math"
	"sort"
)

// HistoricalVaR calculates historical Value at Risk at the given confidence
// level as the (1-confidence) percentile of the return distribution. The
// result is loss-framed: a negative number is a loss. 95% VaR on daily returns
// is the 5th percentile daily return.
func HistoricalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return Percentile(returns, 1-confidence)
}

// CVaR calculates Conditional Value at Risk (expected shortfall) at the given
// confidence level: the mean of the worst (1-confidence) fraction of returns.
// By construction CVaR <= VaR at the same confidence.
func CVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailCount := int(math.Ceil(float64(len(sorted)) * (1 - confidence)))
	if tailCount < 1 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	sum := 0.0
	for _, r := range sorted[:tailCount] {
		sum += r
	}
	return sum / float64(tailCount)
}

// TailRatio is the 95th percentile return divided by the absolute 5th
// percentile return. Values above 1 mean the right tail outweighs the left.
// A zero left tail yields 0.
func TailRatio(returns []float64) float64 {
	left := Percentile(returns, 0.05)
	if left == 0 {
		return 0
	}
	return Percentile(returns, 0.95) / math.Abs(left)
}
