// Package formulas provides the statistical primitives used by the analytics
// engines. All functions tolerate degenerate input (empty, constant, mismatched
// series) by returning a defined sentinel instead of panicking, and none of
// them mutate their arguments.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization convention used across every metric.
// Daily statistics are scaled by 252 (means) or sqrt(252) (deviations).
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Skewness calculates the standardized third moment of the distribution
func Skewness(data []float64) float64 {
	if len(data) < 3 || StdDev(data) == 0 {
		return 0
	}
	return stat.Skew(data, nil)
}

// ExcessKurtosis calculates the standardized fourth moment minus 3
func ExcessKurtosis(data []float64) float64 {
	if len(data) < 4 || StdDev(data) == 0 {
		return 0
	}
	return stat.ExKurtosis(data, nil)
}

// Correlation calculates the Pearson correlation coefficient between two
// equal-length series
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// Covariance calculates the sample covariance between two equal-length series
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// AnnualizedReturn scales a mean periodic return to an annual figure using the
// 252-trading-day convention
func AnnualizedReturn(returns []float64) float64 {
	return Mean(returns) * TradingDaysPerYear
}

// AnnualizedVolatility calculates annualized volatility from periodic returns.
// Formula: sample standard deviation x sqrt(252)
func AnnualizedVolatility(returns []float64) float64 {
	return StdDev(returns) * math.Sqrt(TradingDaysPerYear)
}

// CompoundReturn calculates the cumulative return of the series:
// product of (1 + r) - 1
func CompoundReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	cum := 1.0
	for _, r := range returns {
		cum *= 1 + r
	}
	return cum - 1
}

// Percentile returns the p-quantile (0 <= p <= 1) of the data using linear
// interpolation between order statistics. The input is copied and sorted, the
// caller's slice is never reordered.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}
