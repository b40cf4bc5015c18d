package formulas

import "math"

// SharpeRatio calculates the annualized Sharpe ratio from periodic returns.
//
//	Sharpe = (annualized return - risk-free rate) / annualized volatility
//
// riskFree is the annual risk-free rate as a decimal (0.02 = 2%). A series
// with zero volatility yields exactly 0, never NaN.
func SharpeRatio(returns []float64, riskFree float64) float64 {
	vol := AnnualizedVolatility(returns)
	if vol == 0 {
		return 0
	}
	return (AnnualizedReturn(returns) - riskFree) / vol
}

// DownsideDeviation is the annualized standard deviation of the negative
// returns only. A series without at least two negative returns yields 0.
func DownsideDeviation(returns []float64) float64 {
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	return StdDev(negatives) * math.Sqrt(TradingDaysPerYear)
}

// SortinoRatio calculates the annualized Sortino ratio: excess return over the
// downside deviation. When the series has no downside the ratio is undefined
// and nil is returned; callers report that as an explicit null, not an error.
func SortinoRatio(returns []float64, riskFree float64) *float64 {
	dd := DownsideDeviation(returns)
	if dd == 0 {
		return nil
	}
	sortino := (AnnualizedReturn(returns) - riskFree) / dd
	return &sortino
}

// CalmarRatio calculates annualized return over the absolute max drawdown.
// A flat (zero-drawdown) series yields 0.
func CalmarRatio(returns []float64) float64 {
	maxDD := MaxDrawdown(returns)
	if maxDD == 0 {
		return 0
	}
	return AnnualizedReturn(returns) / math.Abs(maxDD)
}

// OmegaRatio calculates the ratio of gains above the threshold to losses below
// it. With no losses below the threshold the ratio is undefined and nil is
// returned.
func OmegaRatio(returns []float64, threshold float64) *float64 {
	var gains, losses float64
	for _, r := range returns {
		if r > threshold {
			gains += r - threshold
		} else {
			losses += threshold - r
		}
	}
	if losses == 0 {
		return nil
	}
	omega := gains / losses
	return &omega
}

// WinRate is the fraction of strictly positive periods
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}
