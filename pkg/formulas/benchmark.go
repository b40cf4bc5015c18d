package formulas

import "math"

// Beta calculates the portfolio's sensitivity to the benchmark:
// cov(portfolio, benchmark) / var(benchmark). Both series must already be
// aligned to the same dates. A flat benchmark yields 0.
func Beta(portfolio, benchmark []float64) float64 {
	benchVar := Variance(benchmark)
	if benchVar == 0 {
		return 0
	}
	return Covariance(portfolio, benchmark) / benchVar
}

// Alpha calculates the annualized Jensen's alpha against the benchmark:
//
//	alpha = (Rp - rf) - beta * (Rb - rf)
//
// with both legs annualized by the 252-day convention.
func Alpha(portfolio, benchmark []float64, riskFree float64) float64 {
	beta := Beta(portfolio, benchmark)
	return (AnnualizedReturn(portfolio) - riskFree) - beta*(AnnualizedReturn(benchmark)-riskFree)
}

// TrackingError is the annualized standard deviation of the excess return
// series (portfolio minus benchmark). Series must be aligned.
func TrackingError(portfolio, benchmark []float64) float64 {
	if len(portfolio) != len(benchmark) {
		return 0
	}
	excess := make([]float64, len(portfolio))
	for i := range portfolio {
		excess[i] = portfolio[i] - benchmark[i]
	}
	return StdDev(excess) * math.Sqrt(TradingDaysPerYear)
}

// InformationRatio is the annualized mean excess return divided by the
// tracking error. Zero tracking error yields 0.
func InformationRatio(portfolio, benchmark []float64) float64 {
	te := TrackingError(portfolio, benchmark)
	if te == 0 || len(portfolio) != len(benchmark) {
		return 0
	}
	excess := make([]float64, len(portfolio))
	for i := range portfolio {
		excess[i] = portfolio[i] - benchmark[i]
	}
	return AnnualizedReturn(excess) / te
}

// CaptureRatio calculates the up- or down-market capture ratio: the mean
// portfolio return on periods where the benchmark moved in the given direction,
// divided by the mean benchmark return on those periods.
//
// The second return value is the number of periods that matched the direction;
// callers enforce their own minimum before trusting the ratio.
func CaptureRatio(portfolio, benchmark []float64, up bool) (float64, int) {
	if len(portfolio) != len(benchmark) {
		return 0, 0
	}

	var portSum, benchSum float64
	count := 0
	for i, b := range benchmark {
		if (up && b > 0) || (!up && b < 0) {
			portSum += portfolio[i]
			benchSum += b
			count++
		}
	}
	if count == 0 || benchSum == 0 {
		return 0, count
	}

	portMean := portSum / float64(count)
	benchMean := benchSum / float64(count)
	return portMean / benchMean, count
}
