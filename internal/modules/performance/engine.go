// Package performance computes return-based performance metrics for a single
// account from an aligned daily return series.
package performance

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/portlight/portlight/internal/modules/returns"
	"github.com/portlight/portlight/pkg/formulas"
)

// RollingSharpeWindow is the trailing window used for the rolling Sharpe
// ratio series.
const RollingSharpeWindow = 30

// Result holds the computed performance metrics. Pointer fields are nil when
// the metric is undefined for the input series.
type Result struct {
	TotalReturn          float64
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	SharpeRatio          float64
	SortinoRatio         *float64
	CalmarRatio          float64
	OmegaRatio           *float64
	WinRate              float64
	BestDay              float64
	WorstDay             float64
	AvgDailyReturn       float64

	MaxDrawdown         float64
	CurrentDrawdown     float64
	AvgDrawdown         float64
	MaxDrawdownDuration int

	// Benchmark-relative, nil when the benchmark series was unavailable or
	// overlapped on too few dates.
	Alpha                      *float64
	Beta                       *float64
	TrackingError              *float64
	InformationRatio           *float64
	BenchmarkTotalReturn       *float64
	BenchmarkAnnualizedReturn  *float64
	BenchmarkBestDay           *float64
	BenchmarkWorstDay          *float64
	PercentPeriodsOutperformed *float64

	MonthlyReturns          []MonthlyReturn
	BenchmarkMonthlyReturns []MonthlyReturn
	TimeSeries              TimeSeries

	DataPoints int
}

// MonthlyReturn is the compound return of one calendar month.
type MonthlyReturn struct {
	Year   int        `json:"year" msgpack:"year"`
	Month  time.Month `json:"month" msgpack:"month"`
	Return float64    `json:"return" msgpack:"return"`
}

// TimeSeries carries the dated series persisted alongside the scalar metrics.
type TimeSeries struct {
	CumulativeReturns returns.Series `json:"cumulative_returns" msgpack:"cumulative_returns"`
	RollingSharpe     returns.Series `json:"rolling_sharpe" msgpack:"rolling_sharpe"`
	RollingExcess     returns.Series `json:"rolling_excess" msgpack:"rolling_excess"`
}

// Engine computes performance metrics. The risk-free rate is annual and is
// compared against annualized figures.
type Engine struct {
	riskFree float64
	log      zerolog.Logger
}

func NewEngine(riskFree float64, log zerolog.Logger) *Engine {
	return &Engine{
		riskFree: riskFree,
		log:      log.With().Str("service", "performance").Logger(),
	}
}

// Calculate computes all performance metrics for the portfolio series.
// The benchmark series may be nil; benchmark-relative fields stay nil in that
// case. Fewer than MinPerformancePoints observations is an error.
func (e *Engine) Calculate(portfolio, benchmark returns.Series) (*Result, error) {
	if len(portfolio) < returns.MinPerformancePoints {
		return nil, fmt.Errorf("performance: %w: have %d, need %d",
			returns.ErrInsufficientData, len(portfolio), returns.MinPerformancePoints)
	}

	values := portfolio.Values()

	best, worst := values[0], values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
		if v < worst {
			worst = v
		}
	}

	dd := formulas.CalculateDrawdownStats(values)

	res := &Result{
		TotalReturn:          formulas.CompoundReturn(values),
		AnnualizedReturn:     formulas.AnnualizedReturn(values),
		AnnualizedVolatility: formulas.AnnualizedVolatility(values),
		SharpeRatio:          formulas.SharpeRatio(values, e.riskFree),
		SortinoRatio:         formulas.SortinoRatio(values, e.riskFree),
		CalmarRatio:          formulas.CalmarRatio(values),
		OmegaRatio:           formulas.OmegaRatio(values, 0),
		WinRate:              formulas.WinRate(values),
		BestDay:              best,
		WorstDay:             worst,
		AvgDailyReturn:       formulas.Mean(values),
		MaxDrawdown:          dd.MaxDrawdown,
		CurrentDrawdown:      dd.CurrentDrawdown,
		AvgDrawdown:          dd.AvgDrawdown,
		MaxDrawdownDuration:  dd.MaxDuration,
		MonthlyReturns:       monthlyReturns(portfolio),
		DataPoints:           len(portfolio),
	}

	res.TimeSeries.CumulativeReturns = returns.Cumulative(portfolio)
	res.TimeSeries.RollingSharpe = returns.Rolling(portfolio, RollingSharpeWindow, func(w []float64) float64 {
		return formulas.SharpeRatio(w, e.riskFree)
	})

	if benchmark != nil {
		e.applyBenchmark(res, portfolio, benchmark)
	}

	return res, nil
}

func (e *Engine) applyBenchmark(res *Result, portfolio, benchmark returns.Series) {
	p, b, err := returns.Align(portfolio, benchmark, returns.MinPerformancePoints)
	if err != nil {
		e.log.Debug().Int("portfolio_points", len(portfolio)).Int("benchmark_points", len(benchmark)).
			Msg("skipping benchmark-relative metrics")
		return
	}

	pv, bv := p.Values(), b.Values()
	alpha := formulas.Alpha(pv, bv, e.riskFree)
	beta := formulas.Beta(pv, bv)
	te := formulas.TrackingError(pv, bv)
	ir := formulas.InformationRatio(pv, bv)
	benchTotal := formulas.CompoundReturn(bv)
	benchAnnual := formulas.AnnualizedReturn(bv)
	res.Alpha = &alpha
	res.Beta = &beta
	res.TrackingError = &te
	res.InformationRatio = &ir
	res.BenchmarkTotalReturn = &benchTotal
	res.BenchmarkAnnualizedReturn = &benchAnnual

	benchBest, benchWorst := bv[0], bv[0]
	for _, v := range bv[1:] {
		if v > benchBest {
			benchBest = v
		}
		if v < benchWorst {
			benchWorst = v
		}
	}
	res.BenchmarkBestDay = &benchBest
	res.BenchmarkWorstDay = &benchWorst
	res.BenchmarkMonthlyReturns = monthlyReturns(b)

	outperformed := 0
	for i := range pv {
		if pv[i] > bv[i] {
			outperformed++
		}
	}
	pct := float64(outperformed) / float64(len(pv)) * 100
	res.PercentPeriodsOutperformed = &pct

	excess := returns.Excess(p, b)
	res.TimeSeries.RollingExcess = returns.Rolling(excess, RollingSharpeWindow, formulas.Mean)
}

// monthlyReturns compounds the daily series within each calendar month,
// sorted chronologically.
func monthlyReturns(s returns.Series) []MonthlyReturn {
	type key struct {
		year  int
		month time.Month
	}
	growth := make(map[key]float64)
	for _, p := range s {
		k := key{p.Date.Year(), p.Date.Month()}
		if _, ok := growth[k]; !ok {
			growth[k] = 1
		}
		growth[k] *= 1 + p.Value
	}

	out := make([]MonthlyReturn, 0, len(growth))
	for k, g := range growth {
		out = append(out, MonthlyReturn{Year: k.year, Month: k.month, Return: g - 1})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
