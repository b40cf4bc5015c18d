// Package risk computes tail, drawdown, and benchmark-relative risk metrics
// from a daily return series.
package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/portlight/portlight/internal/domain"
	"github.com/portlight/portlight/internal/modules/returns"
	"github.com/portlight/portlight/pkg/formulas"
)

const (
	// RollingVolWindow is one quarter of trading days.
	RollingVolWindow = 63

	// RollingBetaWindow is the trailing window for the rolling beta series.
	RollingBetaWindow = 63

	// TopDrawdownCount caps the drawdown table at the worst episodes.
	TopDrawdownCount = 5

	// TailRatioMinPoints guards the 95th/5th percentile estimate; below a
	// full year of observations the tails are too thin to be meaningful.
	TailRatioMinPoints = 252

	// MinCaptureDays is the minimum up-days or down-days needed before a
	// capture ratio is reported.
	MinCaptureDays = 30

	// ShockSize is the perturbation applied to the most recent return in the
	// shock scenario.
	ShockSize = -0.10
)

// StressWindow names a historical date range metrics are recomputed over.
type StressWindow struct {
	Name  string
	Start time.Time
	End   time.Time
}

// DefaultStressWindows covers the major recent equity drawdowns.
var DefaultStressWindows = []StressWindow{
	{Name: "q4_2018_selloff", Start: time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2018, 12, 24, 0, 0, 0, 0, time.UTC)},
	{Name: "covid_crash", Start: time.Date(2020, 2, 20, 0, 0, 0, 0, time.UTC), End: time.Date(2020, 4, 7, 0, 0, 0, 0, time.UTC)},
	{Name: "rate_shock_2022", Start: time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), End: time.Date(2022, 10, 14, 0, 0, 0, 0, time.UTC)},
}

// StressResult is the metric set restricted to one stress window.
type StressResult struct {
	Name        string  `json:"name" msgpack:"name"`
	DataPoints  int     `json:"data_points" msgpack:"data_points"`
	TotalReturn float64 `json:"total_return" msgpack:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown" msgpack:"max_drawdown"`
	Volatility  float64 `json:"volatility" msgpack:"volatility"`
}

// DrawdownPeriod describes one peak-to-recovery drawdown episode. RecoveryDate
// is empty while the series is still underwater.
type DrawdownPeriod struct {
	PeakDate     string  `json:"peak_date" msgpack:"peak_date"`
	ValleyDate   string  `json:"valley_date" msgpack:"valley_date"`
	RecoveryDate string  `json:"recovery_date,omitempty" msgpack:"recovery_date"`
	Depth        float64 `json:"depth" msgpack:"depth"` // most negative drawdown in the episode (<= 0)
	Days         int     `json:"days" msgpack:"days"`   // periods spent below the peak
}

// ShockResult reports the sensitivity of cumulative return to a fixed
// perturbation of the most recent observation.
type ShockResult struct {
	ShockSize      float64 `json:"shock_size" msgpack:"shock_size"`
	BaseReturn     float64 `json:"base_return" msgpack:"base_return"`
	ShockedReturn  float64 `json:"shocked_return" msgpack:"shocked_return"`
	EstimatedDelta float64 `json:"estimated_delta" msgpack:"estimated_delta"`
}

// Result holds the computed risk metrics. Pointer fields are nil when the
// metric is undefined for the input.
type Result struct {
	VaR90     float64
	VaR95     float64
	VaR99     float64
	CVaR95    float64
	TailRatio *float64

	DownsideDeviation float64
	Skewness          float64
	Kurtosis          float64

	// Benchmark-relative, nil when the benchmark was unavailable or the
	// overlap was too thin.
	Beta          *float64
	Correlation   *float64
	TrackingError *float64

	// Capture ratios are 0 and flagged undefined below MinCaptureDays
	// up-days or down-days.
	UpCapture       float64
	DownCapture     float64
	CaptureDefined  bool
	UpCaptureDays   int
	DownCaptureDays int

	StressResults []StressResult
	DrawdownTable []DrawdownPeriod
	Shock         ShockResult
	RollingVol    returns.Series
	RollingBeta   returns.Series

	DataPoints int
}

// Engine computes risk metrics over a configurable set of stress windows.
type Engine struct {
	windows []StressWindow
	log     zerolog.Logger
}

func NewEngine(windows []StressWindow, log zerolog.Logger) *Engine {
	if windows == nil {
		windows = DefaultStressWindows
	}
	return &Engine{
		windows: windows,
		log:     log.With().Str("service", "risk").Logger(),
	}
}

// Calculate computes all risk metrics. The benchmark series may be nil.
// Fewer than MinRiskPoints observations is an error.
func (e *Engine) Calculate(portfolio, benchmark returns.Series) (*Result, error) {
	if len(portfolio) < returns.MinRiskPoints {
		return nil, fmt.Errorf("risk: %w: have %d, need %d",
			returns.ErrInsufficientData, len(portfolio), returns.MinRiskPoints)
	}

	values := portfolio.Values()

	res := &Result{
		VaR90:             formulas.HistoricalVaR(values, 0.90),
		VaR95:             formulas.HistoricalVaR(values, 0.95),
		VaR99:             formulas.HistoricalVaR(values, 0.99),
		CVaR95:            formulas.CVaR(values, 0.95),
		DownsideDeviation: formulas.DownsideDeviation(values),
		Skewness:          formulas.Skewness(values),
		Kurtosis:          formulas.ExcessKurtosis(values),
		StressResults:     e.stressResults(portfolio),
		DrawdownTable:     topDrawdowns(portfolio, TopDrawdownCount),
		Shock:             shockScenario(values),
		RollingVol:        returns.Rolling(portfolio, RollingVolWindow, formulas.AnnualizedVolatility),
		DataPoints:        len(portfolio),
	}

	if len(values) >= TailRatioMinPoints {
		tr := formulas.TailRatio(values)
		res.TailRatio = &tr
	}

	if benchmark != nil {
		e.applyBenchmark(res, portfolio, benchmark)
	}

	return res, nil
}

func (e *Engine) applyBenchmark(res *Result, portfolio, benchmark returns.Series) {
	p, b, err := returns.Align(portfolio, benchmark, returns.MinRiskPoints)
	if err != nil {
		e.log.Debug().Int("portfolio_points", len(portfolio)).Int("benchmark_points", len(benchmark)).
			Msg("skipping benchmark-relative risk metrics")
		return
	}

	pv, bv := p.Values(), b.Values()
	beta := formulas.Beta(pv, bv)
	corr := formulas.Correlation(pv, bv)
	te := formulas.TrackingError(pv, bv)
	res.Beta = &beta
	res.Correlation = &corr
	res.TrackingError = &te

	res.RollingBeta = rollingBeta(p, b, RollingBetaWindow)

	up, upDays := formulas.CaptureRatio(pv, bv, true)
	down, downDays := formulas.CaptureRatio(pv, bv, false)
	res.UpCaptureDays = upDays
	res.DownCaptureDays = downDays
	if upDays >= MinCaptureDays && downDays >= MinCaptureDays {
		res.UpCapture = up
		res.DownCapture = down
		res.CaptureDefined = true
	}
}

// stressResults recomputes the core metrics restricted to each configured
// window. Windows with fewer than 5 observations in the series are skipped.
func (e *Engine) stressResults(s returns.Series) []StressResult {
	out := make([]StressResult, 0, len(e.windows))
	for _, w := range e.windows {
		var sub []float64
		for _, p := range s {
			if !p.Date.Before(w.Start) && !p.Date.After(w.End) {
				sub = append(sub, p.Value)
			}
		}
		if len(sub) < 5 {
			continue
		}
		out = append(out, StressResult{
			Name:        w.Name,
			DataPoints:  len(sub),
			TotalReturn: formulas.CompoundReturn(sub),
			MaxDrawdown: formulas.MaxDrawdown(sub),
			Volatility:  formulas.AnnualizedVolatility(sub),
		})
	}
	return out
}

// rollingBeta computes cov/var beta over trailing windows of the aligned
// pair, one dated point per complete window.
func rollingBeta(p, b returns.Series, window int) returns.Series {
	if window <= 0 || len(p) != len(b) || len(p) < window {
		return nil
	}
	pv, bv := p.Values(), b.Values()
	out := make(returns.Series, 0, len(pv)-window+1)
	for i := window; i <= len(pv); i++ {
		out = append(out, domain.ReturnPoint{
			Date:  p[i-1].Date,
			Value: formulas.Beta(pv[i-window:i], bv[i-window:i]),
		})
	}
	return out
}

const dateLayout = "2006-01-02"

// topDrawdowns extracts the worst peak-to-recovery episodes from the series,
// sorted deepest first. An episode runs from the observation after a running
// peak until the series regains that peak; the last episode may still be open.
func topDrawdowns(s returns.Series, top int) []DrawdownPeriod {
	dd := formulas.DrawdownSeries(s.Values())

	var episodes []DrawdownPeriod
	i := 0
	for i < len(dd) {
		if dd[i] >= 0 {
			i++
			continue
		}

		depth := dd[i]
		valley := i
		j := i
		for j < len(dd) && dd[j] < 0 {
			if dd[j] < depth {
				depth = dd[j]
				valley = j
			}
			j++
		}

		ep := DrawdownPeriod{
			ValleyDate: s[valley].Date.Format(dateLayout),
			Depth:      depth,
			Days:       j - i,
		}
		// A series that starts underwater has no observed peak; the first
		// observation stands in.
		peak := i - 1
		if peak < 0 {
			peak = 0
		}
		ep.PeakDate = s[peak].Date.Format(dateLayout)
		if j < len(dd) {
			ep.RecoveryDate = s[j].Date.Format(dateLayout)
		}
		episodes = append(episodes, ep)
		i = j
	}

	sort.Slice(episodes, func(a, b int) bool {
		return episodes[a].Depth < episodes[b].Depth
	})
	if len(episodes) > top {
		episodes = episodes[:top]
	}
	return episodes
}

// shockScenario perturbs the most recent return by ShockSize and recomputes
// the cumulative return.
func shockScenario(values []float64) ShockResult {
	base := formulas.CompoundReturn(values)
	shocked := make([]float64, len(values))
	copy(shocked, values)
	shocked[len(shocked)-1] += ShockSize
	after := formulas.CompoundReturn(shocked)
	return ShockResult{
		ShockSize:      ShockSize,
		BaseReturn:     base,
		ShockedReturn:  after,
		EstimatedDelta: after - base,
	}
}
