// Package analytics orchestrates the per-account calculation pipeline and
// persists one result record per (account, calculation date) per kind.
package analytics

import (
	"time"

	"github.com/portlight/portlight/internal/domain"
	"github.com/portlight/portlight/internal/modules/exposure"
	"github.com/portlight/portlight/internal/modules/performance"
	"github.com/portlight/portlight/internal/modules/risk"
)

// PerformanceRecord is one persisted performance result.
type PerformanceRecord struct {
	ID                string                   `json:"id"`
	AccountID         string                   `json:"account_id"`
	CalculationDate   time.Time                `json:"calculation_date"`
	PeriodDays        int                      `json:"period_days"`
	CalculationSource domain.CalculationSource `json:"calculation_source"`

	TotalReturn      *float64 `json:"total_return"`
	AnnualizedReturn *float64 `json:"annualized_return"`
	Volatility       *float64 `json:"volatility"`
	SharpeRatio      *float64 `json:"sharpe_ratio"`
	SortinoRatio     *float64 `json:"sortino_ratio"`
	CalmarRatio      *float64 `json:"calmar_ratio"`
	OmegaRatio       *float64 `json:"omega_ratio"`

	MaxDrawdown         *float64 `json:"max_drawdown"`
	CurrentDrawdown     *float64 `json:"current_drawdown"`
	AvgDrawdown         *float64 `json:"avg_drawdown"`
	MaxDrawdownDuration *int     `json:"max_drawdown_duration"`

	WinRate     *float64 `json:"win_rate"`
	BestPeriod  *float64 `json:"best_period"`
	WorstPeriod *float64 `json:"worst_period"`

	Alpha                      *float64 `json:"alpha"`
	Beta                       *float64 `json:"beta"`
	TrackingError              *float64 `json:"tracking_error"`
	InformationRatio           *float64 `json:"information_ratio"`
	BenchmarkTotalReturn       *float64 `json:"benchmark_total_return"`
	BenchmarkAnnualizedReturn  *float64 `json:"benchmark_annualized_return"`
	BenchmarkBestPeriod        *float64 `json:"benchmark_best_period"`
	BenchmarkWorstPeriod       *float64 `json:"benchmark_worst_period"`
	PercentPeriodsOutperformed *float64 `json:"percent_periods_outperformed"`
	BenchmarkSymbol            string   `json:"benchmark_symbol"`

	CalculationStatus domain.CalculationStatus `json:"calculation_status"`
	ErrorMessage      string                   `json:"error_message,omitempty"`

	// TimeSeries is serialized into the time_series_data blob.
	TimeSeries *PerformanceTimeSeries `json:"time_series,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// PerformanceTimeSeries is the charting payload stored alongside the scalars.
type PerformanceTimeSeries struct {
	CumulativeReturns       []TimedValue                `json:"cumulative_returns" msgpack:"cumulative_returns"`
	RollingSharpe           []TimedValue                `json:"rolling_sharpe" msgpack:"rolling_sharpe"`
	RollingExcess           []TimedValue                `json:"rolling_excess" msgpack:"rolling_excess"`
	MonthlyReturns          []performance.MonthlyReturn `json:"monthly_returns" msgpack:"monthly_returns"`
	BenchmarkMonthlyReturns []performance.MonthlyReturn `json:"benchmark_monthly_returns,omitempty" msgpack:"benchmark_monthly_returns"`
}

// RiskRecord is one persisted risk result.
type RiskRecord struct {
	ID                string                   `json:"id"`
	AccountID         string                   `json:"account_id"`
	CalculationDate   time.Time                `json:"calculation_date"`
	CalculationSource domain.CalculationSource `json:"calculation_source"`

	VaR90             *float64 `json:"var_90"`
	VaR95             *float64 `json:"var_95"`
	VaR99             *float64 `json:"var_99"`
	CVaR95            *float64 `json:"cvar_95"`
	DownsideDeviation *float64 `json:"downside_deviation"`
	Skewness          *float64 `json:"skewness"`
	Kurtosis          *float64 `json:"kurtosis"`
	TailRatio         *float64 `json:"tail_ratio"`

	Beta          *float64 `json:"beta"`
	Correlation   *float64 `json:"correlation"`
	TrackingError *float64 `json:"tracking_error"`

	UpCapture       *float64 `json:"up_capture"`
	DownCapture     *float64 `json:"down_capture"`
	CaptureFlagged  bool     `json:"capture_flagged"`
	BenchmarkSymbol string   `json:"benchmark_symbol"`

	StressResults []risk.StressResult `json:"stress_results,omitempty"`

	CalculationStatus domain.CalculationStatus `json:"calculation_status"`
	ErrorMessage      string                   `json:"error_message,omitempty"`

	TimeSeries *RiskTimeSeries `json:"time_series,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// RiskTimeSeries is the charting payload for risk records.
type RiskTimeSeries struct {
	RollingVolatility []TimedValue          `json:"rolling_volatility" msgpack:"rolling_volatility"`
	RollingBeta       []TimedValue          `json:"rolling_beta,omitempty" msgpack:"rolling_beta"`
	DrawdownTable     []risk.DrawdownPeriod `json:"drawdown_table,omitempty" msgpack:"drawdown_table"`
	Shock             risk.ShockResult      `json:"shock" msgpack:"shock"`
}

// ExposureRecord is one persisted exposure result.
type ExposureRecord struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id"`
	CalculationDate time.Time `json:"calculation_date"`

	TotalMarketValue float64 `json:"total_market_value"`
	PositionCount    int     `json:"position_count"`

	Top5Weight            *float64 `json:"top_5_weight"`
	Top10Weight           *float64 `json:"top_10_weight"`
	Top20Weight           *float64 `json:"top_20_weight"`
	LargestPositionWeight *float64 `json:"largest_position_weight"`
	HerfindahlIndex       *float64 `json:"herfindahl_index"`
	EffectivePositions    *float64 `json:"effective_positions"`

	Allocations *Allocations          `json:"allocations,omitempty"`
	TopHoldings []exposure.TopHolding `json:"top_holdings,omitempty"`

	CalculationStatus domain.CalculationStatus `json:"calculation_status"`
	ErrorMessage      string                   `json:"error_message,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Allocations groups the percentage breakdowns per dimension.
type Allocations struct {
	ByAssetClass map[string]float64 `json:"by_asset_class" msgpack:"by_asset_class"`
	BySector     map[string]float64 `json:"by_sector" msgpack:"by_sector"`
	ByCountry    map[string]float64 `json:"by_country" msgpack:"by_country"`
	ByRegion     map[string]float64 `json:"by_region" msgpack:"by_region"`
	ByCurrency   map[string]float64 `json:"by_currency" msgpack:"by_currency"`
}

// TimedValue is one dated observation in a serialized time series.
type TimedValue struct {
	Date  string  `json:"date" msgpack:"date"`
	Value float64 `json:"value" msgpack:"value"`
}

// BatchSummary reports the outcome of one batch run.
type BatchSummary struct {
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Partial   int           `json:"partial"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}
