package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/portlight/portlight/internal/database"
	"github.com/portlight/portlight/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository persists analytics records in analytics.db. Records are keyed
// (account_id, calculation_date); recalculation replaces the existing row.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "analytics").Logger(),
	}
}

// execer is satisfied by both *sql.DB and *sql.Tx so the upserts can run
// standalone or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertPerformance writes or replaces the performance record for its
// (account, calculation date) key.
func (r *Repository) UpsertPerformance(ctx context.Context, rec *PerformanceRecord) error {
	return upsertPerformance(ctx, r.db, rec)
}

// UpsertAll writes all three records in a single transaction, so a failed
// account never ends up with a mix of old and new rows.
func (r *Repository) UpsertAll(ctx context.Context, perf *PerformanceRecord, riskRec *RiskRecord, exp *ExposureRecord) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := upsertPerformance(ctx, tx, perf); err != nil {
			return err
		}
		if err := upsertRisk(ctx, tx, riskRec); err != nil {
			return err
		}
		return upsertExposure(ctx, tx, exp)
	})
}

func upsertPerformance(ctx context.Context, ex execer, rec *PerformanceRecord) error {
	var blob []byte
	if rec.TimeSeries != nil {
		var err error
		blob, err = msgpack.Marshal(rec.TimeSeries)
		if err != nil {
			return fmt.Errorf("failed to encode time series: %w", err)
		}
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO analytics_performance (
			id, account_id, calculation_date, period_days, calculation_source,
			total_return, annualized_return, volatility, sharpe_ratio,
			sortino_ratio, calmar_ratio, omega_ratio,
			max_drawdown, current_drawdown, avg_drawdown, max_drawdown_duration,
			win_rate, best_period, worst_period,
			alpha, beta, tracking_error, information_ratio,
			benchmark_total_return, benchmark_annualized_return,
			benchmark_best_period, benchmark_worst_period,
			percent_periods_outperformed, benchmark_symbol,
			calculation_status, error_message, time_series_data, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, calculation_date) DO UPDATE SET
			period_days = excluded.period_days,
			calculation_source = excluded.calculation_source,
			total_return = excluded.total_return,
			annualized_return = excluded.annualized_return,
			volatility = excluded.volatility,
			sharpe_ratio = excluded.sharpe_ratio,
			sortino_ratio = excluded.sortino_ratio,
			calmar_ratio = excluded.calmar_ratio,
			omega_ratio = excluded.omega_ratio,
			max_drawdown = excluded.max_drawdown,
			current_drawdown = excluded.current_drawdown,
			avg_drawdown = excluded.avg_drawdown,
			max_drawdown_duration = excluded.max_drawdown_duration,
			win_rate = excluded.win_rate,
			best_period = excluded.best_period,
			worst_period = excluded.worst_period,
			alpha = excluded.alpha,
			beta = excluded.beta,
			tracking_error = excluded.tracking_error,
			information_ratio = excluded.information_ratio,
			benchmark_total_return = excluded.benchmark_total_return,
			benchmark_annualized_return = excluded.benchmark_annualized_return,
			benchmark_best_period = excluded.benchmark_best_period,
			benchmark_worst_period = excluded.benchmark_worst_period,
			percent_periods_outperformed = excluded.percent_periods_outperformed,
			benchmark_symbol = excluded.benchmark_symbol,
			calculation_status = excluded.calculation_status,
			error_message = excluded.error_message,
			time_series_data = excluded.time_series_data,
			updated_at = excluded.updated_at
	`,
		rec.ID, rec.AccountID, rec.CalculationDate.Format(dateLayout),
		rec.PeriodDays, string(rec.CalculationSource),
		rec.TotalReturn, rec.AnnualizedReturn, rec.Volatility, rec.SharpeRatio,
		rec.SortinoRatio, rec.CalmarRatio, rec.OmegaRatio,
		rec.MaxDrawdown, rec.CurrentDrawdown, rec.AvgDrawdown, rec.MaxDrawdownDuration,
		rec.WinRate, rec.BestPeriod, rec.WorstPeriod,
		rec.Alpha, rec.Beta, rec.TrackingError, rec.InformationRatio,
		rec.BenchmarkTotalReturn, rec.BenchmarkAnnualizedReturn,
		rec.BenchmarkBestPeriod, rec.BenchmarkWorstPeriod,
		rec.PercentPeriodsOutperformed, rec.BenchmarkSymbol,
		string(rec.CalculationStatus), rec.ErrorMessage, blob, rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert performance record: %w", err)
	}
	return nil
}

const performanceColumns = `id, account_id, calculation_date, period_days, calculation_source,
	total_return, annualized_return, volatility, sharpe_ratio,
	sortino_ratio, calmar_ratio, omega_ratio,
	max_drawdown, current_drawdown, avg_drawdown, max_drawdown_duration,
	win_rate, best_period, worst_period,
	alpha, beta, tracking_error, information_ratio,
	benchmark_total_return, benchmark_annualized_return,
	benchmark_best_period, benchmark_worst_period,
	percent_periods_outperformed, benchmark_symbol,
	calculation_status, error_message, time_series_data, updated_at`

// GetLatestPerformance returns the most recent performance record for the
// account, or nil when none exists.
func (r *Repository) GetLatestPerformance(ctx context.Context, accountID string) (*PerformanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+performanceColumns+`
		FROM analytics_performance
		WHERE account_id = ?
		ORDER BY calculation_date DESC
		LIMIT 1
	`, accountID)

	rec, err := scanPerformance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load performance record: %w", err)
	}
	return rec, nil
}

// GetPerformance returns the performance record for the exact calculation
// date, or nil when none exists.
func (r *Repository) GetPerformance(ctx context.Context, accountID string, date time.Time) (*PerformanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+performanceColumns+`
		FROM analytics_performance
		WHERE account_id = ? AND calculation_date = ?
	`, accountID, date.Format(dateLayout))

	rec, err := scanPerformance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load performance record: %w", err)
	}
	return rec, nil
}

// UpsertRisk writes or replaces the risk record for its key.
func (r *Repository) UpsertRisk(ctx context.Context, rec *RiskRecord) error {
	return upsertRisk(ctx, r.db, rec)
}

func upsertRisk(ctx context.Context, ex execer, rec *RiskRecord) error {
	var tsBlob, stressBlob []byte
	var err error
	if rec.TimeSeries != nil {
		if tsBlob, err = msgpack.Marshal(rec.TimeSeries); err != nil {
			return fmt.Errorf("failed to encode time series: %w", err)
		}
	}
	if len(rec.StressResults) > 0 {
		if stressBlob, err = msgpack.Marshal(rec.StressResults); err != nil {
			return fmt.Errorf("failed to encode stress results: %w", err)
		}
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO analytics_risk (
			id, account_id, calculation_date, calculation_source,
			var_90, var_95, var_99, cvar_95, downside_deviation,
			skewness, kurtosis, tail_ratio,
			beta, correlation, tracking_error,
			up_capture, down_capture, capture_flagged, benchmark_symbol,
			stress_results, calculation_status, error_message,
			time_series_data, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, calculation_date) DO UPDATE SET
			calculation_source = excluded.calculation_source,
			var_90 = excluded.var_90,
			var_95 = excluded.var_95,
			var_99 = excluded.var_99,
			cvar_95 = excluded.cvar_95,
			downside_deviation = excluded.downside_deviation,
			skewness = excluded.skewness,
			kurtosis = excluded.kurtosis,
			tail_ratio = excluded.tail_ratio,
			beta = excluded.beta,
			correlation = excluded.correlation,
			tracking_error = excluded.tracking_error,
			up_capture = excluded.up_capture,
			down_capture = excluded.down_capture,
			capture_flagged = excluded.capture_flagged,
			benchmark_symbol = excluded.benchmark_symbol,
			stress_results = excluded.stress_results,
			calculation_status = excluded.calculation_status,
			error_message = excluded.error_message,
			time_series_data = excluded.time_series_data,
			updated_at = excluded.updated_at
	`,
		rec.ID, rec.AccountID, rec.CalculationDate.Format(dateLayout),
		string(rec.CalculationSource),
		rec.VaR90, rec.VaR95, rec.VaR99, rec.CVaR95, rec.DownsideDeviation,
		rec.Skewness, rec.Kurtosis, rec.TailRatio,
		rec.Beta, rec.Correlation, rec.TrackingError,
		rec.UpCapture, rec.DownCapture, boolToInt(rec.CaptureFlagged), rec.BenchmarkSymbol,
		stressBlob, string(rec.CalculationStatus), rec.ErrorMessage,
		tsBlob, rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert risk record: %w", err)
	}
	return nil
}

const riskColumns = `id, account_id, calculation_date, calculation_source,
	var_90, var_95, var_99, cvar_95, downside_deviation,
	skewness, kurtosis, tail_ratio,
	beta, correlation, tracking_error,
	up_capture, down_capture, capture_flagged, benchmark_symbol,
	stress_results, calculation_status, error_message,
	time_series_data, updated_at`

// GetLatestRisk returns the most recent risk record for the account, or nil.
func (r *Repository) GetLatestRisk(ctx context.Context, accountID string) (*RiskRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+riskColumns+`
		FROM analytics_risk
		WHERE account_id = ?
		ORDER BY calculation_date DESC
		LIMIT 1
	`, accountID)

	rec, err := scanRisk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load risk record: %w", err)
	}
	return rec, nil
}

// GetRisk returns the risk record for the exact calculation date, or nil.
func (r *Repository) GetRisk(ctx context.Context, accountID string, date time.Time) (*RiskRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+riskColumns+`
		FROM analytics_risk
		WHERE account_id = ? AND calculation_date = ?
	`, accountID, date.Format(dateLayout))

	rec, err := scanRisk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load risk record: %w", err)
	}
	return rec, nil
}

// UpsertExposure writes or replaces the exposure record for its key.
func (r *Repository) UpsertExposure(ctx context.Context, rec *ExposureRecord) error {
	return upsertExposure(ctx, r.db, rec)
}

func upsertExposure(ctx context.Context, ex execer, rec *ExposureRecord) error {
	var allocBlob, holdingsBlob []byte
	var err error
	if rec.Allocations != nil {
		if allocBlob, err = msgpack.Marshal(rec.Allocations); err != nil {
			return fmt.Errorf("failed to encode allocations: %w", err)
		}
	}
	if len(rec.TopHoldings) > 0 {
		if holdingsBlob, err = msgpack.Marshal(rec.TopHoldings); err != nil {
			return fmt.Errorf("failed to encode top holdings: %w", err)
		}
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO analytics_exposure (
			id, account_id, calculation_date, total_market_value, position_count,
			top_5_weight, top_10_weight, top_20_weight, largest_position_weight,
			herfindahl_index, effective_positions,
			allocations, top_holdings,
			calculation_status, error_message, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, calculation_date) DO UPDATE SET
			total_market_value = excluded.total_market_value,
			position_count = excluded.position_count,
			top_5_weight = excluded.top_5_weight,
			top_10_weight = excluded.top_10_weight,
			top_20_weight = excluded.top_20_weight,
			largest_position_weight = excluded.largest_position_weight,
			herfindahl_index = excluded.herfindahl_index,
			effective_positions = excluded.effective_positions,
			allocations = excluded.allocations,
			top_holdings = excluded.top_holdings,
			calculation_status = excluded.calculation_status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`,
		rec.ID, rec.AccountID, rec.CalculationDate.Format(dateLayout),
		rec.TotalMarketValue, rec.PositionCount,
		rec.Top5Weight, rec.Top10Weight, rec.Top20Weight, rec.LargestPositionWeight,
		rec.HerfindahlIndex, rec.EffectivePositions,
		allocBlob, holdingsBlob,
		string(rec.CalculationStatus), rec.ErrorMessage, rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert exposure record: %w", err)
	}
	return nil
}

const exposureColumns = `id, account_id, calculation_date, total_market_value, position_count,
	top_5_weight, top_10_weight, top_20_weight, largest_position_weight,
	herfindahl_index, effective_positions,
	allocations, top_holdings,
	calculation_status, error_message, updated_at`

// GetLatestExposure returns the most recent exposure record, or nil.
func (r *Repository) GetLatestExposure(ctx context.Context, accountID string) (*ExposureRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+exposureColumns+`
		FROM analytics_exposure
		WHERE account_id = ?
		ORDER BY calculation_date DESC
		LIMIT 1
	`, accountID)

	rec, err := scanExposure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load exposure record: %w", err)
	}
	return rec, nil
}

// GetExposure returns the exposure record for the exact calculation date, or nil.
func (r *Repository) GetExposure(ctx context.Context, accountID string, date time.Time) (*ExposureRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+exposureColumns+`
		FROM analytics_exposure
		WHERE account_id = ? AND calculation_date = ?
	`, accountID, date.Format(dateLayout))

	rec, err := scanExposure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load exposure record: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerformance(row rowScanner) (*PerformanceRecord, error) {
	var rec PerformanceRecord
	var calcDate, source, status string
	var blob []byte
	var updatedAt int64

	err := row.Scan(
		&rec.ID, &rec.AccountID, &calcDate, &rec.PeriodDays, &source,
		&rec.TotalReturn, &rec.AnnualizedReturn, &rec.Volatility, &rec.SharpeRatio,
		&rec.SortinoRatio, &rec.CalmarRatio, &rec.OmegaRatio,
		&rec.MaxDrawdown, &rec.CurrentDrawdown, &rec.AvgDrawdown, &rec.MaxDrawdownDuration,
		&rec.WinRate, &rec.BestPeriod, &rec.WorstPeriod,
		&rec.Alpha, &rec.Beta, &rec.TrackingError, &rec.InformationRatio,
		&rec.BenchmarkTotalReturn, &rec.BenchmarkAnnualizedReturn,
		&rec.BenchmarkBestPeriod, &rec.BenchmarkWorstPeriod,
		&rec.PercentPeriodsOutperformed, &rec.BenchmarkSymbol,
		&status, &rec.ErrorMessage, &blob, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.CalculationSource = domain.CalculationSource(source)
	rec.CalculationStatus = domain.CalculationStatus(status)
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if rec.CalculationDate, err = time.Parse(dateLayout, calcDate); err != nil {
		return nil, fmt.Errorf("invalid calculation_date %q: %w", calcDate, err)
	}
	if len(blob) > 0 {
		var ts PerformanceTimeSeries
		if err := msgpack.Unmarshal(blob, &ts); err != nil {
			return nil, fmt.Errorf("failed to decode time series: %w", err)
		}
		rec.TimeSeries = &ts
	}
	return &rec, nil
}

func scanRisk(row rowScanner) (*RiskRecord, error) {
	var rec RiskRecord
	var calcDate, source, status string
	var tsBlob, stressBlob []byte
	var captureFlagged int
	var updatedAt int64

	err := row.Scan(
		&rec.ID, &rec.AccountID, &calcDate, &source,
		&rec.VaR90, &rec.VaR95, &rec.VaR99, &rec.CVaR95, &rec.DownsideDeviation,
		&rec.Skewness, &rec.Kurtosis, &rec.TailRatio,
		&rec.Beta, &rec.Correlation, &rec.TrackingError,
		&rec.UpCapture, &rec.DownCapture, &captureFlagged, &rec.BenchmarkSymbol,
		&stressBlob, &status, &rec.ErrorMessage,
		&tsBlob, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.CalculationSource = domain.CalculationSource(source)
	rec.CalculationStatus = domain.CalculationStatus(status)
	rec.CaptureFlagged = captureFlagged != 0
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if rec.CalculationDate, err = time.Parse(dateLayout, calcDate); err != nil {
		return nil, fmt.Errorf("invalid calculation_date %q: %w", calcDate, err)
	}
	if len(stressBlob) > 0 {
		if err := msgpack.Unmarshal(stressBlob, &rec.StressResults); err != nil {
			return nil, fmt.Errorf("failed to decode stress results: %w", err)
		}
	}
	if len(tsBlob) > 0 {
		var ts RiskTimeSeries
		if err := msgpack.Unmarshal(tsBlob, &ts); err != nil {
			return nil, fmt.Errorf("failed to decode time series: %w", err)
		}
		rec.TimeSeries = &ts
	}
	return &rec, nil
}

func scanExposure(row rowScanner) (*ExposureRecord, error) {
	var rec ExposureRecord
	var calcDate, status string
	var allocBlob, holdingsBlob []byte
	var updatedAt int64

	err := row.Scan(
		&rec.ID, &rec.AccountID, &calcDate, &rec.TotalMarketValue, &rec.PositionCount,
		&rec.Top5Weight, &rec.Top10Weight, &rec.Top20Weight, &rec.LargestPositionWeight,
		&rec.HerfindahlIndex, &rec.EffectivePositions,
		&allocBlob, &holdingsBlob,
		&status, &rec.ErrorMessage, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.CalculationStatus = domain.CalculationStatus(status)
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if rec.CalculationDate, err = time.Parse(dateLayout, calcDate); err != nil {
		return nil, fmt.Errorf("invalid calculation_date %q: %w", calcDate, err)
	}
	if len(allocBlob) > 0 {
		var a Allocations
		if err := msgpack.Unmarshal(allocBlob, &a); err != nil {
			return nil, fmt.Errorf("failed to decode allocations: %w", err)
		}
		rec.Allocations = &a
	}
	if len(holdingsBlob) > 0 {
		if err := msgpack.Unmarshal(holdingsBlob, &rec.TopHoldings); err != nil {
			return nil, fmt.Errorf("failed to decode top holdings: %w", err)
		}
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
