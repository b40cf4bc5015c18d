package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/portlight/portlight/internal/domain"
	"github.com/portlight/portlight/internal/modules/exposure"
	"github.com/portlight/portlight/internal/modules/nav"
	"github.com/portlight/portlight/internal/modules/performance"
	"github.com/portlight/portlight/internal/modules/returns"
	"github.com/portlight/portlight/internal/modules/risk"
)

// ResultStore persists analytics records. *Repository is the production
// implementation.
type ResultStore interface {
	UpsertPerformance(ctx context.Context, rec *PerformanceRecord) error
	UpsertRisk(ctx context.Context, rec *RiskRecord) error
	UpsertExposure(ctx context.Context, rec *ExposureRecord) error

	// UpsertAll writes all three records atomically.
	UpsertAll(ctx context.Context, perf *PerformanceRecord, risk *RiskRecord, exp *ExposureRecord) error
}

// Options configures the calculation pipeline.
type Options struct {
	RiskFreeRate    float64
	BenchmarkSymbol string
	LookbackDays    int
	Workers         int
}

// Service runs the per-account calculation pipeline: NAV reconstruction,
// return series, the three engines, and persistence.
type Service struct {
	holdings   domain.HoldingSource
	txns       domain.TransactionSource
	prices     domain.PriceSource
	securities domain.SecuritySource
	benchmark  domain.BenchmarkSource
	accounts   domain.AccountSource
	calendar   domain.CalendarSource
	store      ResultStore

	perf     *performance.Engine
	risk     *risk.Engine
	exposure *exposure.Aggregator

	opts Options
	log  zerolog.Logger
}

// Sources bundles the market data dependencies. A single marketdata
// repository satisfies all of them.
type Sources struct {
	Holdings     domain.HoldingSource
	Transactions domain.TransactionSource
	Prices       domain.PriceSource
	Securities   domain.SecuritySource
	Benchmark    domain.BenchmarkSource
	Accounts     domain.AccountSource
	Calendar     domain.CalendarSource
}

func NewService(src Sources, store ResultStore, opts Options, log zerolog.Logger) *Service {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 730
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	svcLog := log.With().Str("service", "analytics").Logger()
	return &Service{
		holdings:   src.Holdings,
		txns:       src.Transactions,
		prices:     src.Prices,
		securities: src.Securities,
		benchmark:  src.Benchmark,
		accounts:   src.Accounts,
		calendar:   src.Calendar,
		store:      store,
		perf:       performance.NewEngine(opts.RiskFreeRate, log),
		risk:       risk.NewEngine(nil, log),
		exposure:   exposure.NewAggregator(log),
		opts:       opts,
		log:        svcLog,
	}
}

// CalculateAccount runs the full pipeline for one account as of the given
// date and persists all three result records. Calculation failures are
// recorded on the result rows; the returned error covers persistence and
// upstream read failures only.
func (s *Service) CalculateAccount(ctx context.Context, accountID string, asOf time.Time) (status domain.CalculationStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("account_id", accountID).Interface("panic", r).
				Msg("calculation panicked")
			status = domain.StatusError
			err = s.writeErrorRecords(ctx, accountID, asOf, fmt.Sprintf("internal error: %v", r))
		}
	}()

	in, err := s.loadInputs(ctx, accountID, asOf)
	if errors.Is(err, ErrNoPositionData) {
		s.log.Warn().Str("account_id", accountID).Msg("no position data for account")
		return domain.StatusError, s.writeErrorRecords(ctx, accountID, asOf, ErrNoPositionData.Error())
	}
	if err != nil {
		// An upstream read failure still leaves an error record behind so the
		// account is visibly failed rather than silently stale.
		if werr := s.writeErrorRecords(ctx, accountID, asOf, err.Error()); werr != nil {
			s.log.Error().Err(werr).Str("account_id", accountID).
				Msg("failed to write error records")
		}
		return domain.StatusError, err
	}

	now := time.Now().UTC()
	status = domain.StatusCompleted

	perfRec := s.buildPerformanceRecord(accountID, asOf, in.source, in.portfolio, in.benchmark, now)
	if perfRec.CalculationStatus != domain.StatusCompleted {
		status = perfRec.CalculationStatus
	}
	if err := s.store.UpsertPerformance(ctx, perfRec); err != nil {
		return domain.StatusError, err
	}

	riskRec := s.buildRiskRecord(accountID, asOf, in.source, in.portfolio, in.benchmark, now)
	if riskRec.CalculationStatus != domain.StatusCompleted && status == domain.StatusCompleted {
		status = riskRec.CalculationStatus
	}
	if err := s.store.UpsertRisk(ctx, riskRec); err != nil {
		return domain.StatusError, err
	}

	expRec, err := s.buildExposureRecord(ctx, accountID, asOf, in.source, in.holdings, in.txns, now)
	if err != nil {
		// Performance and risk are already persisted; only the exposure row
		// gets the error marker.
		failed := &ExposureRecord{
			ID: uuid.NewString(), AccountID: accountID, CalculationDate: asOf,
			CalculationStatus: domain.StatusError, ErrorMessage: err.Error(), UpdatedAt: now,
		}
		if werr := s.store.UpsertExposure(ctx, failed); werr != nil {
			s.log.Error().Err(werr).Str("account_id", accountID).
				Msg("failed to write exposure error record")
		}
		return domain.StatusError, err
	}
	if err := s.store.UpsertExposure(ctx, expRec); err != nil {
		return domain.StatusError, err
	}

	s.log.Info().Str("account_id", accountID).Str("source", string(in.source)).
		Int("return_points", len(in.portfolio)).Str("status", string(status)).
		Msg("account calculation finished")
	return status, nil
}

// CalculatePerformance recalculates and persists only the performance record
// for one account.
func (s *Service) CalculatePerformance(ctx context.Context, accountID string, asOf time.Time) (*PerformanceRecord, error) {
	in, err := s.loadInputs(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}
	rec := s.buildPerformanceRecord(accountID, asOf, in.source, in.portfolio, in.benchmark, time.Now().UTC())
	if err := s.store.UpsertPerformance(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CalculateRisk recalculates and persists only the risk record for one account.
func (s *Service) CalculateRisk(ctx context.Context, accountID string, asOf time.Time) (*RiskRecord, error) {
	in, err := s.loadInputs(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}
	rec := s.buildRiskRecord(accountID, asOf, in.source, in.portfolio, in.benchmark, time.Now().UTC())
	if err := s.store.UpsertRisk(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CalculateExposure recalculates and persists only the exposure record for one
// account.
func (s *Service) CalculateExposure(ctx context.Context, accountID string, asOf time.Time) (*ExposureRecord, error) {
	in, err := s.loadInputs(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}
	rec, err := s.buildExposureRecord(ctx, accountID, asOf, in.source, in.holdings, in.txns, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertExposure(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RunBatch calculates every active account concurrently. Each account is
// isolated: a panic or error in one never aborts the rest.
func (s *Service) RunBatch(ctx context.Context, asOf time.Time) (*BatchSummary, error) {
	accounts, err := s.accounts.GetActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	started := time.Now()
	summary := &BatchSummary{Total: len(accounts)}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan domain.Account)

	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for account := range jobs {
				status, err := s.CalculateAccount(ctx, account.ID, asOf)
				mu.Lock()
				switch {
				case err != nil || status == domain.StatusError:
					summary.Failed++
				case status == domain.StatusPartial:
					summary.Partial++
				default:
					summary.Completed++
				}
				mu.Unlock()
				if err != nil {
					s.log.Error().Err(err).Str("account_id", account.ID).
						Msg("account calculation failed")
				}
			}
		}()
	}

	for _, account := range accounts {
		jobs <- account
	}
	close(jobs)
	wg.Wait()

	summary.Duration = time.Since(started)
	s.log.Info().Int("total", summary.Total).Int("completed", summary.Completed).
		Int("partial", summary.Partial).Int("failed", summary.Failed).
		Dur("duration", summary.Duration).Msg("batch run finished")
	return summary, nil
}

// pipelineInputs is everything the record builders need, loaded once per
// account.
type pipelineInputs struct {
	source    domain.CalculationSource
	holdings  []domain.Holding
	txns      []domain.Transaction
	portfolio returns.Series
	benchmark returns.Series
}

// ErrNoPositionData indicates an account with neither holdings snapshots nor
// transactions, so no calculation can run.
var ErrNoPositionData = errors.New("no holdings or transactions available")

func (s *Service) loadInputs(ctx context.Context, accountID string, asOf time.Time) (*pipelineInputs, error) {
	start := asOf.AddDate(0, 0, -s.opts.LookbackDays)

	holdings, err := s.holdings.GetHoldings(ctx, accountID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	txns, err := s.txns.GetTransactions(ctx, accountID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	source, ok := nav.ChooseSource(holdings, txns)
	if !ok {
		return nil, ErrNoPositionData
	}

	portfolio, err := s.buildReturnSeries(ctx, source, holdings, txns, start, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to build return series: %w", err)
	}

	return &pipelineInputs{
		source:    source,
		holdings:  holdings,
		txns:      txns,
		portfolio: portfolio,
		benchmark: s.loadBenchmark(ctx, start, asOf),
	}, nil
}

func (s *Service) buildReturnSeries(ctx context.Context, source domain.CalculationSource,
	holdings []domain.Holding, txns []domain.Transaction, start, asOf time.Time) (returns.Series, error) {

	days, err := s.calendar.GetTradingDays(ctx, start, asOf)
	if err != nil {
		return nil, err
	}
	if len(days) < 2 {
		return nil, nil
	}

	lookup := s.priceLookup(ctx)
	var points []nav.Point
	if source == domain.SourceHoldings {
		points = nav.SeriesFromHoldings(holdings, lookup, days)
	} else {
		points = nav.SeriesFromTransactions(txns, lookup, days)
	}

	dates := make([]time.Time, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		dates[i] = p.Date
		values[i] = p.Value
	}
	return returns.FromNAVSeries(dates, values), nil
}

// priceLookup adapts the price source to the synchronous lookup the NAV
// calculator expects. Read errors are treated as a missing price.
func (s *Service) priceLookup(ctx context.Context) nav.PriceLookup {
	return func(securityID string, date time.Time) (float64, bool) {
		px, ok, err := s.prices.GetPrice(ctx, securityID, date)
		if err != nil {
			s.log.Warn().Err(err).Str("security_id", securityID).Msg("price lookup failed")
			return 0, false
		}
		return px, ok
	}
}

func (s *Service) loadBenchmark(ctx context.Context, start, end time.Time) returns.Series {
	if s.opts.BenchmarkSymbol == "" {
		return nil
	}
	points, err := s.benchmark.GetBenchmarkReturns(ctx, s.opts.BenchmarkSymbol, start, end)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", s.opts.BenchmarkSymbol).
			Msg("benchmark unavailable")
		return nil
	}
	return returns.Series(points)
}

func (s *Service) buildPerformanceRecord(accountID string, asOf time.Time,
	source domain.CalculationSource, portfolio, benchmark returns.Series, now time.Time) *PerformanceRecord {

	rec := &PerformanceRecord{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		CalculationDate:   asOf,
		PeriodDays:        s.opts.LookbackDays,
		CalculationSource: source,
		BenchmarkSymbol:   s.opts.BenchmarkSymbol,
		CalculationStatus: domain.StatusCompleted,
		UpdatedAt:         now,
	}

	res, err := s.perf.Calculate(portfolio, benchmark)
	if err != nil {
		rec.CalculationStatus = domain.StatusPartial
		rec.ErrorMessage = err.Error()
		return rec
	}

	rec.TotalReturn = &res.TotalReturn
	rec.AnnualizedReturn = &res.AnnualizedReturn
	rec.Volatility = &res.AnnualizedVolatility
	rec.SharpeRatio = &res.SharpeRatio
	rec.SortinoRatio = res.SortinoRatio
	rec.CalmarRatio = &res.CalmarRatio
	rec.OmegaRatio = res.OmegaRatio
	rec.MaxDrawdown = &res.MaxDrawdown
	rec.CurrentDrawdown = &res.CurrentDrawdown
	rec.AvgDrawdown = &res.AvgDrawdown
	rec.MaxDrawdownDuration = &res.MaxDrawdownDuration
	rec.WinRate = &res.WinRate
	rec.BestPeriod = &res.BestDay
	rec.WorstPeriod = &res.WorstDay
	rec.Alpha = res.Alpha
	rec.Beta = res.Beta
	rec.TrackingError = res.TrackingError
	rec.InformationRatio = res.InformationRatio
	rec.BenchmarkTotalReturn = res.BenchmarkTotalReturn
	rec.BenchmarkAnnualizedReturn = res.BenchmarkAnnualizedReturn
	rec.BenchmarkBestPeriod = res.BenchmarkBestDay
	rec.BenchmarkWorstPeriod = res.BenchmarkWorstDay
	rec.PercentPeriodsOutperformed = res.PercentPeriodsOutperformed
	rec.TimeSeries = &PerformanceTimeSeries{
		CumulativeReturns:       timedValues(res.TimeSeries.CumulativeReturns),
		RollingSharpe:           timedValues(res.TimeSeries.RollingSharpe),
		RollingExcess:           timedValues(res.TimeSeries.RollingExcess),
		MonthlyReturns:          res.MonthlyReturns,
		BenchmarkMonthlyReturns: res.BenchmarkMonthlyReturns,
	}
	return rec
}

func (s *Service) buildRiskRecord(accountID string, asOf time.Time,
	source domain.CalculationSource, portfolio, benchmark returns.Series, now time.Time) *RiskRecord {

	rec := &RiskRecord{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		CalculationDate:   asOf,
		CalculationSource: source,
		BenchmarkSymbol:   s.opts.BenchmarkSymbol,
		CalculationStatus: domain.StatusCompleted,
		UpdatedAt:         now,
	}

	res, err := s.risk.Calculate(portfolio, benchmark)
	if err != nil {
		rec.CalculationStatus = domain.StatusPartial
		rec.ErrorMessage = err.Error()
		return rec
	}

	rec.VaR90 = &res.VaR90
	rec.VaR95 = &res.VaR95
	rec.VaR99 = &res.VaR99
	rec.CVaR95 = &res.CVaR95
	rec.DownsideDeviation = &res.DownsideDeviation
	rec.Skewness = &res.Skewness
	rec.Kurtosis = &res.Kurtosis
	rec.TailRatio = res.TailRatio
	rec.Beta = res.Beta
	rec.Correlation = res.Correlation
	rec.TrackingError = res.TrackingError
	if res.CaptureDefined {
		rec.UpCapture = &res.UpCapture
		rec.DownCapture = &res.DownCapture
	} else {
		rec.CaptureFlagged = true
	}
	rec.StressResults = res.StressResults
	rec.TimeSeries = &RiskTimeSeries{
		RollingVolatility: timedValues(res.RollingVol),
		RollingBeta:       timedValues(res.RollingBeta),
		DrawdownTable:     res.DrawdownTable,
		Shock:             res.Shock,
	}
	return rec
}

func (s *Service) buildExposureRecord(ctx context.Context, accountID string, asOf time.Time,
	source domain.CalculationSource, holdings []domain.Holding, txns []domain.Transaction,
	now time.Time) (*ExposureRecord, error) {

	rec := &ExposureRecord{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		CalculationDate:   asOf,
		CalculationStatus: domain.StatusCompleted,
		UpdatedAt:         now,
	}

	positions, err := s.currentPositions(ctx, source, holdings, txns, asOf)
	if err != nil {
		return nil, err
	}

	res := s.exposure.Calculate(positions)
	rec.TotalMarketValue = res.TotalValue
	rec.PositionCount = res.PositionCount
	if res.TotalValue > 0 {
		rec.Top5Weight = &res.Top5Weight
		rec.Top10Weight = &res.Top10Weight
		rec.Top20Weight = &res.Top20Weight
		rec.LargestPositionWeight = &res.LargestWeight
		rec.HerfindahlIndex = &res.Herfindahl
		rec.EffectivePositions = &res.EffectivePositions
		rec.Allocations = &Allocations{
			ByAssetClass: res.ByAssetClass,
			BySector:     res.BySector,
			ByCountry:    res.ByCountry,
			ByRegion:     res.ByRegion,
			ByCurrency:   res.ByCurrency,
		}
		rec.TopHoldings = res.TopHoldings
	} else {
		rec.CalculationStatus = domain.StatusPartial
		rec.ErrorMessage = "no valued positions"
	}
	return rec, nil
}

// currentPositions values the account's positions at asOf and joins security
// reference metadata for the exposure aggregator.
func (s *Service) currentPositions(ctx context.Context, source domain.CalculationSource,
	holdings []domain.Holding, txns []domain.Transaction, asOf time.Time) ([]exposure.Position, error) {

	quantities := make(map[string]decimal.Decimal)
	fallbackValues := make(map[string]decimal.Decimal)

	if source == domain.SourceHoldings {
		for _, h := range nav.LatestHoldings(holdings, asOf) {
			quantities[h.SecurityID] = h.Quantity
			if h.MarketValue != nil {
				fallbackValues[h.SecurityID] = *h.MarketValue
			}
		}
	} else {
		for _, t := range txns {
			if t.TradeDate.After(asOf) || t.IsCashOnly() || t.SecurityID == "" {
				continue
			}
			if effect := t.PositionEffect(); !effect.IsZero() {
				quantities[t.SecurityID] = quantities[t.SecurityID].Add(effect)
			}
		}
	}

	positions := make([]exposure.Position, 0, len(quantities))
	for securityID, qty := range quantities {
		if !qty.IsPositive() {
			continue
		}

		value := decimal.Zero
		if px, ok, err := s.prices.GetPrice(ctx, securityID, asOf); err != nil {
			return nil, fmt.Errorf("failed to price %s: %w", securityID, err)
		} else if ok {
			value = qty.Mul(decimal.NewFromFloat(px))
		} else if fv, ok := fallbackValues[securityID]; ok {
			value = fv
		}

		pos := exposure.Position{
			SecurityID:  securityID,
			AssetClass:  domain.AssetClassOther,
			MarketValue: value,
		}
		info, err := s.securities.GetSecurity(ctx, securityID)
		if err != nil {
			return nil, fmt.Errorf("failed to load security %s: %w", securityID, err)
		}
		if info != nil {
			pos.Name = info.Name
			pos.AssetClass = info.AssetClass
			pos.Sector = info.Sector
			pos.Country = info.Country
			pos.Currency = info.Currency
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// writeErrorRecords marks all three result rows failed with the message so a
// bad account is visible, not silently absent. The three upserts commit
// together.
func (s *Service) writeErrorRecords(ctx context.Context, accountID string, asOf time.Time, msg string) error {
	now := time.Now().UTC()
	perfRec := &PerformanceRecord{
		ID: uuid.NewString(), AccountID: accountID, CalculationDate: asOf,
		PeriodDays: s.opts.LookbackDays, BenchmarkSymbol: s.opts.BenchmarkSymbol,
		CalculationStatus: domain.StatusError, ErrorMessage: msg, UpdatedAt: now,
	}
	riskRec := &RiskRecord{
		ID: uuid.NewString(), AccountID: accountID, CalculationDate: asOf,
		BenchmarkSymbol:   s.opts.BenchmarkSymbol,
		CalculationStatus: domain.StatusError, ErrorMessage: msg, UpdatedAt: now,
	}
	expRec := &ExposureRecord{
		ID: uuid.NewString(), AccountID: accountID, CalculationDate: asOf,
		CalculationStatus: domain.StatusError, ErrorMessage: msg, UpdatedAt: now,
	}

	return s.store.UpsertAll(ctx, perfRec, riskRec, expRec)
}

func timedValues(s returns.Series) []TimedValue {
	if len(s) == 0 {
		return nil
	}
	out := make([]TimedValue, len(s))
	for i, p := range s {
		out[i] = TimedValue{Date: p.Date.Format(dateLayout), Value: p.Value}
	}
	return out
}
