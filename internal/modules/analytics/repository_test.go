package analytics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/portlight/portlight/internal/domain"
	"github.com/portlight/portlight/internal/modules/exposure"
	"github.com/portlight/portlight/internal/modules/risk"
)

func setupAnalyticsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schemaPath := filepath.Join("..", "..", "database", "schemas", "analytics_schema.sql")
	schema, err := os.ReadFile(schemaPath)
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

func newAnalyticsRepo(t *testing.T) *Repository {
	return NewRepository(setupAnalyticsDB(t), zerolog.Nop())
}

func f64(v float64) *float64 { return &v }

func TestPerformanceUpsertRoundTrip(t *testing.T) {
	repo := newAnalyticsRepo(t)
	ctx := context.Background()
	calcDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	rec := &PerformanceRecord{
		ID:                uuid.NewString(),
		AccountID:         "acct-1",
		CalculationDate:   calcDate,
		PeriodDays:        730,
		CalculationSource: domain.SourceTransactions,
		TotalReturn:          f64(0.08),
		SharpeRatio:          f64(1.2),
		SortinoRatio:         nil,
		BenchmarkBestPeriod:  f64(0.021),
		BenchmarkWorstPeriod: f64(-0.034),
		BenchmarkSymbol:      "SPY",
		CalculationStatus:    domain.StatusCompleted,
		TimeSeries: &PerformanceTimeSeries{
			CumulativeReturns: []TimedValue{
				{Date: "2024-05-30", Value: 0.05},
				{Date: "2024-05-31", Value: 0.08},
			},
		},
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertPerformance(ctx, rec))

	loaded, err := repo.GetLatestPerformance(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, calcDate, loaded.CalculationDate)
	require.NotNil(t, loaded.TotalReturn)
	assert.InDelta(t, 0.08, *loaded.TotalReturn, 1e-12)
	assert.Nil(t, loaded.SortinoRatio)
	assert.Nil(t, loaded.Alpha)
	require.NotNil(t, loaded.BenchmarkBestPeriod)
	assert.InDelta(t, 0.021, *loaded.BenchmarkBestPeriod, 1e-12)
	require.NotNil(t, loaded.BenchmarkWorstPeriod)
	assert.InDelta(t, -0.034, *loaded.BenchmarkWorstPeriod, 1e-12)
	require.NotNil(t, loaded.TimeSeries)
	require.Len(t, loaded.TimeSeries.CumulativeReturns, 2)
	assert.Equal(t, "2024-05-31", loaded.TimeSeries.CumulativeReturns[1].Date)
}

func TestPerformanceUpsertReplacesSameKey(t *testing.T) {
	repo := newAnalyticsRepo(t)
	ctx := context.Background()
	calcDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	first := &PerformanceRecord{
		ID: uuid.NewString(), AccountID: "acct-1", CalculationDate: calcDate,
		TotalReturn:       f64(0.05),
		CalculationStatus: domain.StatusCompleted, UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertPerformance(ctx, first))

	second := &PerformanceRecord{
		ID: uuid.NewString(), AccountID: "acct-1", CalculationDate: calcDate,
		TotalReturn:       f64(0.09),
		CalculationStatus: domain.StatusCompleted, UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertPerformance(ctx, second))

	loaded, err := repo.GetLatestPerformance(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	// The original row id survives, the metrics are replaced
	assert.Equal(t, first.ID, loaded.ID)
	assert.InDelta(t, 0.09, *loaded.TotalReturn, 1e-12)
}

func TestGetLatestPerformancePicksNewestDate(t *testing.T) {
	repo := newAnalyticsRepo(t)
	ctx := context.Background()

	for _, day := range []int{1, 15, 8} {
		rec := &PerformanceRecord{
			ID: uuid.NewString(), AccountID: "acct-1",
			CalculationDate:   time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC),
			TotalReturn:       f64(float64(day)),
			CalculationStatus: domain.StatusCompleted, UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.UpsertPerformance(ctx, rec))
	}

	loaded, err := repo.GetLatestPerformance(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 15, loaded.CalculationDate.Day())
}

func TestGetPerformanceByDate(t *testing.T) {
	repo := newAnalyticsRepo(t)
	ctx := context.Background()

	for _, day := range []int{1, 15} {
		rec := &PerformanceRecord{
			ID: uuid.NewString(), AccountID: "acct-1",
			CalculationDate:   time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC),
			TotalReturn:       f64(float64(day)),
			CalculationStatus: domain.StatusCompleted, UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.UpsertPerformance(ctx, rec))
	}

	loaded, err := repo.GetPerformance(ctx, "acct-1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.CalculationDate.Day())

	missing, err := repo.GetPerformance(ctx, "acct-1", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertAllWritesAllThreeKinds(t *testing.T) {
	repo := newAnalyticsRepo(t)
	ctx := context.Background()
	calcDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	perf := &PerformanceRecord{
		ID: uuid.NewString(), AccountID: "acct-1", CalculationDate: calcDate,
		CalculationStatus: domain.StatusError, ErrorMessage: "upstream read failed", UpdatedAt: now,
	}
	riskRec := &RiskRecord{
		ID: uuid.NewString(), AccountID: "acct-1", CalculationDate: calcDate,
		CalculationStatus: domain.StatusError, ErrorMessage: "upstream read failed", UpdatedAt: now,
	}
	exp := &ExposureRecord{
		ID: uuid.NewString(), AccountID: "acct-1", CalculationDate: calcDate,
		CalculationStatus: domain.StatusError, ErrorMessage: "upstream read failed", UpdatedAt: now,
	}
	require.NoError(t, repo.UpsertAll(ctx, perf, riskRec, exp))

	loadedPerf, err := repo.GetPerformance(ctx, "acct-1", calcDate)
	require.NoError(t, err)
	require.NotNil(t, loadedPerf)
	assert.Equal(t, domain.StatusError, loadedPerf.CalculationStatus)

	loadedRisk, err := repo.GetRisk(ctx, "acct-1", calcDate)
	require.NoError(t, err)
	require.NotNil(t, loadedRisk)
	assert.Equal(t, "upstream read failed", loadedRisk.ErrorMessage)

	loadedExp, err := repo.GetExposure(ctx, "acct-1", calcDate)
	require.NoError(t, err)
	require.NotNil(t, loadedExp)
	assert.Equal(t, domain.StatusError, loadedExp.CalculationStatus)
}

func TestGetLatestPerformanceMissingAccount(t *testing.T) {
	repo := newAnalyticsRepo(t)
	loaded, err := repo.GetLatestPerformance(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRiskUpsertRoundTrip(t *testing.T) {
	repo := newAnalyticsRepo(t)
	ctx := context.Background()

	rec := &RiskRecord{
		ID:                uuid.NewString(),
		AccountID:         "acct-1",
		CalculationDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		CalculationSource: domain.SourceHoldings,
		VaR95:             f64(-0.016),
		CVaR95:            f64(-0.024),
		CaptureFlagged:    true,
		BenchmarkSymbol:   "SPY",
		StressResults: []risk.StressResult{
			{Name: "covid_crash", DataPoints: 33, TotalReturn: -0.28, MaxDrawdown: -0.31, Volatility: 0.55},
		},
		TimeSeries: &RiskTimeSeries{
			RollingVolatility: []TimedValue{{Date: "2024-05-31", Value: 0.18}},
			Shock:             risk.ShockResult{ShockSize: -0.10, EstimatedDelta: -0.09},
		},
		CalculationStatus: domain.StatusCompleted,
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertRisk(ctx, rec))

	loaded, err := repo.GetLatestRisk(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.CaptureFlagged)
	assert.Nil(t, loaded.Beta)
	require.Len(t, loaded.StressResults, 1)
	assert.Equal(t, "covid_crash", loaded.StressResults[0].Name)
	assert.InDelta(t, -0.31, loaded.StressResults[0].MaxDrawdown, 1e-12)
	require.NotNil(t, loaded.TimeSeries)
	assert.InDelta(t, -0.09, loaded.TimeSeries.Shock.EstimatedDelta, 1e-12)
}

func TestExposureUpsertRoundTrip(t *testing.T) {
	repo := newAnalyticsRepo(t)
	ctx := context.Background()

	rec := &ExposureRecord{
		ID:               uuid.NewString(),
		AccountID:        "acct-1",
		CalculationDate:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		TotalMarketValue: 10500,
		PositionCount:    2,
		HerfindahlIndex:  f64(0.52),
		Allocations: &Allocations{
			ByAssetClass: map[string]float64{"equity": 60, "bond": 40},
			ByCurrency:   map[string]float64{"USD": 100},
		},
		TopHoldings: []exposure.TopHolding{
			{SecurityID: "AAPL", Name: "Apple Inc", WeightPct: 60, MarketValue: 6300},
		},
		CalculationStatus: domain.StatusCompleted,
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertExposure(ctx, rec))

	loaded, err := repo.GetLatestExposure(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.PositionCount)
	require.NotNil(t, loaded.Allocations)
	assert.InDelta(t, 60, loaded.Allocations.ByAssetClass["equity"], 1e-12)
	require.Len(t, loaded.TopHoldings, 1)
	assert.Equal(t, "AAPL", loaded.TopHoldings[0].SecurityID)
}
