package domain

import (
	"context"
	"time"
)

// HoldingSource provides holdings snapshots. Implementations must return the
// raw snapshot rows at or before the given date; the engine picks the latest
// row per security itself.
type HoldingSource interface {
	// GetHoldings returns all holding snapshots for the account dated at or
	// before asOf, in no particular order.
	GetHoldings(ctx context.Context, accountID string, asOf time.Time) ([]Holding, error)
}

// TransactionSource provides the append-only ledger
type TransactionSource interface {
	// GetTransactions returns all transactions for the account dated at or
	// before end, in chronological order.
	GetTransactions(ctx context.Context, accountID string, end time.Time) ([]Transaction, error)
}

// PriceSource resolves security prices with most-recent-at-or-before
// semantics. A missing price is (0, false, nil), not an error.
type PriceSource interface {
	// GetPrice returns the latest close at or before date for the security.
	GetPrice(ctx context.Context, securityID string, date time.Time) (float64, bool, error)

	// GetPriceHistory returns the date-ordered close series for the security
	// within [start, end].
	GetPriceHistory(ctx context.Context, securityID string, start, end time.Time) ([]PricePoint, error)
}

// SecuritySource provides reference metadata for exposure aggregation
type SecuritySource interface {
	GetSecurity(ctx context.Context, securityID string) (*SecurityInfo, error)
}

// BenchmarkSource provides benchmark return series by symbol
type BenchmarkSource interface {
	// GetBenchmarkReturns returns the benchmark's periodic returns within
	// [start, end], date-ordered.
	GetBenchmarkReturns(ctx context.Context, symbol string, start, end time.Time) ([]ReturnPoint, error)
}

// CalendarSource derives the trading-day calendar from observed price data
type CalendarSource interface {
	// GetTradingDays returns the distinct dates with any price observation
	// within [start, end], ascending.
	GetTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// AccountSource lists the accounts eligible for a batch run
type AccountSource interface {
	GetActiveAccounts(ctx context.Context) ([]Account, error)
}
