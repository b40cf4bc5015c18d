package marketdata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/portlight/portlight/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			active INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE securities (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			asset_class TEXT NOT NULL DEFAULT 'other',
			sector TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT 'USD'
		);
		CREATE TABLE holdings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			security_id TEXT NOT NULL,
			quantity TEXT NOT NULL,
			cost_basis_per_share TEXT,
			market_value TEXT,
			currency TEXT NOT NULL DEFAULT 'USD',
			as_of_date TEXT NOT NULL
		);
		CREATE TABLE transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			security_id TEXT,
			type TEXT NOT NULL,
			quantity TEXT,
			price TEXT,
			amount TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD'
		);
		CREATE TABLE daily_prices (
			security_id TEXT NOT NULL,
			date TEXT NOT NULL,
			close REAL NOT NULL,
			open REAL, high REAL, low REAL, volume INTEGER,
			PRIMARY KEY (security_id, date)
		);
	`)
	require.NoError(t, err)
	return db
}

func newTestRepo(t *testing.T) (*Repository, *sql.DB) {
	db := setupTestDB(t)
	return NewRepository(db, zerolog.Nop()), db
}

func TestGetActiveAccounts(t *testing.T) {
	repo, db := newTestRepo(t)
	_, err := db.Exec(`
		INSERT INTO accounts (id, name, currency, active) VALUES
		('acct-1', 'Main', 'USD', 1),
		('acct-2', 'Closed', 'USD', 0)
	`)
	require.NoError(t, err)

	accounts, err := repo.GetActiveAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acct-1", accounts[0].ID)
	assert.True(t, accounts[0].Active)
}

func TestGetHoldingsFiltersByDate(t *testing.T) {
	repo, db := newTestRepo(t)
	_, err := db.Exec(`
		INSERT INTO holdings (account_id, security_id, quantity, market_value, as_of_date) VALUES
		('acct-1', 'AAPL', '10', '1500.50', '2024-01-15'),
		('acct-1', 'AAPL', '20', NULL, '2024-06-15'),
		('acct-2', 'MSFT', '5', NULL, '2024-01-15')
	`)
	require.NoError(t, err)

	holdings, err := repo.GetHoldings(context.Background(), "acct-1",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].SecurityID)
	assert.True(t, holdings[0].Quantity.Equal(decimalFromString(t, "10")))
	require.NotNil(t, holdings[0].MarketValue)
	assert.True(t, holdings[0].MarketValue.Equal(decimalFromString(t, "1500.50")))
	assert.Nil(t, holdings[0].CostBasisPerShare)
}

func TestGetTransactionsChronological(t *testing.T) {
	repo, db := newTestRepo(t)
	_, err := db.Exec(`
		INSERT INTO transactions (account_id, security_id, type, quantity, price, amount, trade_date) VALUES
		('acct-1', 'AAPL', 'buy', '10', '10', '100', '2024-02-01'),
		('acct-1', NULL, 'deposit', NULL, NULL, '500', '2024-01-01'),
		('acct-1', NULL, 'deposit', NULL, NULL, '900', '2024-09-01')
	`)
	require.NoError(t, err)

	txns, err := repo.GetTransactions(context.Background(), "acct-1",
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, domain.TransactionDeposit, txns[0].Type)
	assert.Empty(t, txns[0].SecurityID)
	assert.Nil(t, txns[0].Quantity)
	assert.Equal(t, domain.TransactionBuy, txns[1].Type)
	require.NotNil(t, txns[1].Quantity)
}

func TestGetPriceMostRecentAtOrBefore(t *testing.T) {
	repo, db := newTestRepo(t)
	_, err := db.Exec(`
		INSERT INTO daily_prices (security_id, date, close) VALUES
		('AAPL', '2024-01-10', 100),
		('AAPL', '2024-01-12', 105),
		('AAPL', '2024-01-20', 110)
	`)
	require.NoError(t, err)

	// Weekend gap: the 12th is the latest at or before the 14th
	px, ok, err := repo.GetPrice(context.Background(), "AAPL",
		time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 105, px, 1e-9)
}

func TestGetPriceMissing(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, ok, err := repo.GetPrice(context.Background(), "UNKNOWN", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPriceHistoryOrdered(t *testing.T) {
	repo, db := newTestRepo(t)
	_, err := db.Exec(`
		INSERT INTO daily_prices (security_id, date, close) VALUES
		('SPY', '2024-01-03', 102),
		('SPY', '2024-01-01', 100),
		('SPY', '2024-01-02', 101),
		('SPY', '2024-02-01', 110)
	`)
	require.NoError(t, err)

	points, err := repo.GetPriceHistory(context.Background(), "SPY",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 100, points[0].Close, 1e-9)
	assert.InDelta(t, 102, points[2].Close, 1e-9)
}

func TestGetSecurity(t *testing.T) {
	repo, db := newTestRepo(t)
	_, err := db.Exec(`
		INSERT INTO securities (id, symbol, name, asset_class, sector, country, currency)
		VALUES ('sec-1', 'AAPL', 'Apple Inc', 'equity', 'Technology', 'US', 'USD')
	`)
	require.NoError(t, err)

	sec, err := repo.GetSecurity(context.Background(), "sec-1")
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Equal(t, domain.AssetClassEquity, sec.AssetClass)
	assert.Equal(t, "Technology", sec.Sector)

	missing, err := repo.GetSecurity(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetBenchmarkReturns(t *testing.T) {
	repo, db := newTestRepo(t)
	_, err := db.Exec(`
		INSERT INTO securities (id, symbol) VALUES ('sec-spy', 'SPY');
		INSERT INTO daily_prices (security_id, date, close) VALUES
		('sec-spy', '2024-01-01', 100),
		('sec-spy', '2024-01-02', 110),
		('sec-spy', '2024-01-03', 99)
	`)
	require.NoError(t, err)

	points, err := repo.GetBenchmarkReturns(context.Background(), "SPY",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 0.10, points[0].Value, 1e-9)
	assert.InDelta(t, -0.10, points[1].Value, 1e-9)
}

func TestGetBenchmarkReturnsUnknownSymbol(t *testing.T) {
	repo, _ := newTestRepo(t)
	points, err := repo.GetBenchmarkReturns(context.Background(), "NOPE",
		time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	assert.Nil(t, points)
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
