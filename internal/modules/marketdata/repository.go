// Package marketdata implements the data source interfaces over market.db.
// All reads are most-recent-at-or-before where dated; the engine never
// writes to this database.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/portlight/portlight/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository reads accounts, holdings, transactions, securities and prices
// from market.db. It satisfies every source interface the analytics service
// depends on.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "marketdata").Logger(),
	}
}

// GetActiveAccounts returns all accounts flagged active.
func (r *Repository) GetActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, currency, active
		FROM accounts
		WHERE active = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Currency, &a.Active); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetHoldings returns all holding snapshots for the account dated at or
// before asOf.
func (r *Repository) GetHoldings(ctx context.Context, accountID string, asOf time.Time) ([]domain.Holding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, security_id, quantity, cost_basis_per_share,
		       market_value, currency, as_of_date
		FROM holdings
		WHERE account_id = ? AND as_of_date <= ?
		ORDER BY as_of_date, security_id
	`, accountID, asOf.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetTransactions returns the account's ledger up to and including end, in
// chronological order.
func (r *Repository) GetTransactions(ctx context.Context, accountID string, end time.Time) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, security_id, type, quantity, price, amount,
		       trade_date, currency
		FROM transactions
		WHERE account_id = ? AND trade_date <= ?
		ORDER BY trade_date, id
	`, accountID, end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// GetPrice returns the latest close at or before date. A missing price is
// (0, false, nil), not an error.
func (r *Repository) GetPrice(ctx context.Context, securityID string, date time.Time) (float64, bool, error) {
	var close float64
	err := r.db.QueryRowContext(ctx, `
		SELECT close FROM daily_prices
		WHERE security_id = ? AND date <= ?
		ORDER BY date DESC
		LIMIT 1
	`, securityID, date.Format(dateLayout)).Scan(&close)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query price: %w", err)
	}
	return close, true, nil
}

// GetPriceHistory returns the date-ordered close series within [start, end].
func (r *Repository) GetPriceHistory(ctx context.Context, securityID string, start, end time.Time) ([]domain.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, close FROM daily_prices
		WHERE security_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, securityID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var dateStr string
		var p domain.PricePoint
		if err := rows.Scan(&dateStr, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid price date %q: %w", dateStr, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetTradingDays returns the distinct dates with any price observation in
// [start, end], ascending.
func (r *Repository) GetTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT date FROM daily_prices
		WHERE date >= ? AND date <= ?
		ORDER BY date
	`, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query trading days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan trading day: %w", err)
		}
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("invalid trading day %q: %w", s, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// GetSecurity returns the reference metadata for a security, or nil when it
// is unknown.
func (r *Repository) GetSecurity(ctx context.Context, securityID string) (*domain.SecurityInfo, error) {
	var s domain.SecurityInfo
	err := r.db.QueryRowContext(ctx, `
		SELECT id, symbol, name, asset_class, sector, country, currency
		FROM securities
		WHERE id = ?
	`, securityID).Scan(&s.SecurityID, &s.Symbol, &s.Name, &s.AssetClass, &s.Sector, &s.Country, &s.Currency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query security: %w", err)
	}
	return &s, nil
}

// GetBenchmarkReturns derives the benchmark's daily returns from its price
// history. The benchmark is looked up by symbol among the securities table.
func (r *Repository) GetBenchmarkReturns(ctx context.Context, symbol string, start, end time.Time) ([]domain.ReturnPoint, error) {
	var securityID string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM securities WHERE symbol = ? LIMIT 1`, symbol).Scan(&securityID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve benchmark %q: %w", symbol, err)
	}

	// Widen the window so the first in-range return has a previous close.
	history, err := r.GetPriceHistory(ctx, securityID, start.AddDate(0, 0, -7), end)
	if err != nil {
		return nil, err
	}
	if len(history) < 2 {
		return nil, nil
	}

	var points []domain.ReturnPoint
	for i := 1; i < len(history); i++ {
		if history[i].Date.Before(start) || history[i-1].Close <= 0 {
			continue
		}
		points = append(points, domain.ReturnPoint{
			Date:  history[i].Date,
			Value: history[i].Close/history[i-1].Close - 1,
		})
	}
	return points, nil
}

func scanHolding(rows *sql.Rows) (domain.Holding, error) {
	var h domain.Holding
	var quantity, asOf string
	var costBasis, marketValue sql.NullString
	if err := rows.Scan(&h.AccountID, &h.SecurityID, &quantity, &costBasis,
		&marketValue, &h.Currency, &asOf); err != nil {
		return h, err
	}

	var err error
	h.Quantity, err = decimal.NewFromString(quantity)
	if err != nil {
		return h, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if h.CostBasisPerShare, err = nullDecimal(costBasis); err != nil {
		return h, err
	}
	if h.MarketValue, err = nullDecimal(marketValue); err != nil {
		return h, err
	}
	if h.AsOfDate, err = time.Parse(dateLayout, asOf); err != nil {
		return h, fmt.Errorf("invalid as_of_date %q: %w", asOf, err)
	}
	return h, nil
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var t domain.Transaction
	var securityID sql.NullString
	var quantity, price sql.NullString
	var amount, tradeDate string
	if err := rows.Scan(&t.AccountID, &securityID, &t.Type, &quantity, &price,
		&amount, &tradeDate, &t.Currency); err != nil {
		return t, err
	}

	t.SecurityID = securityID.String
	var err error
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return t, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if t.Quantity, err = nullDecimal(quantity); err != nil {
		return t, err
	}
	if t.Price, err = nullDecimal(price); err != nil {
		return t, err
	}
	if t.TradeDate, err = time.Parse(dateLayout, tradeDate); err != nil {
		return t, fmt.Errorf("invalid trade_date %q: %w", tradeDate, err)
	}
	return t, nil
}

func nullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", v.String, err)
	}
	return &d, nil
}
