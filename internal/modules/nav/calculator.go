// Package nav reconstructs a single account's Net Asset Value on a date, from
// either holdings snapshots or the transaction ledger. Cash is tracked
// explicitly so that downstream return series are not distorted by deposits
// and withdrawals.
package nav

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portlight/portlight/internal/domain"
)

// PriceLookup resolves a security's close price with
// most-recent-at-or-before-date semantics. A missing price returns (0, false).
type PriceLookup func(securityID string, date time.Time) (float64, bool)

// Point is one dated NAV observation
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// LatestHoldings reduces raw snapshot rows to the effective portfolio at asOf:
// the latest snapshot at or before asOf per security, keeping only positive
// quantities.
func LatestHoldings(holdings []domain.Holding, asOf time.Time) []domain.Holding {
	latest := make(map[string]domain.Holding)
	for _, h := range holdings {
		if h.AsOfDate.After(asOf) {
			continue
		}
		if existing, ok := latest[h.SecurityID]; !ok || h.AsOfDate.After(existing.AsOfDate) {
			latest[h.SecurityID] = h
		}
	}

	result := make([]domain.Holding, 0, len(latest))
	for _, h := range latest {
		if h.Quantity.IsPositive() {
			result = append(result, h)
		}
	}
	// Deterministic order for downstream consumers
	sort.Slice(result, func(i, j int) bool {
		return result[i].SecurityID < result[j].SecurityID
	})
	return result
}

// FromHoldings computes NAV as the sum of quantity x price over the effective
// holdings at asOf. Price resolution order per holding: the price lookup
// (most recent at or before asOf, never a future price), then the snapshot's
// own market value, then cost basis. Holdings with no resolvable value
// contribute nothing.
func FromHoldings(holdings []domain.Holding, prices PriceLookup, asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, h := range LatestHoldings(holdings, asOf) {
		if prices != nil {
			if px, ok := prices(h.SecurityID, asOf); ok {
				total = total.Add(h.Quantity.Mul(decimal.NewFromFloat(px)))
				continue
			}
		}
		if h.MarketValue != nil {
			total = total.Add(*h.MarketValue)
			continue
		}
		if h.CostBasisPerShare != nil {
			total = total.Add(h.Quantity.Mul(*h.CostBasisPerShare))
		}
	}
	return total
}

// FromTransactions replays the ledger chronologically up to asOf, maintaining
// a per-security position map and an explicit cash balance, then values the
// positions at asOf prices. Transactions dated after asOf are excluded; there
// is no lookahead.
//
// NAV = cash + sum(position_i x price_i(asOf))
func FromTransactions(txns []domain.Transaction, prices PriceLookup, asOf time.Time) decimal.Decimal {
	positions := make(map[string]decimal.Decimal)
	cash := decimal.Zero

	for _, t := range txns {
		if t.TradeDate.After(asOf) {
			continue
		}
		cash = cash.Add(t.CashEffect())
		// Cash-only rows (a dividend carries its security id) never move a
		// position.
		if t.IsCashOnly() || t.SecurityID == "" {
			continue
		}
		if effect := t.PositionEffect(); !effect.IsZero() {
			positions[t.SecurityID] = positions[t.SecurityID].Add(effect)
		}
	}

	nav := cash
	for securityID, qty := range positions {
		if qty.IsZero() {
			continue
		}
		if prices != nil {
			if px, ok := prices(securityID, asOf); ok {
				nav = nav.Add(qty.Mul(decimal.NewFromFloat(px)))
			}
		}
	}
	return nav
}

// SeriesFromHoldings builds a dated NAV series by valuing the holdings on each
// date in order. Dates must be ascending.
func SeriesFromHoldings(holdings []domain.Holding, prices PriceLookup, dates []time.Time) []Point {
	series := make([]Point, 0, len(dates))
	for _, d := range dates {
		value, _ := FromHoldings(holdings, prices, d).Float64()
		series = append(series, Point{Date: d, Value: value})
	}
	return series
}

// SeriesFromTransactions builds a dated NAV series by replaying the ledger up
// to each date in order. Dates must be ascending.
func SeriesFromTransactions(txns []domain.Transaction, prices PriceLookup, dates []time.Time) []Point {
	series := make([]Point, 0, len(dates))
	for _, d := range dates {
		value, _ := FromTransactions(txns, prices, d).Float64()
		series = append(series, Point{Date: d, Value: value})
	}
	return series
}

// ChooseSource picks one source of truth per account for NAV reconstruction:
// holdings snapshots when any exist, otherwise the transaction ledger. The
// second return value is false when neither source has data. The choice is
// recorded on every result via the calculation_source tag.
func ChooseSource(holdings []domain.Holding, txns []domain.Transaction) (domain.CalculationSource, bool) {
	switch {
	case len(holdings) > 0:
		return domain.SourceHoldings, true
	case len(txns) > 0:
		return domain.SourceTransactions, true
	default:
		return domain.SourceHoldings, false
	}
}
