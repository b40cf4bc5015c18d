// Package domain provides the canonical data model shared by every module.
// There is exactly one representation of accounts, holdings and transactions;
// variants are expressed as enum fields, not parallel types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// AssetClass categorizes a security for exposure breakdowns
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassETF    AssetClass = "etf"
	AssetClassBond   AssetClass = "bond"
	AssetClassCash   AssetClass = "cash"
	AssetClassOther  AssetClass = "other"
)

// Account represents a portfolio account
type Account struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Currency Currency `json:"currency"`
	Active   bool     `json:"active"`
}

// Holding is an immutable snapshot of one position on one date. A holding is
// superseded by a later row with the same (account, security) and a newer
// as-of date; rows are never mutated in place.
type Holding struct {
	AccountID         string           `json:"account_id"`
	SecurityID        string           `json:"security_id"`
	Quantity          decimal.Decimal  `json:"quantity"`
	CostBasisPerShare *decimal.Decimal `json:"cost_basis_per_share,omitempty"`
	MarketValue       *decimal.Decimal `json:"market_value,omitempty"`
	Currency          Currency         `json:"currency"`
	AsOfDate          time.Time        `json:"as_of_date"`
}

// SecurityInfo holds the reference metadata used for exposure aggregation
type SecurityInfo struct {
	SecurityID string     `json:"security_id"`
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	AssetClass AssetClass `json:"asset_class"`
	Sector     string     `json:"sector"`
	Country    string     `json:"country"`
	Currency   Currency   `json:"currency"`
}

// PricePoint is a single close price observation
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// ReturnPoint is a single periodic return observation
type ReturnPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// CalculationSource tags which data source a NAV was reconstructed from
type CalculationSource string

const (
	SourceHoldings     CalculationSource = "holdings"
	SourceTransactions CalculationSource = "transactions"
)

// CalculationStatus describes the outcome of one analytics record
type CalculationStatus string

const (
	StatusCompleted CalculationStatus = "completed"
	StatusPartial   CalculationStatus = "partial"
	StatusError     CalculationStatus = "error"
)
