package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType categorizes ledger entries. The category is an enum on the
// single Transaction type, not a separate type per category.
type TransactionType string

const (
	TransactionBuy         TransactionType = "buy"
	TransactionSell        TransactionType = "sell"
	TransactionDeposit     TransactionType = "deposit"
	TransactionWithdrawal  TransactionType = "withdrawal"
	TransactionDividend    TransactionType = "dividend"
	TransactionInterest    TransactionType = "interest"
	TransactionFee         TransactionType = "fee"
	TransactionTransferIn  TransactionType = "transfer_in"
	TransactionTransferOut TransactionType = "transfer_out"
	TransactionSplit       TransactionType = "split"
	TransactionSpinoff     TransactionType = "spinoff"
)

// Transaction is one row of the append-only ledger. SecurityID is empty for
// pure cash events (deposits, withdrawals, interest); Quantity and Price are
// nil where they do not apply.
type Transaction struct {
	AccountID  string           `json:"account_id"`
	SecurityID string           `json:"security_id,omitempty"`
	Type       TransactionType  `json:"type"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	TradeDate  time.Time        `json:"trade_date"`
	Currency   Currency         `json:"currency"`
}

// IsCashOnly reports whether the transaction affects only the cash balance
func (t Transaction) IsCashOnly() bool {
	switch t.Type {
	case TransactionDeposit, TransactionWithdrawal, TransactionDividend,
		TransactionInterest, TransactionFee, TransactionTransferIn, TransactionTransferOut:
		return true
	}
	return false
}

// CashEffect returns the signed cash impact of the transaction: positive for
// inflows (sells, deposits, dividends), negative for outflows (buys,
// withdrawals, fees). Splits and spinoffs have no cash effect.
func (t Transaction) CashEffect() decimal.Decimal {
	switch t.Type {
	case TransactionBuy, TransactionWithdrawal, TransactionFee, TransactionTransferOut:
		return t.Amount.Neg()
	case TransactionSell, TransactionDeposit, TransactionDividend,
		TransactionInterest, TransactionTransferIn:
		return t.Amount
	}
	return decimal.Zero
}

// PositionEffect returns the signed quantity impact on the transaction's
// security: positive for buys, splits and spinoffs, negative for sells.
// Cash-only transactions return zero.
func (t Transaction) PositionEffect() decimal.Decimal {
	if t.Quantity == nil {
		return decimal.Zero
	}
	switch t.Type {
	case TransactionBuy, TransactionSplit, TransactionSpinoff:
		return *t.Quantity
	case TransactionSell:
		return t.Quantity.Neg()
	}
	return decimal.Zero
}
