package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one immutable record of an executed trade, the append-only
// ledger from which realized P&L and audit trails are derived. Quantity is
// always positive; Side carries the direction. Never updated after creation.
type Transaction struct {
	ID         string
	AccountID  string
	OrderID    string // originating order or leg, empty for settlements
	Symbol     string
	Kind       AssetKind
	Side       OrderSide
	Quantity   int64
	Price      decimal.Decimal
	ExecutedAt time.Time
}

// CashDelta returns the signed cash effect of the transaction: negative for
// buys, positive for sells, scaled by the contract multiplier.
func (t *Transaction) CashDelta() decimal.Decimal {
	amount := t.Price.Mul(decimal.NewFromInt(t.Quantity * t.Kind.Multiplier()))
	if t.Side.IsBuy() {
		return amount.Neg()
	}
	return amount
}
