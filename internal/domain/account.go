package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the owner identity and the single live cash balance. The
// balance is signed: it may go negative when margin simulation is enabled.
// All balance mutations happen inside the same storage transaction as the
// order or transaction that caused them.
type Account struct {
	ID        string
	Owner     string
	Cash      decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
