package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time equity price snapshot.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
}

// OptionQuote is a point-in-time option contract snapshot. ImpliedVol is an
// annualized fraction (0.30 = 30%); UnderlyingPrice is the concurrent price
// of the underlying equity.
type OptionQuote struct {
	ContractID      string
	Price           decimal.Decimal
	Bid             decimal.Decimal
	Ask             decimal.Decimal
	ImpliedVol      float64
	UnderlyingPrice decimal.Decimal
	Timestamp       time.Time
}
