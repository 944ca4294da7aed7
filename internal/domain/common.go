package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// OrderSide represents the direction of an order. Equity orders use the plain
// Buy/Sell sides; option orders use the open/close variants.
type OrderSide string

const (
	Buy         OrderSide = "buy"
	Sell        OrderSide = "sell"
	BuyToOpen   OrderSide = "buy_to_open"
	BuyToClose  OrderSide = "buy_to_close"
	SellToOpen  OrderSide = "sell_to_open"
	SellToClose OrderSide = "sell_to_close"
)

// IsBuy reports whether the side pays cash to increase signed quantity.
func (s OrderSide) IsBuy() bool {
	switch s {
	case Buy, BuyToOpen, BuyToClose:
		return true
	}
	return false
}

// Sign returns +1 for buy sides and -1 for sell sides, the factor applied to
// quantity when computing the signed position delta of a fill.
func (s OrderSide) Sign() int64 {
	if s.IsBuy() {
		return 1
	}
	return -1
}

// IsValid reports whether the side is one of the known constants.
func (s OrderSide) IsValid() bool {
	switch s {
	case Buy, Sell, BuyToOpen, BuyToClose, SellToOpen, SellToClose:
		return true
	}
	return false
}

// OrderCondition is the requested execution condition of an order.
type OrderCondition string

const (
	ConditionMarket       OrderCondition = "market"
	ConditionLimit        OrderCondition = "limit"
	ConditionStop         OrderCondition = "stop"
	ConditionStopLimit    OrderCondition = "stop_limit"
	ConditionTrailingStop OrderCondition = "trailing_stop"
)

// IsConditional reports whether the condition requires a trigger evaluation
// step before the order becomes executable.
func (c OrderCondition) IsConditional() bool {
	switch c {
	case ConditionStop, ConditionStopLimit, ConditionTrailingStop:
		return true
	}
	return false
}

// IsValid reports whether the condition is one of the known constants.
func (c OrderCondition) IsValid() bool {
	switch c {
	case ConditionMarket, ConditionLimit, ConditionStop, ConditionStopLimit, ConditionTrailingStop:
		return true
	}
	return false
}

// OrderStatus is the authoritative lifecycle field of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusTriggered OrderStatus = "triggered"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
	StatusFailed    OrderStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// IsOpen reports whether the order may still fill or be cancelled.
func (s OrderStatus) IsOpen() bool {
	return s == StatusPending || s == StatusTriggered
}

// AssetKind distinguishes equities from option contracts.
type AssetKind string

const (
	AssetEquity AssetKind = "equity"
	AssetOption AssetKind = "option"
)

// Multiplier returns the contract multiplier applied to cash and P&L effects:
// 100 for standard option contracts, 1 for equities.
func (k AssetKind) Multiplier() int64 {
	if k == AssetOption {
		return 100
	}
	return 1
}

// OptionKind is the option right: call or put.
type OptionKind string

const (
	Call OptionKind = "call"
	Put  OptionKind = "put"
)

// ID constructors. Prefixes keep entity identifiers distinguishable in logs
// and in the database; the prefix is cosmetic, not semantic.
func NewAccountID() string     { return newID("acct") }
func NewOrderID() string       { return newID("ord") }
func NewMultiLegID() string    { return newID("mlo") }
func NewLegID() string         { return newID("leg") }
func NewTransactionID() string { return newID("txn") }

func newID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
