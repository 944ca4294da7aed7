package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a single-instrument order. Status is the authoritative lifecycle
// field; price and trigger fields are set according to Condition:
//
//	market        — no price fields
//	limit         — LimitPrice
//	stop          — StopPrice
//	stop_limit    — StopPrice and LimitPrice
//	trailing_stop — exactly one of TrailAmount / TrailPercent
//
// TrailExtreme is the persisted running extreme for trailing-stop orders
// (highest price seen for sells, lowest for buys); it survives restarts so a
// reload never re-triggers or misses a trigger.
type Order struct {
	ID        string
	AccountID string
	Symbol    string
	Kind      AssetKind
	Side      OrderSide
	Quantity  int64
	Condition OrderCondition

	LimitPrice   *decimal.Decimal
	StopPrice    *decimal.Decimal
	TrailAmount  *decimal.Decimal
	TrailPercent *decimal.Decimal
	TrailExtreme *decimal.Decimal

	Status    OrderStatus
	FillPrice *decimal.Decimal

	CreatedAt   time.Time
	TriggeredAt *time.Time
	FilledAt    *time.Time
	UpdatedAt   time.Time
}

// SignedQuantity returns the position delta this order produces when filled.
func (o *Order) SignedQuantity() int64 {
	return o.Side.Sign() * o.Quantity
}

// IsOpen reports whether the order may still fill or be cancelled.
func (o *Order) IsOpen() bool {
	return o.Status.IsOpen()
}
