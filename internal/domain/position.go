package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the unique holding of one account in one symbol. Quantity is
// signed: positive for long, negative for short. AvgCost follows the
// weighted-average rule: recomputed on quantity-increasing fills, untouched
// by decreasing fills. A position whose quantity reaches zero is deleted from
// the store; Transactions remain as the audit trail.
type Position struct {
	AccountID string
	Symbol    string
	Kind      AssetKind
	Quantity  int64
	AvgCost   decimal.Decimal

	// Option contract details, zero-valued for equities.
	Underlying string
	Strike     decimal.Decimal
	Expiration time.Time
	OptionKind OptionKind

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FillEffect is the position state resulting from applying one fill, plus the
// per-unit realized P&L of any closed quantity.
type FillEffect struct {
	Quantity    int64
	AvgCost     decimal.Decimal
	RealizedPnL decimal.Decimal
}

// ApplyFill computes the effect of a signed fill quantity at the given price
// on the position. Increasing fills (same direction as the held quantity)
// recompute the weighted-average cost; decreasing fills keep the average and
// realize P&L on the closed quantity; fills that cross zero close the old
// position entirely and open the remainder at the fill price.
//
// The realized P&L is per-unit-multiplier, i.e. callers scale by the asset
// kind's contract multiplier.
func (p *Position) ApplyFill(qty int64, price decimal.Decimal) FillEffect {
	held := int64(0)
	avg := decimal.Zero
	if p != nil {
		held = p.Quantity
		avg = p.AvgCost
	}

	// Flat position or same-direction fill: weighted average.
	if held == 0 || sameSign(held, qty) {
		total := held + qty
		oldAbs := decimal.NewFromInt(abs(held))
		addAbs := decimal.NewFromInt(abs(qty))
		newAvg := avg.Mul(oldAbs).Add(price.Mul(addAbs)).Div(oldAbs.Add(addAbs))
		return FillEffect{Quantity: total, AvgCost: newAvg}
	}

	closed := min64(abs(held), abs(qty))
	closedDec := decimal.NewFromInt(closed)
	// Long positions realize price-avg on sells, shorts realize avg-price on buys.
	var realized decimal.Decimal
	if held > 0 {
		realized = price.Sub(avg).Mul(closedDec)
	} else {
		realized = avg.Sub(price).Mul(closedDec)
	}

	remaining := held + qty
	if remaining == 0 {
		return FillEffect{Quantity: 0, AvgCost: decimal.Zero, RealizedPnL: realized}
	}
	if sameSign(remaining, held) {
		// Partial decrease: average cost is unchanged.
		return FillEffect{Quantity: remaining, AvgCost: avg, RealizedPnL: realized}
	}
	// Crossed zero: the remainder opens a fresh position at the fill price.
	return FillEffect{Quantity: remaining, AvgCost: price, RealizedPnL: realized}
}

// CostBasis returns quantity x average cost x multiplier, signed like the
// quantity.
func (p *Position) CostBasis() decimal.Decimal {
	return p.AvgCost.Mul(decimal.NewFromInt(p.Quantity * p.Kind.Multiplier()))
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
