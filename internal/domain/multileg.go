package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MultiLegOrder groups 2+ legs that must fill together or not at all.
// NetPrice is signed: positive for a net debit (the account pays), negative
// for a net credit (the account receives). Strategy is a derived display
// label and never gates execution.
type MultiLegOrder struct {
	ID         string
	AccountID  string
	Underlying string
	OrderType  OrderCondition // ConditionMarket or ConditionLimit
	NetPrice   decimal.Decimal
	Status     OrderStatus
	Strategy   StrategyLabel

	CreatedAt time.Time
	FilledAt  *time.Time
	UpdatedAt time.Time
}

// OrderLeg is one single-instrument component of a MultiLegOrder. Legs track
// their own filled quantity/price for audit but only transition as a group
// with the parent order.
type OrderLeg struct {
	ID         string
	MultiLegID string
	Symbol     string
	Kind       AssetKind
	Side       OrderSide
	Quantity   int64
	Price      decimal.Decimal // declared per-unit leg price

	FilledQuantity int64
	FilledPrice    *decimal.Decimal
	Status         OrderStatus

	// Option contract details, zero-valued for equity legs.
	Underlying string
	Strike     decimal.Decimal
	Expiration time.Time
	OptionKind OptionKind
}

// SignedQuantity returns the position delta this leg produces when filled.
func (l *OrderLeg) SignedQuantity() int64 {
	return l.Side.Sign() * l.Quantity
}

// NetPrice computes the signed per-spread net price of a set of legs from
// per-unit leg prices: debit legs add, credit legs subtract. Leg quantities
// are treated as a ratio and normalized by the smallest leg quantity, so a
// 10x scaled vertical quotes the same net as a 1x one.
func NetPrice(legs []*OrderLeg, priceOf func(*OrderLeg) decimal.Decimal) decimal.Decimal {
	if len(legs) == 0 {
		return decimal.Zero
	}
	unit := legs[0].Quantity
	for _, l := range legs[1:] {
		if l.Quantity < unit {
			unit = l.Quantity
		}
	}
	if unit <= 0 {
		unit = 1
	}
	net := decimal.Zero
	for _, l := range legs {
		signed := priceOf(l).Mul(decimal.NewFromInt(l.Side.Sign() * l.Quantity))
		net = net.Add(signed)
	}
	return net.Div(decimal.NewFromInt(unit))
}

// DeclaredNetPrice computes the net price from the declared per-leg prices.
func DeclaredNetPrice(legs []*OrderLeg) decimal.Decimal {
	return NetPrice(legs, func(l *OrderLeg) decimal.Decimal { return l.Price })
}

// StrategyLabel names the recognized multi-leg strategy shapes. The label is
// derived from leg composition purely for display and reporting.
type StrategyLabel string

const (
	StrategyVertical    StrategyLabel = "vertical_spread"
	StrategyStraddle    StrategyLabel = "straddle"
	StrategyStrangle    StrategyLabel = "strangle"
	StrategyCalendar    StrategyLabel = "calendar_spread"
	StrategyIronCondor  StrategyLabel = "iron_condor"
	StrategyButterfly   StrategyLabel = "butterfly"
	StrategyCoveredCall StrategyLabel = "covered_call"
	StrategyCustom      StrategyLabel = "custom"
)

// ClassifyStrategy derives a display label from leg composition: counts,
// kinds, sides and strikes.
func ClassifyStrategy(legs []*OrderLeg) StrategyLabel {
	options := make([]*OrderLeg, 0, len(legs))
	equities := 0
	for _, l := range legs {
		if l.Kind == AssetOption {
			options = append(options, l)
		} else {
			equities++
		}
	}

	switch {
	case len(legs) == 2 && equities == 1 && len(options) == 1:
		o := options[0]
		if o.OptionKind == Call && !o.Side.IsBuy() {
			return StrategyCoveredCall
		}
		return StrategyCustom
	case equities > 0:
		return StrategyCustom
	}

	switch len(options) {
	case 2:
		a, b := options[0], options[1]
		sameExpiry := a.Expiration.Equal(b.Expiration)
		sameStrike := a.Strike.Equal(b.Strike)
		sameKind := a.OptionKind == b.OptionKind
		switch {
		case sameKind && sameExpiry && !sameStrike:
			return StrategyVertical
		case sameKind && sameStrike && !sameExpiry:
			return StrategyCalendar
		case !sameKind && sameExpiry && sameStrike:
			return StrategyStraddle
		case !sameKind && sameExpiry && !sameStrike:
			return StrategyStrangle
		}
	case 3:
		if allSameKind(options) && distinctStrikes(options) == 3 {
			return StrategyButterfly
		}
	case 4:
		calls, puts := 0, 0
		for _, o := range options {
			if o.OptionKind == Call {
				calls++
			} else {
				puts++
			}
		}
		if calls == 2 && puts == 2 && distinctStrikes(options) == 4 {
			return StrategyIronCondor
		}
	}
	return StrategyCustom
}

func allSameKind(legs []*OrderLeg) bool {
	for _, l := range legs[1:] {
		if l.OptionKind != legs[0].OptionKind {
			return false
		}
	}
	return true
}

func distinctStrikes(legs []*OrderLeg) int {
	seen := make(map[string]struct{}, len(legs))
	for _, l := range legs {
		seen[l.Strike.String()] = struct{}{}
	}
	return len(seen)
}
