package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func optLeg(side OrderSide, qty int64, price string, kind OptionKind, strike string, exp time.Time) *OrderLeg {
	return &OrderLeg{
		ID:         NewLegID(),
		Symbol:     OptionContract{Underlying: "XYZ", Expiration: exp, Kind: kind, Strike: d(strike)}.Symbol(),
		Kind:       AssetOption,
		Side:       side,
		Quantity:   qty,
		Price:      d(price),
		Underlying: "XYZ",
		Strike:     d(strike),
		Expiration: exp,
		OptionKind: kind,
	}
}

func TestNetPrice(t *testing.T) {
	exp := time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC)

	t.Run("debit vertical", func(t *testing.T) {
		legs := []*OrderLeg{
			optLeg(BuyToOpen, 1, "3.50", Call, "100", exp),
			optLeg(SellToOpen, 1, "1.20", Call, "105", exp),
		}
		assert.True(t, d("2.3").Equal(DeclaredNetPrice(legs)))
	})

	t.Run("credit vertical is negative", func(t *testing.T) {
		legs := []*OrderLeg{
			optLeg(SellToOpen, 1, "2.00", Put, "95", exp),
			optLeg(BuyToOpen, 1, "0.80", Put, "90", exp),
		}
		assert.True(t, d("-1.2").Equal(DeclaredNetPrice(legs)))
	})

	t.Run("scaled legs normalize to the smallest quantity", func(t *testing.T) {
		legs := []*OrderLeg{
			optLeg(BuyToOpen, 10, "3.50", Call, "100", exp),
			optLeg(SellToOpen, 10, "1.20", Call, "105", exp),
		}
		assert.True(t, d("2.3").Equal(DeclaredNetPrice(legs)))
	})

	t.Run("ratio spread keeps the ratio", func(t *testing.T) {
		legs := []*OrderLeg{
			optLeg(BuyToOpen, 1, "3.00", Call, "100", exp),
			optLeg(SellToOpen, 2, "1.00", Call, "110", exp),
		}
		assert.True(t, d("1").Equal(DeclaredNetPrice(legs)))
	})

	t.Run("empty legs", func(t *testing.T) {
		assert.True(t, NetPrice(nil, func(*OrderLeg) decimal.Decimal { return decimal.Zero }).IsZero())
	})
}

func TestClassifyStrategy(t *testing.T) {
	exp := time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC)
	later := time.Date(2027, 3, 19, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		legs []*OrderLeg
		want StrategyLabel
	}{
		{
			name: "vertical spread",
			legs: []*OrderLeg{
				optLeg(BuyToOpen, 1, "3.50", Call, "100", exp),
				optLeg(SellToOpen, 1, "1.20", Call, "105", exp),
			},
			want: StrategyVertical,
		},
		{
			name: "calendar spread",
			legs: []*OrderLeg{
				optLeg(SellToOpen, 1, "2.00", Call, "100", exp),
				optLeg(BuyToOpen, 1, "3.10", Call, "100", later),
			},
			want: StrategyCalendar,
		},
		{
			name: "straddle",
			legs: []*OrderLeg{
				optLeg(BuyToOpen, 1, "3.00", Call, "100", exp),
				optLeg(BuyToOpen, 1, "2.80", Put, "100", exp),
			},
			want: StrategyStraddle,
		},
		{
			name: "strangle",
			legs: []*OrderLeg{
				optLeg(BuyToOpen, 1, "1.50", Call, "110", exp),
				optLeg(BuyToOpen, 1, "1.40", Put, "90", exp),
			},
			want: StrategyStrangle,
		},
		{
			name: "butterfly",
			legs: []*OrderLeg{
				optLeg(BuyToOpen, 1, "5.00", Call, "95", exp),
				optLeg(SellToOpen, 2, "3.00", Call, "100", exp),
				optLeg(BuyToOpen, 1, "1.50", Call, "105", exp),
			},
			want: StrategyButterfly,
		},
		{
			name: "iron condor",
			legs: []*OrderLeg{
				optLeg(SellToOpen, 1, "1.00", Put, "90", exp),
				optLeg(BuyToOpen, 1, "0.50", Put, "85", exp),
				optLeg(SellToOpen, 1, "1.10", Call, "110", exp),
				optLeg(BuyToOpen, 1, "0.60", Call, "115", exp),
			},
			want: StrategyIronCondor,
		},
		{
			name: "covered call",
			legs: []*OrderLeg{
				{ID: NewLegID(), Symbol: "XYZ", Kind: AssetEquity, Side: Buy, Quantity: 100, Price: d("100")},
				optLeg(SellToOpen, 1, "2.00", Call, "110", exp),
			},
			want: StrategyCoveredCall,
		},
		{
			name: "two equities is custom",
			legs: []*OrderLeg{
				{ID: NewLegID(), Symbol: "XYZ", Kind: AssetEquity, Side: Buy, Quantity: 10, Price: d("100")},
				{ID: NewLegID(), Symbol: "ABC", Kind: AssetEquity, Side: Sell, Quantity: 10, Price: d("50")},
			},
			want: StrategyCustom,
		},
		{
			name: "three legs with repeated strikes is custom",
			legs: []*OrderLeg{
				optLeg(BuyToOpen, 1, "5.00", Call, "95", exp),
				optLeg(SellToOpen, 1, "3.00", Call, "100", exp),
				optLeg(BuyToOpen, 1, "3.00", Call, "100", exp),
			},
			want: StrategyCustom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStrategy(tt.legs))
		})
	}
}
