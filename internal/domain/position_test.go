package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPosition_ApplyFill(t *testing.T) {
	tests := []struct {
		name         string
		held         int64
		avg          string
		fillQty      int64
		fillPrice    string
		wantQty      int64
		wantAvg      string
		wantRealized string
	}{
		{
			name:      "open long from flat",
			held:      0,
			avg:       "0",
			fillQty:   10,
			fillPrice: "50",
			wantQty:   10,
			wantAvg:   "50",
		},
		{
			name:      "add to long recomputes weighted average",
			held:      10,
			avg:       "50",
			fillQty:   10,
			fillPrice: "60",
			wantQty:   20,
			wantAvg:   "55",
		},
		{
			name:         "partial close keeps average and realizes pnl",
			held:         20,
			avg:          "55",
			fillQty:      -5,
			fillPrice:    "60",
			wantQty:      15,
			wantAvg:      "55",
			wantRealized: "25",
		},
		{
			name:         "full close zeroes the position",
			held:         10,
			avg:          "50",
			fillQty:      -10,
			fillPrice:    "44",
			wantQty:      0,
			wantAvg:      "0",
			wantRealized: "-60",
		},
		{
			name:         "crossing zero opens remainder at fill price",
			held:         10,
			avg:          "50",
			fillQty:      -15,
			fillPrice:    "52",
			wantQty:      -5,
			wantAvg:      "52",
			wantRealized: "20",
		},
		{
			name:      "open short from flat",
			held:      0,
			avg:       "0",
			fillQty:   -4,
			fillPrice: "2.50",
			wantQty:   -4,
			wantAvg:   "2.5",
		},
		{
			name:         "buy back short realizes avg minus price",
			held:         -4,
			avg:          "2.50",
			fillQty:      4,
			fillPrice:    "1.10",
			wantQty:      0,
			wantAvg:      "0",
			wantRealized: "5.6",
		},
		{
			name:      "add to short recomputes weighted average",
			held:      -2,
			avg:       "3",
			fillQty:   -2,
			fillPrice: "5",
			wantQty:   -4,
			wantAvg:   "4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pos *Position
			if tt.held != 0 {
				pos = &Position{Quantity: tt.held, AvgCost: d(tt.avg)}
			}
			effect := pos.ApplyFill(tt.fillQty, d(tt.fillPrice))

			assert.Equal(t, tt.wantQty, effect.Quantity)
			assert.True(t, d(tt.wantAvg).Equal(effect.AvgCost),
				"avg cost: want %s, got %s", tt.wantAvg, effect.AvgCost)
			wantRealized := "0"
			if tt.wantRealized != "" {
				wantRealized = tt.wantRealized
			}
			assert.True(t, d(wantRealized).Equal(effect.RealizedPnL),
				"realized: want %s, got %s", wantRealized, effect.RealizedPnL)
		})
	}
}

func TestPosition_ApplyFillNilReceiver(t *testing.T) {
	var pos *Position
	effect := pos.ApplyFill(3, d("10"))
	assert.Equal(t, int64(3), effect.Quantity)
	assert.True(t, d("10").Equal(effect.AvgCost))
}

func TestPosition_CostBasis(t *testing.T) {
	equity := &Position{Kind: AssetEquity, Quantity: 10, AvgCost: d("50")}
	assert.True(t, d("500").Equal(equity.CostBasis()))

	shortOption := &Position{Kind: AssetOption, Quantity: -2, AvgCost: d("1.20")}
	assert.True(t, d("-240").Equal(shortOption.CostBasis()))
}
