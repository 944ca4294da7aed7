package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"paperbroker/internal/domain"
)

// Reference values computed from the closed-form solution at
// S=100, K=100, T=1y, sigma=0.20, r=0.05.
func TestCompute_ReferenceCall(t *testing.T) {
	price, g := Compute(Inputs{
		Kind: domain.Call, Spot: 100, Strike: 100,
		TimeToExpiry: 1, Volatility: 0.20, Rate: 0.05,
	})

	assert.InDelta(t, 10.4506, price, 0.001)
	assert.InDelta(t, 0.6368, g.Delta, 0.001)
	assert.InDelta(t, 0.01876, g.Gamma, 0.0005)
	assert.InDelta(t, -0.01757, g.Theta, 0.0005)
	assert.InDelta(t, 0.3752, g.Vega, 0.001)
	assert.InDelta(t, 0.5323, g.Rho, 0.001)
}

func TestCompute_ReferencePut(t *testing.T) {
	price, g := Compute(Inputs{
		Kind: domain.Put, Spot: 100, Strike: 100,
		TimeToExpiry: 1, Volatility: 0.20, Rate: 0.05,
	})

	assert.InDelta(t, 5.5735, price, 0.001)
	assert.InDelta(t, -0.3632, g.Delta, 0.001)
	assert.InDelta(t, 0.01876, g.Gamma, 0.0005)
	assert.InDelta(t, 0.3752, g.Vega, 0.001)
	assert.InDelta(t, -0.4189, g.Rho, 0.001)
}

func TestCompute_PutCallParity(t *testing.T) {
	inputs := []Inputs{
		{Spot: 100, Strike: 100, TimeToExpiry: 1, Volatility: 0.20, Rate: 0.05},
		{Spot: 190, Strike: 175, TimeToExpiry: 0.25, Volatility: 0.35, Rate: 0.03},
		{Spot: 42, Strike: 60, TimeToExpiry: 2, Volatility: 0.55, Rate: 0.01},
	}
	for _, in := range inputs {
		callIn, putIn := in, in
		callIn.Kind = domain.Call
		putIn.Kind = domain.Put
		call := Price(callIn)
		put := Price(putIn)
		parity := in.Spot - in.Strike*math.Exp(-in.Rate*in.TimeToExpiry)
		assert.InDelta(t, parity, call-put, 1e-9,
			"parity violated at S=%v K=%v T=%v", in.Spot, in.Strike, in.TimeToExpiry)
	}
}

func TestCompute_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		want float64
	}{
		{
			name: "expired in-the-money call values at intrinsic",
			in:   Inputs{Kind: domain.Call, Spot: 110, Strike: 100, TimeToExpiry: 0, Volatility: 0.2, Rate: 0.05},
			want: 10,
		},
		{
			name: "expired out-of-the-money put is worthless",
			in:   Inputs{Kind: domain.Put, Spot: 110, Strike: 100, TimeToExpiry: -0.1, Volatility: 0.2, Rate: 0.05},
			want: 0,
		},
		{
			name: "zero volatility values at intrinsic",
			in:   Inputs{Kind: domain.Put, Spot: 90, Strike: 100, TimeToExpiry: 1, Volatility: 0, Rate: 0.05},
			want: 10,
		},
		{
			name: "zero spot never panics",
			in:   Inputs{Kind: domain.Call, Spot: 0, Strike: 100, TimeToExpiry: 1, Volatility: 0.2, Rate: 0.05},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, g := Compute(tt.in)
			assert.InDelta(t, tt.want, price, 1e-9)
			assert.Zero(t, g.Delta)
			assert.Zero(t, g.Gamma)
			assert.Zero(t, g.Theta)
			assert.Zero(t, g.Vega)
			assert.Zero(t, g.Rho)
		})
	}
}

func TestCompute_DeepInAndOutOfTheMoney(t *testing.T) {
	deepITM, g := Compute(Inputs{
		Kind: domain.Call, Spot: 500, Strike: 100,
		TimeToExpiry: 0.5, Volatility: 0.2, Rate: 0.05,
	})
	assert.InDelta(t, 1.0, g.Delta, 0.001)
	assert.Greater(t, deepITM, 400.0)

	deepOTM, g := Compute(Inputs{
		Kind: domain.Call, Spot: 10, Strike: 100,
		TimeToExpiry: 0.5, Volatility: 0.2, Rate: 0.05,
	})
	assert.InDelta(t, 0.0, g.Delta, 0.001)
	assert.InDelta(t, 0.0, deepOTM, 0.001)
}
