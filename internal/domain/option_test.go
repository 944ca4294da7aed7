package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionSymbol(t *testing.T) {
	tests := []struct {
		name           string
		symbol         string
		wantErr        bool
		wantUnderlying string
		wantExpiration string
		wantKind       OptionKind
		wantStrike     string
	}{
		{
			name:           "standard call",
			symbol:         "AAPL261218C00190000",
			wantUnderlying: "AAPL",
			wantExpiration: "2026-12-18",
			wantKind:       Call,
			wantStrike:     "190",
		},
		{
			name:           "put with fractional strike",
			symbol:         "SPY270115P00452500",
			wantUnderlying: "SPY",
			wantExpiration: "2027-01-15",
			wantKind:       Put,
			wantStrike:     "452.5",
		},
		{
			name:           "single-letter underlying",
			symbol:         "F261218C00012000",
			wantUnderlying: "F",
			wantExpiration: "2026-12-18",
			wantKind:       Call,
			wantStrike:     "12",
		},
		{
			name:           "lowercase input is normalized",
			symbol:         "aapl261218c00190000",
			wantUnderlying: "AAPL",
			wantExpiration: "2026-12-18",
			wantKind:       Call,
			wantStrike:     "190",
		},
		{name: "plain equity symbol", symbol: "AAPL", wantErr: true},
		{name: "missing underlying", symbol: "261218C00190000", wantErr: true},
		{name: "bad right letter", symbol: "AAPL261218X00190000", wantErr: true},
		{name: "bad expiration date", symbol: "AAPL269918C00190000", wantErr: true},
		{name: "non-numeric strike", symbol: "AAPL261218C0019000X", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseOptionSymbol(tt.symbol)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnderlying, c.Underlying)
			assert.Equal(t, tt.wantExpiration, c.Expiration.Format("2006-01-02"))
			assert.Equal(t, tt.wantKind, c.Kind)
			assert.True(t, d(tt.wantStrike).Equal(c.Strike),
				"strike: want %s, got %s", tt.wantStrike, c.Strike)
		})
	}
}

func TestOptionContract_SymbolRoundTrip(t *testing.T) {
	c := OptionContract{
		Underlying: "TSLA",
		Expiration: time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
		Kind:       Put,
		Strike:     d("250.50"),
	}
	sym := c.Symbol()
	assert.Equal(t, "TSLA260918P00250500", sym)

	parsed, err := ParseOptionSymbol(sym)
	require.NoError(t, err)
	assert.Equal(t, c.Underlying, parsed.Underlying)
	assert.Equal(t, c.Kind, parsed.Kind)
	assert.True(t, c.Strike.Equal(parsed.Strike))
}

func TestOptionContract_Intrinsic(t *testing.T) {
	call := OptionContract{Kind: Call, Strike: d("190")}
	assert.True(t, d("10").Equal(call.Intrinsic(d("200"))))
	assert.True(t, call.Intrinsic(d("180")).IsZero())

	put := OptionContract{Kind: Put, Strike: d("190")}
	assert.True(t, d("15").Equal(put.Intrinsic(d("175"))))
	assert.True(t, put.Intrinsic(d("195")).IsZero())
}
