package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionContract is the parsed form of a compact OCC-style contract symbol:
// underlying, expiration date (YYMMDD), right (C/P) and strike x1000 padded
// to eight digits, e.g. AAPL261218C00190000.
type OptionContract struct {
	Underlying string
	Expiration time.Time
	Kind       OptionKind
	Strike     decimal.Decimal
}

const occTailLen = 15 // YYMMDD + C/P + 8 strike digits

// ParseOptionSymbol parses a compact OCC-style contract symbol.
func ParseOptionSymbol(symbol string) (OptionContract, error) {
	s := strings.TrimSpace(strings.ToUpper(symbol))
	if len(s) <= occTailLen {
		return OptionContract{}, fmt.Errorf("contract symbol %q too short", symbol)
	}
	underlying := s[:len(s)-occTailLen]
	tail := s[len(s)-occTailLen:]

	exp, err := time.Parse("060102", tail[:6])
	if err != nil {
		return OptionContract{}, fmt.Errorf("contract symbol %q has invalid expiration: %w", symbol, err)
	}

	var kind OptionKind
	switch tail[6] {
	case 'C':
		kind = Call
	case 'P':
		kind = Put
	default:
		return OptionContract{}, fmt.Errorf("contract symbol %q has invalid right %q", symbol, tail[6])
	}

	raw, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return OptionContract{}, fmt.Errorf("contract symbol %q has invalid strike: %w", symbol, err)
	}
	strike := decimal.NewFromInt(raw).Div(decimal.NewFromInt(1000))

	return OptionContract{
		Underlying: underlying,
		Expiration: exp,
		Kind:       kind,
		Strike:     strike,
	}, nil
}

// Symbol renders the contract back into its compact OCC-style form.
func (c OptionContract) Symbol() string {
	right := "C"
	if c.Kind == Put {
		right = "P"
	}
	strike := c.Strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%s%s%s%08d", c.Underlying, c.Expiration.Format("060102"), right, strike)
}

// Intrinsic returns the per-unit intrinsic value of the contract at the given
// underlying price, floored at zero.
func (c OptionContract) Intrinsic(underlying decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	if c.Kind == Call {
		v = underlying.Sub(c.Strike)
	} else {
		v = c.Strike.Sub(underlying)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
