package quotes

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/pricing"
)

// SyntheticSource generates deterministic quotes from the symbol name and
// wall-clock time: a base price derived from a hash of the symbol, modulated
// by a slow sine walk. Option quotes are derived from the synthetic
// underlying via Black-Scholes at a fixed volatility. The source always
// answers, which makes it the natural last element of a fallback chain.
type SyntheticSource struct {
	// Volatility used both to price contracts and as the reported implied
	// volatility. Annualized fraction.
	Volatility float64
	// Rate is the risk-free rate used for contract pricing.
	Rate float64
	// Spread is the half-spread applied around the mid price, as a fraction.
	Spread float64
	// now is swappable for tests.
	now func() time.Time
}

// NewSyntheticSource creates a synthetic source with conventional defaults:
// 30% volatility, 5% rate, 5bp half-spread.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		Volatility: 0.30,
		Rate:       0.05,
		Spread:     0.0005,
		now:        time.Now,
	}
}

// Name returns "synthetic".
func (s *SyntheticSource) Name() string { return "synthetic" }

// GetQuote returns the deterministic synthetic quote for the symbol.
func (s *SyntheticSource) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	now := s.now().UTC()
	price := s.syntheticPrice(symbol, now)
	mid := decimal.NewFromFloat(price).Round(2)
	half := mid.Mul(decimal.NewFromFloat(s.Spread))
	return &domain.Quote{
		Symbol:    symbol,
		Price:     mid,
		Bid:       mid.Sub(half).Round(2),
		Ask:       mid.Add(half).Round(2),
		Timestamp: now,
	}, nil
}

// GetOptionQuote prices the contract off the synthetic underlying with
// Black-Scholes at the configured volatility.
func (s *SyntheticSource) GetOptionQuote(ctx context.Context, contractID string) (*domain.OptionQuote, error) {
	contract, err := domain.ParseOptionSymbol(contractID)
	if err != nil {
		return nil, err
	}

	underlying, err := s.GetQuote(ctx, contract.Underlying)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tte := contract.Expiration.Sub(now).Hours() / 24 / 365
	spot, _ := underlying.Price.Float64()
	strike, _ := contract.Strike.Float64()
	theo := pricing.Price(pricing.Inputs{
		Kind:         contract.Kind,
		Spot:         spot,
		Strike:       strike,
		TimeToExpiry: tte,
		Volatility:   s.Volatility,
		Rate:         s.Rate,
	})

	mid := decimal.NewFromFloat(theo).Round(2)
	half := mid.Mul(decimal.NewFromFloat(s.Spread))
	return &domain.OptionQuote{
		ContractID:      contractID,
		Price:           mid,
		Bid:             mid.Sub(half).Round(2),
		Ask:             mid.Add(half).Round(2),
		ImpliedVol:      s.Volatility,
		UnderlyingPrice: underlying.Price,
		Timestamp:       now,
	}, nil
}

// syntheticPrice maps the symbol hash to a base price in [20, 520) and walks
// it with two slow sine components so prices drift but stay reproducible for
// a given symbol and instant.
func (s *SyntheticSource) syntheticPrice(symbol string, at time.Time) float64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	seed := h.Sum64()

	base := 20 + float64(seed%50000)/100 // 20.00 .. 519.99
	phase := float64(seed % 360)
	t := float64(at.Unix())
	walk := math.Sin(t/3600+phase)*0.01 + math.Sin(t/86400+phase/2)*0.03
	return base * (1 + walk)
}
