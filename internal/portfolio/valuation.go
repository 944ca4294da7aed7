// Package portfolio values account holdings against current quotes and
// aggregates option risk exposure. It is read-only: nothing here mutates
// accounts, positions or orders.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
	"paperbroker/internal/pricing"
)

// Config holds the valuation parameters.
type Config struct {
	// RiskFreeRate is the annualized rate fed into the pricing model when an
	// option quote carries no better information.
	RiskFreeRate float64
	// QuoteTimeout bounds each per-symbol quote fetch.
	QuoteTimeout time.Duration
}

// Valuer computes portfolio values and Greeks for one store/quote pair.
type Valuer struct {
	store  ports.Store
	quotes ports.QuoteSource
	logger ports.Logger
	cfg    Config
	now    func() time.Time
}

// New creates a portfolio valuer.
func New(store ports.Store, quotes ports.QuoteSource, logger ports.Logger, cfg Config) (*Valuer, error) {
	if store == nil || quotes == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for portfolio valuer")
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 5 * time.Second
	}
	return &Valuer{store: store, quotes: quotes, logger: logger, cfg: cfg, now: time.Now}, nil
}

// PositionValue is one position marked to the current quote. When the quote
// is unavailable the market fields are zero and Unavailable carries the
// reason; the position still appears in the report.
type PositionValue struct {
	Symbol        string
	Kind          domain.AssetKind
	Quantity      int64
	AvgCost       decimal.Decimal
	MarketPrice   decimal.Decimal
	MarketValue   decimal.Decimal
	CostBasis     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Unavailable   string
}

// Valuation is the full account snapshot: cash, per-position values and the
// stock/option subtotals. Positions that could not be priced are excluded
// from the subtotals and the total.
type Valuation struct {
	AccountID   string
	AsOf        time.Time
	Cash        decimal.Decimal
	Positions   []PositionValue
	StockValue  decimal.Decimal
	OptionValue decimal.Decimal
	TotalEquity decimal.Decimal
}

// Value marks every position of the account to current quotes. A quote
// failure for one symbol never aborts the whole valuation.
func (v *Valuer) Value(ctx context.Context, accountID string) (*Valuation, error) {
	acct, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrNotFound)
	}
	positions, err := v.store.ListPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	val := &Valuation{
		AccountID: accountID,
		AsOf:      v.now().UTC(),
		Cash:      acct.Cash,
	}
	for _, pos := range positions {
		pv := PositionValue{
			Symbol:    pos.Symbol,
			Kind:      pos.Kind,
			Quantity:  pos.Quantity,
			AvgCost:   pos.AvgCost,
			CostBasis: pos.CostBasis(),
		}
		price, err := v.fetchPrice(ctx, pos)
		if err != nil {
			pv.Unavailable = err.Error()
			v.logger.Warn(ctx, "Position left unpriced in valuation", map[string]interface{}{
				"accountID": accountID, "symbol": pos.Symbol, "reason": err.Error(),
			})
			val.Positions = append(val.Positions, pv)
			continue
		}

		pv.MarketPrice = price
		pv.MarketValue = price.Mul(decimal.NewFromInt(pos.Quantity * pos.Kind.Multiplier()))
		pv.UnrealizedPnL = pv.MarketValue.Sub(pv.CostBasis)
		val.Positions = append(val.Positions, pv)

		if pos.Kind == domain.AssetOption {
			val.OptionValue = val.OptionValue.Add(pv.MarketValue)
		} else {
			val.StockValue = val.StockValue.Add(pv.MarketValue)
		}
	}
	val.TotalEquity = val.Cash.Add(val.StockValue).Add(val.OptionValue)
	return val, nil
}

// PositionGreeks is one option position's Greeks scaled by its signed
// quantity and the contract multiplier.
type PositionGreeks struct {
	Symbol          string
	Quantity        int64
	UnderlyingPrice decimal.Decimal
	ImpliedVol      float64
	TheoPrice       float64
	Delta           float64
	Gamma           float64
	Theta           float64
	Vega            float64
	Rho             float64
	Unavailable     string
}

// GreeksReport aggregates the account's option exposure. The totals sum the
// position-scaled Greeks; the Dollar fields normalize each total by the
// respective underlying price over 1000, a rough notional weighting for
// mixed-underlying books.
type GreeksReport struct {
	AccountID   string
	AsOf        time.Time
	Positions   []PositionGreeks
	TotalDelta  float64
	TotalGamma  float64
	TotalTheta  float64
	TotalVega   float64
	TotalRho    float64
	DollarDelta float64
	DollarTheta float64
}

// PortfolioGreeks computes every option position's Greeks and sums them.
// Contracts without quote data are listed with the reason and excluded from
// the totals.
func (v *Valuer) PortfolioGreeks(ctx context.Context, accountID string) (*GreeksReport, error) {
	acct, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrNotFound)
	}
	positions, err := v.store.ListPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	report := &GreeksReport{AccountID: accountID, AsOf: v.now().UTC()}
	for _, pos := range positions {
		if pos.Kind != domain.AssetOption {
			continue
		}
		pg := v.positionGreeks(ctx, pos, report.AsOf)
		report.Positions = append(report.Positions, pg)
		if pg.Unavailable != "" {
			continue
		}
		report.TotalDelta += pg.Delta
		report.TotalGamma += pg.Gamma
		report.TotalTheta += pg.Theta
		report.TotalVega += pg.Vega
		report.TotalRho += pg.Rho

		underlying, _ := pg.UnderlyingPrice.Float64()
		report.DollarDelta += pg.Delta * underlying / 1000
		report.DollarTheta += pg.Theta * underlying / 1000
	}
	return report, nil
}

// PositionGreeksFor computes the Greeks of a single held option position.
func (v *Valuer) PositionGreeksFor(ctx context.Context, accountID, symbol string) (*PositionGreeks, error) {
	pos, err := v.store.GetPosition(ctx, accountID, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("position %s/%s: %w", accountID, symbol, ports.ErrNotFound)
	}
	if pos.Kind != domain.AssetOption {
		return nil, fmt.Errorf("position %s is not an option: %w", symbol, ports.ErrValidation)
	}
	pg := v.positionGreeks(ctx, pos, v.now().UTC())
	if pg.Unavailable != "" {
		return &pg, fmt.Errorf("greeks for %s: %s: %w", symbol, pg.Unavailable, ports.ErrQuoteUnavailable)
	}
	return &pg, nil
}

// positionGreeks prices one option position off its live option quote. The
// quote supplies implied volatility and the concurrent underlying price; the
// configured risk-free rate fills the remaining model input.
func (v *Valuer) positionGreeks(ctx context.Context, pos *domain.Position, asOf time.Time) PositionGreeks {
	pg := PositionGreeks{Symbol: pos.Symbol, Quantity: pos.Quantity}

	qctx, cancel := context.WithTimeout(ctx, v.cfg.QuoteTimeout)
	defer cancel()
	q, err := v.quotes.GetOptionQuote(qctx, pos.Symbol)
	if err != nil {
		pg.Unavailable = err.Error()
		return pg
	}

	spot, _ := q.UnderlyingPrice.Float64()
	strike, _ := pos.Strike.Float64()
	years := pos.Expiration.Sub(asOf).Hours() / 24 / 365

	price, g := pricing.Compute(pricing.Inputs{
		Kind:         pos.OptionKind,
		Spot:         spot,
		Strike:       strike,
		TimeToExpiry: years,
		Volatility:   q.ImpliedVol,
		Rate:         v.cfg.RiskFreeRate,
	})

	scale := float64(pos.Quantity * domain.AssetOption.Multiplier())
	pg.UnderlyingPrice = q.UnderlyingPrice
	pg.ImpliedVol = q.ImpliedVol
	pg.TheoPrice = price
	pg.Delta = g.Delta * scale
	pg.Gamma = g.Gamma * scale
	pg.Theta = g.Theta * scale
	pg.Vega = g.Vega * scale
	pg.Rho = g.Rho * scale
	return pg
}

// fetchPrice returns the current mark for one position, option or equity.
func (v *Valuer) fetchPrice(ctx context.Context, pos *domain.Position) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.QuoteTimeout)
	defer cancel()

	if pos.Kind == domain.AssetOption {
		q, err := v.quotes.GetOptionQuote(ctx, pos.Symbol)
		if err != nil {
			return decimal.Zero, err
		}
		return q.Price, nil
	}
	q, err := v.quotes.GetQuote(ctx, pos.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}
