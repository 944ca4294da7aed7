package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// Chain composes quote sources in priority order: the first source that
// answers wins, ErrQuoteUnavailable falls through to the next one, and any
// other error stops the chain. The order is fixed at construction from
// configuration, never branched on inside the engine.
type Chain struct {
	sources []ports.QuoteSource
	logger  ports.Logger
}

// NewChain builds a fallback chain from the given sources.
func NewChain(logger ports.Logger, sources ...ports.QuoteSource) (*Chain, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for quote chain")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("quote chain needs at least one source")
	}
	return &Chain{sources: sources, logger: logger}, nil
}

// Name returns "chain".
func (c *Chain) Name() string { return "chain" }

// GetQuote asks each source in order until one answers.
func (c *Chain) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	for _, src := range c.sources {
		q, err := src.GetQuote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		if errors.Is(err, ports.ErrQuoteUnavailable) {
			c.logger.Debug(ctx, "Quote source fell through", map[string]interface{}{"source": src.Name(), "symbol": symbol})
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("no source could quote %s: %w", symbol, ports.ErrQuoteUnavailable)
}

// GetOptionQuote asks each source in order until one answers.
func (c *Chain) GetOptionQuote(ctx context.Context, contractID string) (*domain.OptionQuote, error) {
	for _, src := range c.sources {
		q, err := src.GetOptionQuote(ctx, contractID)
		if err == nil {
			return q, nil
		}
		if errors.Is(err, ports.ErrQuoteUnavailable) {
			c.logger.Debug(ctx, "Quote source fell through", map[string]interface{}{"source": src.Name(), "contract": contractID})
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("no source could quote %s: %w", contractID, ports.ErrQuoteUnavailable)
}

func nowUTC() time.Time { return time.Now().UTC() }
