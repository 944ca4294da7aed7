package ports

import (
	"context"

	"paperbroker/internal/domain"
)

// QuoteSource supplies current market data for equities and option
// contracts. Implementations signal "no data" with ErrQuoteUnavailable,
// distinct from returning zero or invalid values, so callers can degrade
// gracefully or fall through to the next source in a chain.
type QuoteSource interface {
	// Name returns the source identifier (e.g. "binance", "synthetic").
	Name() string

	// GetQuote retrieves the current price snapshot for an equity symbol.
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)

	// GetOptionQuote retrieves the current snapshot for an option contract,
	// including implied volatility and the concurrent underlying price.
	GetOptionQuote(ctx context.Context, contractID string) (*domain.OptionQuote, error)
}

// QuoteHistory is the persisted-quote lookup used by the database-backed
// scenario source: the latest stored row for a symbol wins.
type QuoteHistory interface {
	LatestQuote(ctx context.Context, symbol string) (*domain.Quote, error)
	LatestOptionQuote(ctx context.Context, contractID string) (*domain.OptionQuote, error)
}
