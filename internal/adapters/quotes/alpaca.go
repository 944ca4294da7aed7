package quotes

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// AlpacaSource serves live US-equity quotes from the Alpaca market data API.
// Option contracts are not carried by this feed and report unavailable so the
// chain can fall through to a synthetic source.
type AlpacaSource struct {
	client *marketdata.Client
	logger ports.Logger
}

// AlpacaConfig holds configuration for the Alpaca quote source.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	Logger    ports.Logger
}

// NewAlpacaSource creates an Alpaca-backed quote source.
func NewAlpacaSource(cfg AlpacaConfig) (*AlpacaSource, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca quote source")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("API key and secret are required for Alpaca quote source")
	}
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})
	return &AlpacaSource{client: client, logger: cfg.Logger}, nil
}

// Name returns "alpaca".
func (s *AlpacaSource) Name() string { return "alpaca" }

// GetQuote retrieves the latest NBBO quote and trade for an equity symbol.
// The mid of bid/ask is used as the execution price; when the book is empty
// the last trade price stands in.
func (s *AlpacaSource) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	latest, err := s.client.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		s.logger.Warn(ctx, "Alpaca quote fetch failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		return nil, fmt.Errorf("alpaca quote for %s: %w: %w", symbol, ports.ErrQuoteUnavailable, err)
	}
	if latest == nil {
		return nil, fmt.Errorf("no quote data for %s: %w", symbol, ports.ErrQuoteUnavailable)
	}

	bid := decimal.NewFromFloat(latest.BidPrice)
	ask := decimal.NewFromFloat(latest.AskPrice)
	price := bid.Add(ask).Div(decimal.NewFromInt(2))

	if bid.IsZero() || ask.IsZero() {
		trade, err := s.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
		if err != nil || trade == nil {
			return nil, fmt.Errorf("no usable price for %s: %w", symbol, ports.ErrQuoteUnavailable)
		}
		price = decimal.NewFromFloat(trade.Price)
	}

	return &domain.Quote{
		Symbol:    symbol,
		Price:     price,
		Bid:       bid,
		Ask:       ask,
		Timestamp: latest.Timestamp,
	}, nil
}

// GetOptionQuote always reports unavailable on this feed.
func (s *AlpacaSource) GetOptionQuote(_ context.Context, contractID string) (*domain.OptionQuote, error) {
	return nil, fmt.Errorf("alpaca source has no option data for %s: %w", contractID, ports.ErrQuoteUnavailable)
}
