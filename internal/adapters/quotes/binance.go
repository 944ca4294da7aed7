// Package quotes provides the QuoteSource implementations: live vendor
// feeds, the database-backed scenario source, a file-backed fixture source
// and a deterministic synthetic source, composable into an ordered fallback
// chain selected by configuration.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

const (
	binanceBaseURLProduction = "https://api.binance.com"
	binanceBaseURLTestnet    = "https://testnet.binance.vision"
)

// BinanceSource serves live crypto-pair quotes from the Binance spot API.
// It answers only for symbols that look like crypto pairs; everything else,
// including all option contracts, reports quote-unavailable so the chain can
// fall through.
type BinanceSource struct {
	client *binance.Client
	logger ports.Logger
}

// BinanceConfig holds configuration for the Binance quote source.
type BinanceConfig struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// NewBinanceSource creates a Binance-backed quote source. Public price
// endpoints work without credentials.
func NewBinanceSource(cfg BinanceConfig) (*BinanceSource, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance quote source")
	}
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = binanceBaseURLTestnet
	} else {
		client.BaseURL = binanceBaseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance quote source configured", map[string]interface{}{"baseURL": client.BaseURL})
	return &BinanceSource{client: client, logger: cfg.Logger}, nil
}

// Name returns "binance".
func (s *BinanceSource) Name() string { return "binance" }

// GetQuote retrieves the book ticker for a crypto pair symbol.
func (s *BinanceSource) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if !looksLikeCryptoPair(symbol) {
		return nil, fmt.Errorf("symbol %s is not a crypto pair: %w", symbol, ports.ErrQuoteUnavailable)
	}

	tickers, err := s.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, s.classify(ctx, err, symbol)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no ticker data for %s: %w", symbol, ports.ErrQuoteUnavailable)
	}

	bid, err := decimal.NewFromString(tickers[0].BidPrice)
	if err != nil {
		return nil, fmt.Errorf("could not parse bid %q for %s: %w", tickers[0].BidPrice, symbol, err)
	}
	ask, err := decimal.NewFromString(tickers[0].AskPrice)
	if err != nil {
		return nil, fmt.Errorf("could not parse ask %q for %s: %w", tickers[0].AskPrice, symbol, err)
	}

	return &domain.Quote{
		Symbol:    symbol,
		Price:     bid.Add(ask).Div(decimal.NewFromInt(2)),
		Bid:       bid,
		Ask:       ask,
		Timestamp: nowUTC(),
	}, nil
}

// GetOptionQuote always reports unavailable: the spot feed carries no option
// contracts.
func (s *BinanceSource) GetOptionQuote(_ context.Context, contractID string) (*domain.OptionQuote, error) {
	return nil, fmt.Errorf("binance source has no option data for %s: %w", contractID, ports.ErrQuoteUnavailable)
}

func (s *BinanceSource) classify(ctx context.Context, err error, symbol string) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		s.logger.Warn(ctx, "Binance API error", map[string]interface{}{"symbol": symbol, "code": apiErr.Code, "message": apiErr.Message})
		return fmt.Errorf("binance rejected %s (code %d): %w", symbol, apiErr.Code, ports.ErrQuoteUnavailable)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("binance quote for %s: %w: %w", symbol, ports.ErrTimeout, err)
	}
	s.logger.Error(ctx, err, "Binance quote fetch failed", map[string]interface{}{"symbol": symbol})
	return fmt.Errorf("binance quote for %s: %w: %w", symbol, ports.ErrQuoteUnavailable, err)
}

// looksLikeCryptoPair matches the quote-asset suffixes Binance lists against.
func looksLikeCryptoPair(symbol string) bool {
	for _, suffix := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(symbol, suffix) && len(symbol) > len(suffix) {
			return true
		}
	}
	return false
}
