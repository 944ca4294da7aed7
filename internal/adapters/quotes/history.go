package quotes

import (
	"context"
	"fmt"
	"time"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// HistorySource serves quotes recorded in the database, for replaying
// historical or hand-built test scenarios. The latest stored row for a symbol
// wins; symbols with no rows report unavailable.
type HistorySource struct {
	history ports.QuoteHistory
	logger  ports.Logger

	// MaxAge, when positive, rejects rows older than now-MaxAge.
	MaxAge time.Duration
}

// NewHistorySource creates a database-backed scenario quote source.
func NewHistorySource(history ports.QuoteHistory, logger ports.Logger) (*HistorySource, error) {
	if history == nil || logger == nil {
		return nil, fmt.Errorf("history and logger are required for history quote source")
	}
	return &HistorySource{history: history, logger: logger}, nil
}

// Name returns "history".
func (s *HistorySource) Name() string { return "history" }

// GetQuote returns the most recent stored quote for the symbol.
func (s *HistorySource) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	q, err := s.history.LatestQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if q == nil || s.stale(q.Timestamp) {
		return nil, fmt.Errorf("no recorded quote for %s: %w", symbol, ports.ErrQuoteUnavailable)
	}
	return q, nil
}

// GetOptionQuote returns the most recent stored option quote for the contract.
func (s *HistorySource) GetOptionQuote(ctx context.Context, contractID string) (*domain.OptionQuote, error) {
	q, err := s.history.LatestOptionQuote(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if q == nil || s.stale(q.Timestamp) {
		return nil, fmt.Errorf("no recorded option quote for %s: %w", contractID, ports.ErrQuoteUnavailable)
	}
	return q, nil
}

func (s *HistorySource) stale(ts time.Time) bool {
	return s.MaxAge > 0 && time.Since(ts) > s.MaxAge
}
