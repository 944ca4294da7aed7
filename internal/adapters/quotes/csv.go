package quotes

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// CSVSource serves quotes from a fixture file, one row per symbol:
//
//	symbol,price,bid,ask,implied_vol,underlying_price
//
// Equity rows carry 4 fields, option contract rows all 6; a 6-field row with
// an empty implied_vol is read as an equity. Any other field count is
// rejected. Later rows for the same symbol override earlier ones.
type CSVSource struct {
	quotes  map[string]*domain.Quote
	options map[string]*domain.OptionQuote
}

// NewCSVSource loads the fixture file eagerly and fails on malformed rows.
func NewCSVSource(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open quote fixture %q: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read quote fixture %q: %w", path, err)
	}

	src := &CSVSource{
		quotes:  make(map[string]*domain.Quote),
		options: make(map[string]*domain.OptionQuote),
	}
	now := time.Now().UTC()
	for i, rec := range records {
		if i == 0 && rec[0] == "symbol" {
			continue // header
		}
		if len(rec) != 4 && len(rec) != 6 {
			return nil, fmt.Errorf("fixture %q row %d: expected 4 fields for an equity or 6 for a contract, got %d", path, i+1, len(rec))
		}
		symbol := rec[0]
		price, err := decimal.NewFromString(rec[1])
		if err != nil {
			return nil, fmt.Errorf("fixture %q row %d: invalid price %q: %w", path, i+1, rec[1], err)
		}
		bid, err := decimal.NewFromString(rec[2])
		if err != nil {
			return nil, fmt.Errorf("fixture %q row %d: invalid bid %q: %w", path, i+1, rec[2], err)
		}
		ask, err := decimal.NewFromString(rec[3])
		if err != nil {
			return nil, fmt.Errorf("fixture %q row %d: invalid ask %q: %w", path, i+1, rec[3], err)
		}

		if len(rec) == 6 && rec[4] != "" {
			iv, err := strconv.ParseFloat(rec[4], 64)
			if err != nil {
				return nil, fmt.Errorf("fixture %q row %d: invalid implied_vol %q: %w", path, i+1, rec[4], err)
			}
			underlying, err := decimal.NewFromString(rec[5])
			if err != nil {
				return nil, fmt.Errorf("fixture %q row %d: invalid underlying_price %q: %w", path, i+1, rec[5], err)
			}
			src.options[symbol] = &domain.OptionQuote{
				ContractID:      symbol,
				Price:           price,
				Bid:             bid,
				Ask:             ask,
				ImpliedVol:      iv,
				UnderlyingPrice: underlying,
				Timestamp:       now,
			}
			continue
		}

		src.quotes[symbol] = &domain.Quote{
			Symbol:    symbol,
			Price:     price,
			Bid:       bid,
			Ask:       ask,
			Timestamp: now,
		}
	}
	return src, nil
}

// Name returns "csv".
func (s *CSVSource) Name() string { return "csv" }

// GetQuote returns the fixture quote for the symbol.
func (s *CSVSource) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no fixture quote for %s: %w", symbol, ports.ErrQuoteUnavailable)
	}
	return q, nil
}

// GetOptionQuote returns the fixture option quote for the contract.
func (s *CSVSource) GetOptionQuote(_ context.Context, contractID string) (*domain.OptionQuote, error) {
	q, ok := s.options[contractID]
	if !ok {
		return nil, fmt.Errorf("no fixture option quote for %s: %w", contractID, ports.ErrQuoteUnavailable)
	}
	return q, nil
}
