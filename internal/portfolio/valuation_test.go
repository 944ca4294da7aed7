package portfolio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbroker/internal/adapters/sqlite"
	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stubQuotes struct {
	prices map[string]decimal.Decimal
	opts   map[string]*domain.OptionQuote
}

func (s *stubQuotes) Name() string { return "stub" }

func (s *stubQuotes) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return nil, ports.ErrQuoteUnavailable
	}
	return &domain.Quote{Symbol: symbol, Price: p, Timestamp: time.Now().UTC()}, nil
}

func (s *stubQuotes) GetOptionQuote(_ context.Context, contractID string) (*domain.OptionQuote, error) {
	q, ok := s.opts[contractID]
	if !ok {
		return nil, ports.ErrQuoteUnavailable
	}
	return q, nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func setupValuer(t *testing.T) (*Valuer, *sqlite.Store, *stubQuotes, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "paperbroker-portfolio-test-*")
	require.NoError(t, err)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	quotes := &stubQuotes{
		prices: make(map[string]decimal.Decimal),
		opts:   make(map[string]*domain.OptionQuote),
	}
	v, err := New(store, quotes, &mockLogger{}, Config{RiskFreeRate: 0.05})
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return v, store, quotes, cleanup
}

func seedAccount(t *testing.T, store *sqlite.Store, cash string) *domain.Account {
	t.Helper()
	now := time.Now().UTC()
	acct := &domain.Account{
		ID: domain.NewAccountID(), Owner: "tester", Cash: d(cash),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateAccount(context.Background(), acct))
	return acct
}

func seedPosition(t *testing.T, store *sqlite.Store, pos *domain.Position) {
	t.Helper()
	now := time.Now().UTC()
	pos.CreatedAt = now
	pos.UpdatedAt = now
	require.NoError(t, store.UpsertPosition(context.Background(), pos))
}

func TestValue_MixedBook(t *testing.T) {
	v, store, quotes, cleanup := setupValuer(t)
	defer cleanup()
	ctx := context.Background()

	acct := seedAccount(t, store, "5000")
	exp := time.Now().UTC().AddDate(1, 0, 0)
	call := domain.OptionContract{Underlying: "XYZ", Expiration: exp, Kind: domain.Call, Strike: d("100")}

	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: "XYZ", Kind: domain.AssetEquity,
		Quantity: 10, AvgCost: d("95"),
	})
	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: call.Symbol(), Kind: domain.AssetOption,
		Quantity: 2, AvgCost: d("3.00"),
		Underlying: "XYZ", Strike: d("100"), Expiration: exp, OptionKind: domain.Call,
	})

	quotes.prices["XYZ"] = d("110")
	quotes.opts[call.Symbol()] = &domain.OptionQuote{
		ContractID: call.Symbol(), Price: d("12.50"),
		ImpliedVol: 0.3, UnderlyingPrice: d("110"), Timestamp: time.Now().UTC(),
	}

	val, err := v.Value(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, val.Positions, 2)

	assert.True(t, d("5000").Equal(val.Cash))
	assert.True(t, d("1100").Equal(val.StockValue))
	assert.True(t, d("2500").Equal(val.OptionValue), "2 contracts x 12.50 x 100")
	assert.True(t, d("8600").Equal(val.TotalEquity))

	for _, pv := range val.Positions {
		assert.Empty(t, pv.Unavailable)
		switch pv.Symbol {
		case "XYZ":
			assert.True(t, d("150").Equal(pv.UnrealizedPnL), "10 x (110-95)")
		default:
			assert.True(t, d("1900").Equal(pv.UnrealizedPnL), "(12.50-3.00) x 2 x 100")
		}
	}
}

func TestValue_UnquotablePositionIsMarkedNotDropped(t *testing.T) {
	v, store, quotes, cleanup := setupValuer(t)
	defer cleanup()
	ctx := context.Background()

	acct := seedAccount(t, store, "1000")
	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: "XYZ", Kind: domain.AssetEquity,
		Quantity: 10, AvgCost: d("95"),
	})
	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: "GHOST", Kind: domain.AssetEquity,
		Quantity: 5, AvgCost: d("20"),
	})
	quotes.prices["XYZ"] = d("100")

	val, err := v.Value(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, val.Positions, 2)

	var ghost *PositionValue
	for i := range val.Positions {
		if val.Positions[i].Symbol == "GHOST" {
			ghost = &val.Positions[i]
		}
	}
	require.NotNil(t, ghost)
	assert.NotEmpty(t, ghost.Unavailable)
	assert.True(t, ghost.MarketValue.IsZero())

	// Unpriced positions are excluded from the totals.
	assert.True(t, d("1000").Equal(val.StockValue))
	assert.True(t, d("2000").Equal(val.TotalEquity))
}

func TestValue_UnknownAccount(t *testing.T) {
	v, _, _, cleanup := setupValuer(t)
	defer cleanup()

	_, err := v.Value(context.Background(), "acct_missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestPortfolioGreeks(t *testing.T) {
	v, store, quotes, cleanup := setupValuer(t)
	defer cleanup()
	ctx := context.Background()

	acct := seedAccount(t, store, "10000")
	exp := time.Now().UTC().AddDate(1, 0, 0)
	call := domain.OptionContract{Underlying: "XYZ", Expiration: exp, Kind: domain.Call, Strike: d("100")}
	put := domain.OptionContract{Underlying: "XYZ", Expiration: exp, Kind: domain.Put, Strike: d("100")}

	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: "XYZ", Kind: domain.AssetEquity,
		Quantity: 100, AvgCost: d("95"),
	})
	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: call.Symbol(), Kind: domain.AssetOption,
		Quantity: 2, AvgCost: d("3.00"),
		Underlying: "XYZ", Strike: d("100"), Expiration: exp, OptionKind: domain.Call,
	})
	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: put.Symbol(), Kind: domain.AssetOption,
		Quantity: -1, AvgCost: d("2.00"),
		Underlying: "XYZ", Strike: d("100"), Expiration: exp, OptionKind: domain.Put,
	})

	oq := func(id string) *domain.OptionQuote {
		return &domain.OptionQuote{
			ContractID: id, Price: d("8.00"),
			ImpliedVol: 0.25, UnderlyingPrice: d("100"), Timestamp: time.Now().UTC(),
		}
	}
	quotes.opts[call.Symbol()] = oq(call.Symbol())
	quotes.opts[put.Symbol()] = oq(put.Symbol())

	report, err := v.PortfolioGreeks(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, report.Positions, 2, "equity positions carry no Greeks")

	// Long 2 ATM calls: delta roughly +0.6 x 200. Short 1 ATM put: its
	// negative delta times the negative quantity adds positive exposure.
	assert.Greater(t, report.TotalDelta, 100.0)
	assert.Less(t, report.TotalDelta, 200.0)
	// Long gamma from the calls, short gamma from the put: calls dominate.
	assert.Greater(t, report.TotalGamma, 0.0)
	// Long options lose to time decay faster than the short one earns.
	assert.Less(t, report.TotalTheta, 0.0)
	assert.Greater(t, report.TotalVega, 0.0)
	assert.NotZero(t, report.DollarDelta)
}

func TestPortfolioGreeks_UnquotableContractExcludedFromTotals(t *testing.T) {
	v, store, quotes, cleanup := setupValuer(t)
	defer cleanup()
	ctx := context.Background()

	acct := seedAccount(t, store, "10000")
	exp := time.Now().UTC().AddDate(1, 0, 0)
	call := domain.OptionContract{Underlying: "XYZ", Expiration: exp, Kind: domain.Call, Strike: d("100")}
	ghost := domain.OptionContract{Underlying: "GHO", Expiration: exp, Kind: domain.Call, Strike: d("50")}

	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: call.Symbol(), Kind: domain.AssetOption,
		Quantity: 1, AvgCost: d("3.00"),
		Underlying: "XYZ", Strike: d("100"), Expiration: exp, OptionKind: domain.Call,
	})
	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: ghost.Symbol(), Kind: domain.AssetOption,
		Quantity: 1, AvgCost: d("1.00"),
		Underlying: "GHO", Strike: d("50"), Expiration: exp, OptionKind: domain.Call,
	})
	quotes.opts[call.Symbol()] = &domain.OptionQuote{
		ContractID: call.Symbol(), Price: d("8.00"),
		ImpliedVol: 0.25, UnderlyingPrice: d("100"), Timestamp: time.Now().UTC(),
	}

	report, err := v.PortfolioGreeks(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, report.Positions, 2)

	var unavailable int
	for _, pg := range report.Positions {
		if pg.Unavailable != "" {
			unavailable++
			assert.Zero(t, pg.Delta)
		}
	}
	assert.Equal(t, 1, unavailable)
	assert.Greater(t, report.TotalDelta, 0.0)
	assert.Less(t, report.TotalDelta, 100.0, "only the quotable contract contributes")
}

func TestPositionGreeksFor(t *testing.T) {
	v, store, quotes, cleanup := setupValuer(t)
	defer cleanup()
	ctx := context.Background()

	acct := seedAccount(t, store, "10000")
	exp := time.Now().UTC().AddDate(1, 0, 0)
	call := domain.OptionContract{Underlying: "XYZ", Expiration: exp, Kind: domain.Call, Strike: d("100")}

	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: call.Symbol(), Kind: domain.AssetOption,
		Quantity: -3, AvgCost: d("4.00"),
		Underlying: "XYZ", Strike: d("100"), Expiration: exp, OptionKind: domain.Call,
	})
	seedPosition(t, store, &domain.Position{
		AccountID: acct.ID, Symbol: "XYZ", Kind: domain.AssetEquity,
		Quantity: 100, AvgCost: d("90"),
	})
	quotes.opts[call.Symbol()] = &domain.OptionQuote{
		ContractID: call.Symbol(), Price: d("10.00"),
		ImpliedVol: 0.3, UnderlyingPrice: d("105"), Timestamp: time.Now().UTC(),
	}

	pg, err := v.PositionGreeksFor(ctx, acct.ID, call.Symbol())
	require.NoError(t, err)
	assert.Equal(t, int64(-3), pg.Quantity)
	assert.Less(t, pg.Delta, 0.0, "short calls carry negative delta")
	assert.Less(t, pg.Gamma, 0.0)
	assert.Greater(t, pg.Theta, 0.0, "short options collect time decay")

	_, err = v.PositionGreeksFor(ctx, acct.ID, "XYZ")
	assert.ErrorIs(t, err, ports.ErrValidation)

	_, err = v.PositionGreeksFor(ctx, acct.ID, "XYZ261218C00200000")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	delete(quotes.opts, call.Symbol())
	_, err = v.PositionGreeksFor(ctx, acct.ID, call.Symbol())
	assert.ErrorIs(t, err, ports.ErrQuoteUnavailable)
}
