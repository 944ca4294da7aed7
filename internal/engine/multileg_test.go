package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

const (
	shortPut = "XYZ261218P00095000"
	longPut  = "XYZ261218P00090000"
)

func creditSpreadRequest(accountID string) MultiLegRequest {
	return MultiLegRequest{
		AccountID: accountID,
		OrderType: domain.ConditionLimit,
		NetPrice:  d("-1.20"),
		Legs: []LegRequest{
			{Symbol: shortPut, Side: domain.SellToOpen, Quantity: 1, Price: d("2.00")},
			{Symbol: longPut, Side: domain.BuyToOpen, Quantity: 1, Price: d("0.80")},
		},
	}
}

func TestSubmitMultiLeg_CreditBelowRequestedStaysPending(t *testing.T) {
	eng, store, quotes, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	acct := newFundedAccount(t, store, "10000")
	// Live credit is only 1.15, less than the requested 1.20.
	quotes.setOption(shortPut, "1.95", 0.3, "100")
	quotes.setOption(longPut, "0.80", 0.3, "100")

	mlo, legs, err := eng.SubmitMultiLeg(ctx, creditSpreadRequest(acct.ID))
	require.NoError(t, err)
	require.NotNil(t, mlo)
	assert.Equal(t, domain.StatusPending, mlo.Status)
	for _, l := range legs {
		assert.Equal(t, domain.StatusPending, l.Status)
		assert.Zero(t, l.FilledQuantity)
	}

	requireCash(t, store, acct.ID, "10000")
	txns, err := store.ListTransactions(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSubmitMultiLeg_CreditAtOrAboveRequestedFills(t *testing.T) {
	eng, store, quotes, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	acct := newFundedAccount(t, store, "10000")
	// Live credit 1.25 beats the requested 1.20.
	quotes.setOption(shortPut, "2.05", 0.3, "100")
	quotes.setOption(longPut, "0.80", 0.3, "100")

	mlo, legs, err := eng.SubmitMultiLeg(ctx, creditSpreadRequest(acct.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, mlo.Status)
	assert.Equal(t, domain.StrategyVertical, mlo.Strategy)
	require.NotNil(t, mlo.FilledAt)
	for _, l := range legs {
		assert.Equal(t, domain.StatusFilled, l.Status)
		assert.Equal(t, l.Quantity, l.FilledQuantity)
		require.NotNil(t, l.FilledPrice)
	}

	// 2.05 x 100 received, 0.80 x 100 paid.
	requireCash(t, store, acct.ID, "10125")

	short, err := store.GetPosition(ctx, acct.ID, shortPut)
	require.NoError(t, err)
	require.NotNil(t, short)
	assert.Equal(t, int64(-1), short.Quantity)
	assert.Equal(t, domain.Put, short.OptionKind)
	assert.True(t, d("95").Equal(short.Strike))

	long, err := store.GetPosition(ctx, acct.ID, longPut)
	require.NoError(t, err)
	require.NotNil(t, long)
	assert.Equal(t, int64(1), long.Quantity)

	txns, err := store.ListTransactions(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestSubmitMultiLeg_UnavailableLegBlocksWholeOrder(t *testing.T) {
	eng, store, quotes, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	acct := newFundedAccount(t, store, "10000")
	quotes.setOption(shortPut, "2.05", 0.3, "100")
	// longPut has no quote.

	mlo, legs, err := eng.SubmitMultiLeg(ctx, creditSpreadRequest(acct.ID))
	require.NoError(t, err, "quote unavailability is transient, not a caller error")
	require.NotNil(t, mlo)
	assert.Equal(t, domain.StatusPending, mlo.Status)

	var blockedLeg string
	for _, l := range legs {
		assert.Zero(t, l.FilledQuantity, "no leg may fill when any leg is unquotable")
		if l.Symbol == longPut {
			blockedLeg = l.ID
		}
	}

	// A direct execution attempt names the blocking legs.
	err = eng.ExecuteMultiLeg(ctx, mlo.ID)
	var mlErr *MultiLegError
	require.ErrorAs(t, err, &mlErr)
	assert.Equal(t, mlo.ID, mlErr.MultiLegID)
	assert.Equal(t, []string{blockedLeg}, mlErr.LegIDs)
	assert.ErrorIs(t, err, ports.ErrQuoteUnavailable)

	requireCash(t, store, acct.ID, "10000")
	txns, err := store.ListTransactions(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSubmitMultiLeg_BusinessFailureRollsBackAllLegs(t *testing.T) {
	eng, store, quotes, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	// Not enough cash for the debit leg even after the credit leg.
	acct := newFundedAccount(t, store, "10")
	quotes.setOption(shortPut, "0.10", 0.3, "100")
	quotes.setOption(longPut, "5.00", 0.3, "100")

	req := MultiLegRequest{
		AccountID: acct.ID,
		OrderType: domain.ConditionMarket,
		NetPrice:  d("4.90"),
		Legs: []LegRequest{
			{Symbol: shortPut, Side: domain.SellToOpen, Quantity: 1, Price: d("0.10")},
			{Symbol: longPut, Side: domain.BuyToOpen, Quantity: 1, Price: d("5.00")},
		},
	}
	mlo, legs, err := eng.SubmitMultiLeg(ctx, req)
	require.ErrorIs(t, err, ports.ErrInsufficientFunds)
	var mlErr *MultiLegError
	require.ErrorAs(t, err, &mlErr)

	require.NotNil(t, mlo)
	assert.Equal(t, domain.StatusFailed, mlo.Status)
	for _, l := range legs {
		assert.Equal(t, domain.StatusFailed, l.Status)
		assert.Zero(t, l.FilledQuantity)
	}

	// The credit leg that applied first must be rolled back too.
	requireCash(t, store, acct.ID, "10")
	short, err := store.GetPosition(ctx, acct.ID, shortPut)
	require.NoError(t, err)
	assert.Nil(t, short)
	txns, err := store.ListTransactions(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSubmitMultiLeg_DeclaredNetMismatchRejected(t *testing.T) {
	eng, store, _, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	acct := newFundedAccount(t, store, "10000")
	req := creditSpreadRequest(acct.ID)
	req.NetPrice = d("-2.50") // leg prices say -1.20

	_, _, err := eng.SubmitMultiLeg(ctx, req)
	assert.ErrorIs(t, err, ports.ErrValidation)
}

func TestSubmitMultiLeg_Validation(t *testing.T) {
	eng, store, _, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	acct := newFundedAccount(t, store, "10000")

	tests := []struct {
		name string
		req  MultiLegRequest
	}{
		{
			name: "single leg",
			req: MultiLegRequest{
				AccountID: acct.ID, OrderType: domain.ConditionMarket, NetPrice: d("2.00"),
				Legs: []LegRequest{{Symbol: shortPut, Side: domain.BuyToOpen, Quantity: 1, Price: d("2.00")}},
			},
		},
		{
			name: "conditional order type",
			req: MultiLegRequest{
				AccountID: acct.ID, OrderType: domain.ConditionStop, NetPrice: d("-1.20"),
				Legs: creditSpreadRequest(acct.ID).Legs,
			},
		},
		{
			name: "option side on equity leg",
			req: MultiLegRequest{
				AccountID: acct.ID, OrderType: domain.ConditionMarket, NetPrice: d("1.00"),
				Legs: []LegRequest{
					{Symbol: "XYZ", Side: domain.SellToOpen, Quantity: 1, Price: d("2.00")},
					{Symbol: longPut, Side: domain.BuyToOpen, Quantity: 1, Price: d("1.00")},
				},
			},
		},
		{
			name: "unknown account",
			req: MultiLegRequest{
				AccountID: "acct_missing", OrderType: domain.ConditionMarket, NetPrice: d("-1.20"),
				Legs: creditSpreadRequest("acct_missing").Legs,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := eng.SubmitMultiLeg(ctx, tt.req)
			assert.ErrorIs(t, err, ports.ErrValidation)
		})
	}
}

func TestCancelMultiLeg(t *testing.T) {
	eng, store, quotes, cleanup := newTestEngine(t)
	defer cleanup()
	ctx := context.Background()

	acct := newFundedAccount(t, store, "10000")
	quotes.setOption(shortPut, "1.95", 0.3, "100")
	quotes.setOption(longPut, "0.80", 0.3, "100")

	mlo, _, err := eng.SubmitMultiLeg(ctx, creditSpreadRequest(acct.ID))
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, mlo.Status)

	cancelled, err := eng.CancelMultiLeg(ctx, mlo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	_, legs, err := store.GetMultiLegOrder(ctx, mlo.ID)
	require.NoError(t, err)
	for _, l := range legs {
		assert.Equal(t, domain.StatusCancelled, l.Status)
	}

	_, err = eng.CancelMultiLeg(ctx, mlo.ID)
	assert.ErrorIs(t, err, ports.ErrOrderNotOpen)
}
