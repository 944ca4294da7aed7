package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// SettlementOutcome names what happened to an option position at expiration.
type SettlementOutcome string

const (
	OutcomeExercised SettlementOutcome = "exercised"
	OutcomeAssigned  SettlementOutcome = "assigned"
	OutcomeWorthless SettlementOutcome = "expired_worthless"
)

// Settlement is the record of one expired option position being cash-settled.
type Settlement struct {
	AccountID  string
	Symbol     string
	Quantity   int64
	Intrinsic  decimal.Decimal
	CashEffect decimal.Decimal
	Outcome    SettlementOutcome
}

// SkippedSettlement records a position that could not be settled in this
// batch, with the blocking reason.
type SkippedSettlement struct {
	AccountID string
	Symbol    string
	Reason    string
}

// ExpirationReport summarizes one expiration batch.
type ExpirationReport struct {
	AsOf    time.Time
	Settled []Settlement
	Skipped []SkippedSettlement
}

// ExpireOptions settles every option position whose expiration has passed as
// of the given date: in-the-money positions are cash-settled at intrinsic
// value (exercise for longs, assignment for shorts), out-of-the-money
// positions expire worthless. Each account settles in its own atomic unit; a
// position whose underlying cannot be quoted is skipped with a reason and
// the batch continues.
func (e *Engine) ExpireOptions(ctx context.Context, asOf time.Time) (*ExpirationReport, error) {
	positions, err := e.store.ListExpiredOptionPositions(ctx, asOf)
	if err != nil {
		return nil, err
	}

	report := &ExpirationReport{AsOf: asOf}

	// Underlying quotes are fetched before any account lock.
	underlyingPrices := make(map[string]decimal.Decimal)
	byAccount := make(map[string][]*domain.Position)
	accountOrder := make([]string, 0)
	for _, pos := range positions {
		if _, ok := underlyingPrices[pos.Underlying]; !ok {
			price, err := e.fetchPrice(ctx, domain.AssetEquity, pos.Underlying)
			if err != nil {
				report.Skipped = append(report.Skipped, SkippedSettlement{
					AccountID: pos.AccountID, Symbol: pos.Symbol, Reason: err.Error(),
				})
				continue
			}
			underlyingPrices[pos.Underlying] = price
		}
		if _, ok := byAccount[pos.AccountID]; !ok {
			accountOrder = append(accountOrder, pos.AccountID)
		}
		byAccount[pos.AccountID] = append(byAccount[pos.AccountID], pos)
	}

	for _, accountID := range accountOrder {
		settled, err := e.settleAccount(ctx, accountID, byAccount[accountID], underlyingPrices)
		if err != nil {
			e.logger.Error(ctx, err, "Expiration settlement failed for account", map[string]interface{}{"accountID": accountID})
			for _, pos := range byAccount[accountID] {
				report.Skipped = append(report.Skipped, SkippedSettlement{
					AccountID: accountID, Symbol: pos.Symbol, Reason: err.Error(),
				})
			}
			continue
		}
		report.Settled = append(report.Settled, settled...)
	}

	e.logger.Info(ctx, "Option expiration batch complete", map[string]interface{}{
		"asOf": asOf.Format("2006-01-02"), "settled": len(report.Settled), "skipped": len(report.Skipped),
	})
	return report, nil
}

// settleAccount settles all of one account's expired positions in a single
// locked transaction.
func (e *Engine) settleAccount(ctx context.Context, accountID string, positions []*domain.Position, underlyingPrices map[string]decimal.Decimal) ([]Settlement, error) {
	unlock := e.locks.Lock(accountID)
	defer unlock()

	var settled []Settlement
	err := e.store.Transact(ctx, func(r ports.Repository) error {
		now := e.now().UTC()
		for _, stale := range positions {
			pos, err := r.GetPosition(ctx, accountID, stale.Symbol)
			if err != nil {
				return err
			}
			if pos == nil || pos.Quantity == 0 {
				continue // closed since the batch was listed
			}

			contract := domain.OptionContract{
				Underlying: pos.Underlying,
				Expiration: pos.Expiration,
				Kind:       pos.OptionKind,
				Strike:     pos.Strike,
			}
			intrinsic := contract.Intrinsic(underlyingPrices[pos.Underlying])

			side := domain.SellToClose
			outcome := OutcomeExercised
			if pos.Quantity < 0 {
				side = domain.BuyToClose
				outcome = OutcomeAssigned
			}
			if intrinsic.IsZero() {
				outcome = OutcomeWorthless
			}

			f := fill{
				accountID: accountID,
				symbol:    pos.Symbol,
				kind:      domain.AssetOption,
				side:      side,
				quantity:  abs64(pos.Quantity),
				price:     intrinsic,
				at:        now,
			}
			// Settlement always closes; margin rules do not apply here.
			if err := applyFill(ctx, r, f, true); err != nil {
				return err
			}

			cashEffect := intrinsic.Mul(decimal.NewFromInt(pos.Quantity * domain.AssetOption.Multiplier()))
			settled = append(settled, Settlement{
				AccountID:  accountID,
				Symbol:     pos.Symbol,
				Quantity:   pos.Quantity,
				Intrinsic:  intrinsic,
				CashEffect: cashEffect,
				Outcome:    outcome,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
