package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// fill is one executed trade to be applied atomically: cash debit/credit,
// position upsert with weighted-average cost, ledger append.
type fill struct {
	accountID string
	orderID   string
	symbol    string
	kind      domain.AssetKind
	side      domain.OrderSide
	quantity  int64
	price     decimal.Decimal
	at        time.Time
}

// applyFill mutates account cash, the position and the transaction ledger
// inside an already-open storage transaction. All business checks run before
// the first write, so a business error leaves the transaction clean.
func applyFill(ctx context.Context, r ports.Repository, f fill, allowMargin bool) error {
	acct, err := r.GetAccount(ctx, f.accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account %s: %w", f.accountID, ports.ErrNotFound)
	}

	pos, err := r.GetPosition(ctx, f.accountID, f.symbol)
	if err != nil {
		return err
	}
	held := int64(0)
	if pos != nil {
		held = pos.Quantity
	}

	if err := checkPositionRule(f, held, allowMargin); err != nil {
		return err
	}

	txn := &domain.Transaction{
		ID:         domain.NewTransactionID(),
		AccountID:  f.accountID,
		OrderID:    f.orderID,
		Symbol:     f.symbol,
		Kind:       f.kind,
		Side:       f.side,
		Quantity:   f.quantity,
		Price:      f.price,
		ExecutedAt: f.at,
	}
	newCash := acct.Cash.Add(txn.CashDelta())
	if f.side.IsBuy() && !allowMargin && newCash.IsNegative() {
		return fmt.Errorf("account %s cash %s cannot cover %s: %w",
			f.accountID, acct.Cash.String(), txn.CashDelta().Neg().String(), ports.ErrInsufficientFunds)
	}

	effect := pos.ApplyFill(f.side.Sign()*f.quantity, f.price)

	next := pos
	if next == nil {
		next = &domain.Position{
			AccountID: f.accountID,
			Symbol:    f.symbol,
			Kind:      f.kind,
			CreatedAt: f.at,
		}
		if f.kind == domain.AssetOption {
			contract, err := domain.ParseOptionSymbol(f.symbol)
			if err != nil {
				return fmt.Errorf("option fill on unparseable symbol: %w: %w", ports.ErrValidation, err)
			}
			next.Underlying = contract.Underlying
			next.Strike = contract.Strike
			next.Expiration = contract.Expiration
			next.OptionKind = contract.Kind
		}
	}
	next.Quantity = effect.Quantity
	next.AvgCost = effect.AvgCost
	next.UpdatedAt = f.at

	if err := r.UpdateAccountCash(ctx, f.accountID, newCash); err != nil {
		return err
	}
	if err := r.UpsertPosition(ctx, next); err != nil {
		return err
	}
	if err := r.CreateTransaction(ctx, txn); err != nil {
		return err
	}
	return nil
}

// checkPositionRule enforces which sides may run against the held quantity:
// closing sides need something to close, and plain equity sells only go
// short when margin is enabled.
func checkPositionRule(f fill, held int64, allowMargin bool) error {
	switch f.side {
	case domain.Sell:
		if held < f.quantity && !allowMargin {
			return fmt.Errorf("sell %d of %s with %d held: %w", f.quantity, f.symbol, held, ports.ErrInsufficientPosition)
		}
	case domain.SellToClose:
		if held < f.quantity {
			return fmt.Errorf("sell-to-close %d of %s with %d held: %w", f.quantity, f.symbol, held, ports.ErrInsufficientPosition)
		}
	case domain.BuyToClose:
		if held > -f.quantity {
			return fmt.Errorf("buy-to-close %d of %s with %d held: %w", f.quantity, f.symbol, held, ports.ErrInsufficientPosition)
		}
	}
	return nil
}
