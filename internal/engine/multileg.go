package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// LegRequest is the caller-supplied specification of one leg. Option legs
// carry their contract details in the symbol (OCC-style); Price is the
// declared per-unit leg price used for net-price validation.
type LegRequest struct {
	Symbol   string
	Side     domain.OrderSide
	Quantity int64
	Price    decimal.Decimal
}

// MultiLegRequest is the caller-supplied specification of a multi-leg order.
// NetPrice is signed: positive for a net debit, negative for a net credit.
type MultiLegRequest struct {
	AccountID string
	OrderType domain.OrderCondition // market or limit
	NetPrice  decimal.Decimal
	Legs      []LegRequest
}

// MultiLegError reports which legs blocked a multi-leg execution attempt.
// No leg is ever partially committed: the IDs identify the cause, not a
// partial fill.
type MultiLegError struct {
	MultiLegID string
	LegIDs     []string
	Err        error
}

func (e *MultiLegError) Error() string {
	return fmt.Sprintf("multi-leg order %s blocked by legs [%s]: %v",
		e.MultiLegID, strings.Join(e.LegIDs, ", "), e.Err)
}

func (e *MultiLegError) Unwrap() error { return e.Err }

// SubmitMultiLeg validates the strategy definition, persists the parent
// order and all legs as one pending unit, and immediately attempts
// execution. The declared net price must match the net computed from the
// declared leg prices within the configured tolerance.
func (e *Engine) SubmitMultiLeg(ctx context.Context, req MultiLegRequest) (*domain.MultiLegOrder, []*domain.OrderLeg, error) {
	legs, underlying, err := e.validateMultiLegRequest(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	now := e.now().UTC()
	mlo := &domain.MultiLegOrder{
		ID:         domain.NewMultiLegID(),
		AccountID:  req.AccountID,
		Underlying: underlying,
		OrderType:  req.OrderType,
		NetPrice:   req.NetPrice,
		Status:     domain.StatusPending,
		Strategy:   domain.ClassifyStrategy(legs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, l := range legs {
		l.MultiLegID = mlo.ID
	}

	if err := e.store.Transact(ctx, func(r ports.Repository) error {
		return r.CreateMultiLegOrder(ctx, mlo, legs)
	}); err != nil {
		return nil, nil, err
	}
	e.logger.Info(ctx, "Multi-leg order submitted", map[string]interface{}{
		"multiLegID": mlo.ID, "accountID": mlo.AccountID, "strategy": mlo.Strategy,
		"legs": len(legs), "netPrice": mlo.NetPrice.String(),
	})

	if err := e.ExecuteMultiLeg(ctx, mlo.ID); err != nil {
		if ports.IsTransient(err) {
			e.logger.Warn(ctx, "Multi-leg order stays pending", map[string]interface{}{"multiLegID": mlo.ID, "reason": err.Error()})
			return e.reloadMultiLeg(ctx, mlo.ID, nil)
		}
		return e.reloadMultiLeg(ctx, mlo.ID, err)
	}
	return e.reloadMultiLeg(ctx, mlo.ID, nil)
}

// ExecuteMultiLeg runs one all-or-nothing execution attempt. Quotes for every
// leg are fetched before any lock; a single unavailable leg leaves the whole
// order pending with an explicit MultiLegError. For limit orders the net
// price computed from live quotes must satisfy the requested net (signed,
// debit positive). All leg fills commit in one storage transaction.
func (e *Engine) ExecuteMultiLeg(ctx context.Context, multiLegID string) error {
	mlo, legs, err := e.store.GetMultiLegOrder(ctx, multiLegID)
	if err != nil {
		return err
	}
	if mlo == nil {
		return fmt.Errorf("multi-leg order %s: %w", multiLegID, ports.ErrNotFound)
	}
	if !mlo.Status.IsOpen() {
		return fmt.Errorf("multi-leg order %s is %s: %w", multiLegID, mlo.Status, ports.ErrOrderNotOpen)
	}

	// Quote every leg outside the lock.
	prices := make(map[string]decimal.Decimal, len(legs))
	var blocked []string
	var blockErr error
	for _, l := range legs {
		price, err := e.fetchPrice(ctx, l.Kind, l.Symbol)
		if err != nil {
			blocked = append(blocked, l.ID)
			blockErr = err
			continue
		}
		prices[l.ID] = price
	}
	if len(blocked) > 0 {
		return &MultiLegError{MultiLegID: multiLegID, LegIDs: blocked, Err: blockErr}
	}

	if mlo.OrderType == domain.ConditionLimit {
		liveNet := domain.NetPrice(legs, func(l *domain.OrderLeg) decimal.Decimal { return prices[l.ID] })
		if liveNet.GreaterThan(mlo.NetPrice) {
			e.logger.Debug(ctx, "Multi-leg net condition not met", map[string]interface{}{
				"multiLegID": multiLegID, "liveNet": liveNet.String(), "requested": mlo.NetPrice.String(),
			})
			return nil // stays pending, not an error
		}
	}

	unlock := e.locks.Lock(mlo.AccountID)
	defer unlock()

	var bizErr error
	err = e.store.Transact(ctx, func(r ports.Repository) error {
		m, txLegs, err := r.GetMultiLegOrder(ctx, multiLegID)
		if err != nil {
			return err
		}
		if m == nil || !m.Status.IsOpen() {
			return fmt.Errorf("multi-leg order %s: %w", multiLegID, ports.ErrOrderNotOpen)
		}

		now := e.now().UTC()
		// Credit legs apply first so a net-credit strategy does not need
		// transient cash for its debit legs.
		ordered := make([]*domain.OrderLeg, len(txLegs))
		copy(ordered, txLegs)
		sort.SliceStable(ordered, func(i, j int) bool {
			return !ordered[i].Side.IsBuy() && ordered[j].Side.IsBuy()
		})

		for _, l := range ordered {
			price := prices[l.ID]
			if err := applyFill(ctx, r, fill{
				accountID: m.AccountID,
				orderID:   l.ID,
				symbol:    l.Symbol,
				kind:      l.Kind,
				side:      l.Side,
				quantity:  l.Quantity,
				price:     price,
				at:        now,
			}, e.cfg.AllowMargin); err != nil {
				if errors.Is(err, ports.ErrInsufficientFunds) || errors.Is(err, ports.ErrInsufficientPosition) {
					bizErr = &MultiLegError{MultiLegID: multiLegID, LegIDs: []string{l.ID}, Err: err}
				}
				return err // rollback everything already applied
			}
			l.FilledQuantity = l.Quantity
			p := price
			l.FilledPrice = &p
			l.Status = domain.StatusFilled
			if err := r.UpdateOrderLeg(ctx, l); err != nil {
				return err
			}
		}

		m.Status = domain.StatusFilled
		m.FilledAt = &now
		m.UpdatedAt = now
		return r.UpdateMultiLegOrder(ctx, m)
	})
	if err != nil {
		if bizErr != nil {
			// The attempt rolled back; record the terminal failure in its
			// own transaction so all legs share the same terminal status.
			if markErr := e.markMultiLegFailed(ctx, multiLegID); markErr != nil {
				e.logger.Error(ctx, markErr, "Failed to mark multi-leg order failed", map[string]interface{}{"multiLegID": multiLegID})
			}
			return bizErr
		}
		return err
	}

	e.logger.Info(ctx, "Multi-leg order filled", map[string]interface{}{"multiLegID": multiLegID, "legs": len(legs)})
	return nil
}

// CancelMultiLeg cancels an open multi-leg order and all its legs together.
func (e *Engine) CancelMultiLeg(ctx context.Context, multiLegID string) (*domain.MultiLegOrder, error) {
	mlo, _, err := e.store.GetMultiLegOrder(ctx, multiLegID)
	if err != nil {
		return nil, err
	}
	if mlo == nil {
		return nil, fmt.Errorf("multi-leg order %s: %w", multiLegID, ports.ErrNotFound)
	}

	unlock := e.locks.Lock(mlo.AccountID)
	defer unlock()

	err = e.store.Transact(ctx, func(r ports.Repository) error {
		m, legs, err := r.GetMultiLegOrder(ctx, multiLegID)
		if err != nil {
			return err
		}
		if m == nil || !m.Status.IsOpen() {
			return fmt.Errorf("multi-leg order %s: %w", multiLegID, ports.ErrOrderNotOpen)
		}
		now := e.now().UTC()
		m.Status = domain.StatusCancelled
		m.UpdatedAt = now
		if err := r.UpdateMultiLegOrder(ctx, m); err != nil {
			return err
		}
		for _, l := range legs {
			l.Status = domain.StatusCancelled
			if err := r.UpdateOrderLeg(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	mlo, _, err = e.store.GetMultiLegOrder(ctx, multiLegID)
	return mlo, err
}

func (e *Engine) markMultiLegFailed(ctx context.Context, multiLegID string) error {
	return e.store.Transact(ctx, func(r ports.Repository) error {
		m, legs, err := r.GetMultiLegOrder(ctx, multiLegID)
		if err != nil {
			return err
		}
		if m == nil || !m.Status.IsOpen() {
			return nil
		}
		now := e.now().UTC()
		m.Status = domain.StatusFailed
		m.UpdatedAt = now
		if err := r.UpdateMultiLegOrder(ctx, m); err != nil {
			return err
		}
		for _, l := range legs {
			l.Status = domain.StatusFailed
			if err := r.UpdateOrderLeg(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) reloadMultiLeg(ctx context.Context, id string, cause error) (*domain.MultiLegOrder, []*domain.OrderLeg, error) {
	mlo, legs, err := e.store.GetMultiLegOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return mlo, legs, cause
}

// validateMultiLegRequest checks the strategy definition and returns the
// built legs plus the shared underlying symbol.
func (e *Engine) validateMultiLegRequest(ctx context.Context, req MultiLegRequest) ([]*domain.OrderLeg, string, error) {
	if len(req.Legs) < 2 {
		return nil, "", fmt.Errorf("multi-leg order requires at least 2 legs, got %d: %w", len(req.Legs), ports.ErrValidation)
	}
	if req.OrderType != domain.ConditionMarket && req.OrderType != domain.ConditionLimit {
		return nil, "", fmt.Errorf("multi-leg order type must be market or limit, got %q: %w", req.OrderType, ports.ErrValidation)
	}

	acct, err := e.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, "", err
	}
	if acct == nil {
		return nil, "", fmt.Errorf("account %s: %w: %w", req.AccountID, ports.ErrValidation, ports.ErrNotFound)
	}

	legs := make([]*domain.OrderLeg, 0, len(req.Legs))
	underlying := ""
	for i, lr := range req.Legs {
		if lr.Quantity <= 0 {
			return nil, "", fmt.Errorf("leg %d quantity must be positive: %w", i, ports.ErrValidation)
		}
		if !lr.Side.IsValid() {
			return nil, "", fmt.Errorf("leg %d has unknown side %q: %w", i, lr.Side, ports.ErrValidation)
		}
		if lr.Price.IsNegative() {
			return nil, "", fmt.Errorf("leg %d price must not be negative: %w", i, ports.ErrValidation)
		}

		leg := &domain.OrderLeg{
			ID:       domain.NewLegID(),
			Symbol:   lr.Symbol,
			Side:     lr.Side,
			Quantity: lr.Quantity,
			Price:    lr.Price,
			Status:   domain.StatusPending,
			Kind:     domain.AssetEquity,
		}
		if contract, err := domain.ParseOptionSymbol(lr.Symbol); err == nil {
			leg.Kind = domain.AssetOption
			leg.Underlying = contract.Underlying
			leg.Strike = contract.Strike
			leg.Expiration = contract.Expiration
			leg.OptionKind = contract.Kind
			if underlying == "" {
				underlying = contract.Underlying
			}
		} else {
			switch lr.Side {
			case domain.BuyToOpen, domain.BuyToClose, domain.SellToOpen, domain.SellToClose:
				return nil, "", fmt.Errorf("leg %d: side %s requires an option contract symbol: %w", i, lr.Side, ports.ErrValidation)
			}
			if underlying == "" {
				underlying = lr.Symbol
			}
		}
		legs = append(legs, leg)
	}

	declared := domain.DeclaredNetPrice(legs)
	if declared.Sub(req.NetPrice).Abs().GreaterThan(e.cfg.NetPriceTolerance) {
		return nil, "", fmt.Errorf("declared net price %s does not match leg prices (computed %s, tolerance %s): %w",
			req.NetPrice.String(), declared.String(), e.cfg.NetPriceTolerance.String(), ports.ErrValidation)
	}
	return legs, underlying, nil
}
