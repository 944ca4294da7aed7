// Package engine owns the order lifecycle state machine, trigger evaluation,
// multi-leg execution and option expiration settlement. All mutating paths
// serialize per account and commit through one storage transaction, so a
// reader can never observe a fill whose cash, position and ledger effects are
// only partially applied.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// Config holds the engine tuning parameters.
type Config struct {
	// NetPriceTolerance bounds the difference between a declared multi-leg
	// net price and the net computed from declared leg prices.
	NetPriceTolerance decimal.Decimal
	// QuoteTimeout bounds every quote fetch; on expiry the order stays
	// pending and the caller is told to retry.
	QuoteTimeout time.Duration
	// AllowMargin lets cash go negative on buys and permits plain short
	// sales of equities.
	AllowMargin bool
}

// Engine implements the order lifecycle manager and multi-leg coordinator.
type Engine struct {
	store  ports.Store
	quotes ports.QuoteSource
	logger ports.Logger
	cfg    Config
	locks  *accountLocks
	now    func() time.Time
}

// New creates the execution engine.
func New(store ports.Store, quotes ports.QuoteSource, logger ports.Logger, cfg Config) (*Engine, error) {
	if store == nil || quotes == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 5 * time.Second
	}
	if cfg.NetPriceTolerance.IsZero() {
		cfg.NetPriceTolerance = decimal.NewFromFloat(0.01)
	}
	return &Engine{
		store:  store,
		quotes: quotes,
		logger: logger,
		cfg:    cfg,
		locks:  newAccountLocks(),
		now:    time.Now,
	}, nil
}

// OrderRequest is the caller-supplied specification of a single-instrument
// order.
type OrderRequest struct {
	AccountID    string
	Symbol       string
	Side         domain.OrderSide
	Quantity     int64
	Condition    domain.OrderCondition
	LimitPrice   *decimal.Decimal
	StopPrice    *decimal.Decimal
	TrailAmount  *decimal.Decimal
	TrailPercent *decimal.Decimal
}

// SubmitOrder validates the request, persists the order as pending and, for
// market and limit orders, immediately attempts execution. Validation
// failures persist nothing. A quote that is momentarily unavailable or a
// limit that is not yet met leaves the order pending without error; business
// failures (insufficient funds or position) mark the order failed and return
// the reason.
func (e *Engine) SubmitOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	kind, err := validateOrderRequest(req)
	if err != nil {
		return nil, err
	}

	acct, err := e.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w: %w", req.AccountID, ports.ErrValidation, ports.ErrNotFound)
	}

	now := e.now().UTC()
	order := &domain.Order{
		ID:           domain.NewOrderID(),
		AccountID:    req.AccountID,
		Symbol:       req.Symbol,
		Kind:         kind,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Condition:    req.Condition,
		LimitPrice:   req.LimitPrice,
		StopPrice:    req.StopPrice,
		TrailAmount:  req.TrailAmount,
		TrailPercent: req.TrailPercent,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	e.logger.Info(ctx, "Order submitted", map[string]interface{}{
		"orderID": order.ID, "accountID": order.AccountID, "symbol": order.Symbol,
		"side": order.Side, "quantity": order.Quantity, "condition": order.Condition,
	})

	if order.Condition.IsConditional() {
		return order, nil
	}

	price, err := e.fetchPrice(ctx, order.Kind, order.Symbol)
	if err != nil {
		if ports.IsTransient(err) {
			e.logger.Warn(ctx, "Quote unavailable at submission, order stays pending", map[string]interface{}{"orderID": order.ID, "symbol": order.Symbol})
			return order, nil
		}
		return order, err
	}
	if err := e.attemptFill(ctx, order.ID, order.AccountID, price); err != nil {
		return e.reload(ctx, order.ID, err)
	}
	return e.reload(ctx, order.ID, nil)
}

// EvaluateTriggers processes a fresh quote for a symbol: conditional orders
// are trigger-checked (trailing extremes updated and persisted), triggered
// stop-limit orders and resting limit orders get a fill attempt. Safe to
// invoke redundantly — already-triggered and terminal orders are no-ops.
// For an option contract symbol the supplied price is discarded and the
// contract's own quote is fetched instead; an equity-style price can never
// execute a contract order.
func (e *Engine) EvaluateTriggers(ctx context.Context, quote *domain.Quote) error {
	if quote == nil {
		return fmt.Errorf("nil quote: %w", ports.ErrValidation)
	}
	price := quote.Price
	if _, err := domain.ParseOptionSymbol(quote.Symbol); err == nil {
		p, err := e.fetchPrice(ctx, domain.AssetOption, quote.Symbol)
		if err != nil {
			if ports.IsTransient(err) {
				e.logger.Debug(ctx, "Contract quote unavailable, orders stay pending", map[string]interface{}{"symbol": quote.Symbol})
				return nil
			}
			return err
		}
		price = p
	}
	return e.evaluateSymbolAt(ctx, quote.Symbol, price)
}

// EvaluateSymbol fetches the current price for the symbol, option-aware, and
// runs the same evaluation pass. The polling loop uses this entry point so
// contract orders are priced off the option feed, never the equity feed.
func (e *Engine) EvaluateSymbol(ctx context.Context, symbol string) error {
	kind := domain.AssetEquity
	if _, err := domain.ParseOptionSymbol(symbol); err == nil {
		kind = domain.AssetOption
	}
	price, err := e.fetchPrice(ctx, kind, symbol)
	if err != nil {
		return err
	}
	return e.evaluateSymbolAt(ctx, symbol, price)
}

func (e *Engine) evaluateSymbolAt(ctx context.Context, symbol string, price decimal.Decimal) error {
	orders, err := e.store.ListOpenOrdersBySymbol(ctx, symbol)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := e.evaluateOrder(ctx, o.ID, o.AccountID, price); err != nil {
			if ports.IsTransient(err) || errors.Is(err, ports.ErrOrderNotOpen) {
				continue
			}
			e.logger.Error(ctx, err, "Trigger evaluation failed", map[string]interface{}{"orderID": o.ID, "symbol": symbol})
		}
	}
	return nil
}

// Cancel moves an order to cancelled. Only legal from pending or triggered;
// terminal orders report a "no longer pending" conflict.
func (e *Engine) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrNotFound)
	}

	unlock := e.locks.Lock(order.AccountID)
	defer unlock()

	err = e.store.Transact(ctx, func(r ports.Repository) error {
		o, err := r.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %s: %w", orderID, ports.ErrNotFound)
		}
		if !o.Status.IsOpen() {
			return fmt.Errorf("order %s is %s: %w", orderID, o.Status, ports.ErrOrderNotOpen)
		}
		o.Status = domain.StatusCancelled
		o.UpdatedAt = e.now().UTC()
		return r.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info(ctx, "Order cancelled", map[string]interface{}{"orderID": orderID})
	return e.reload(ctx, orderID, nil)
}

// CancelAll cancels every open order and open multi-leg order of an account.
// Returns the number of orders cancelled.
func (e *Engine) CancelAll(ctx context.Context, accountID string) (int, error) {
	unlock := e.locks.Lock(accountID)
	defer unlock()

	cancelled := 0
	err := e.store.Transact(ctx, func(r ports.Repository) error {
		now := e.now().UTC()
		orders, err := r.ListOpenOrders(ctx, accountID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			o.Status = domain.StatusCancelled
			o.UpdatedAt = now
			if err := r.UpdateOrder(ctx, o); err != nil {
				return err
			}
			cancelled++
		}

		mlos, err := r.ListOpenMultiLegOrders(ctx, accountID)
		if err != nil {
			return err
		}
		for _, m := range mlos {
			_, legs, err := r.GetMultiLegOrder(ctx, m.ID)
			if err != nil {
				return err
			}
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
			cancelled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.logger.Info(ctx, "All open orders cancelled", map[string]interface{}{"accountID": accountID, "count": cancelled})
	return cancelled, nil
}

// attemptFill executes one fill attempt for a market/limit order at the given
// price, under the account lock, re-validating state inside the transaction.
func (e *Engine) attemptFill(ctx context.Context, orderID, accountID string, price decimal.Decimal) error {
	unlock := e.locks.Lock(accountID)
	defer unlock()
	return e.fillLocked(ctx, orderID, price)
}

// evaluateOrder runs one quote through a single order's state machine under
// the account lock.
func (e *Engine) evaluateOrder(ctx context.Context, orderID, accountID string, price decimal.Decimal) error {
	unlock := e.locks.Lock(accountID)
	defer unlock()

	var bizErr error
	err := e.store.Transact(ctx, func(r ports.Repository) error {
		o, err := r.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil || !o.Status.IsOpen() {
			return nil // idempotent: already terminal or gone
		}

		switch {
		case o.Status == domain.StatusTriggered,
			o.Condition == domain.ConditionMarket,
			o.Condition == domain.ConditionLimit:
			bizErr = e.fillInTx(ctx, r, o, price)
			return nil

		case o.Condition == domain.ConditionStop, o.Condition == domain.ConditionStopLimit:
			if !stopTriggered(o, price) {
				return nil
			}
			e.markTriggered(o)
			if err := r.UpdateOrder(ctx, o); err != nil {
				return err
			}
			bizErr = e.fillInTx(ctx, r, o, price)
			return nil

		case o.Condition == domain.ConditionTrailingStop:
			fired, changed := updateTrailingStop(o, price)
			if changed || fired {
				if fired {
					e.markTriggered(o)
				}
				if err := r.UpdateOrder(ctx, o); err != nil {
					return err
				}
			}
			if fired {
				bizErr = e.fillInTx(ctx, r, o, price)
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return err
	}
	return bizErr
}

// fillLocked runs one fill attempt in its own transaction. Business failures
// (insufficient funds/position) commit the failed status and surface as the
// returned error; an unmet limit commits nothing and returns nil.
func (e *Engine) fillLocked(ctx context.Context, orderID string, price decimal.Decimal) error {
	var bizErr error
	err := e.store.Transact(ctx, func(r ports.Repository) error {
		o, err := r.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %s: %w", orderID, ports.ErrNotFound)
		}
		if !o.Status.IsOpen() {
			return fmt.Errorf("order %s is %s: %w", orderID, o.Status, ports.ErrOrderNotOpen)
		}
		bizErr = e.fillInTx(ctx, r, o, price)
		return nil
	})
	if err != nil {
		return err
	}
	return bizErr
}

// fillInTx applies the fill inside an open transaction. It assumes the order
// is open. Returns nil when the order filled or legitimately stays open; a
// business error after committing the failed status.
func (e *Engine) fillInTx(ctx context.Context, r ports.Repository, o *domain.Order, price decimal.Decimal) error {
	if !limitSatisfied(o, price) {
		return nil // stays pending/triggered, not an error
	}

	now := e.now().UTC()
	err := applyFill(ctx, r, fill{
		accountID: o.AccountID,
		orderID:   o.ID,
		symbol:    o.Symbol,
		kind:      o.Kind,
		side:      o.Side,
		quantity:  o.Quantity,
		price:     price,
		at:        now,
	}, e.cfg.AllowMargin)
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientFunds) || errors.Is(err, ports.ErrInsufficientPosition) {
			o.Status = domain.StatusFailed
			o.UpdatedAt = now
			if updErr := r.UpdateOrder(ctx, o); updErr != nil {
				return updErr
			}
			e.logger.Warn(ctx, "Order failed on business rule", map[string]interface{}{"orderID": o.ID, "reason": err.Error()})
			return err
		}
		return err
	}

	o.Status = domain.StatusFilled
	o.FillPrice = &price
	o.FilledAt = &now
	o.UpdatedAt = now
	if err := r.UpdateOrder(ctx, o); err != nil {
		return err
	}
	e.logger.Info(ctx, "Order filled", map[string]interface{}{"orderID": o.ID, "symbol": o.Symbol, "price": price.String()})
	return nil
}

func (e *Engine) markTriggered(o *domain.Order) {
	now := e.now().UTC()
	o.Status = domain.StatusTriggered
	o.TriggeredAt = &now
	o.UpdatedAt = now
}

// fetchPrice retrieves the current execution price for a symbol, bounded by
// the configured quote timeout. No account lock may be held by the caller.
func (e *Engine) fetchPrice(ctx context.Context, kind domain.AssetKind, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
	defer cancel()

	if kind == domain.AssetOption {
		q, err := e.quotes.GetOptionQuote(ctx, symbol)
		if err != nil {
			return decimal.Zero, classifyQuoteErr(ctx, err)
		}
		return q.Price, nil
	}
	q, err := e.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return decimal.Zero, classifyQuoteErr(ctx, err)
	}
	return q.Price, nil
}

func classifyQuoteErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("quote fetch: %w: %w", ports.ErrTimeout, err)
	}
	return err
}

func (e *Engine) reload(ctx context.Context, orderID string, cause error) (*domain.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o, cause
}

// --- pure helpers ---

// limitSatisfied reports whether the current price satisfies the order's
// limit, if any: price <= limit for buys, price >= limit for sells.
func limitSatisfied(o *domain.Order, price decimal.Decimal) bool {
	if o.LimitPrice == nil {
		return true
	}
	if o.Side.IsBuy() {
		return price.LessThanOrEqual(*o.LimitPrice)
	}
	return price.GreaterThanOrEqual(*o.LimitPrice)
}

// stopTriggered reports whether a stop/stop-limit order fires at the price:
// buys trigger at price >= stop, sells at price <= stop.
func stopTriggered(o *domain.Order, price decimal.Decimal) bool {
	if o.StopPrice == nil {
		return false
	}
	if o.Side.IsBuy() {
		return price.GreaterThanOrEqual(*o.StopPrice)
	}
	return price.LessThanOrEqual(*o.StopPrice)
}

// updateTrailingStop advances the persisted running extreme (highest seen for
// sells, lowest for buys) and reports whether the retrace fired and whether
// the extreme changed.
func updateTrailingStop(o *domain.Order, price decimal.Decimal) (fired, changed bool) {
	extreme := price
	if o.TrailExtreme != nil {
		extreme = *o.TrailExtreme
		if o.Side.IsBuy() {
			if price.LessThan(extreme) {
				extreme = price
			}
		} else {
			if price.GreaterThan(extreme) {
				extreme = price
			}
		}
	}
	if o.TrailExtreme == nil || !extreme.Equal(*o.TrailExtreme) {
		o.TrailExtreme = &extreme
		changed = true
	}

	level := trailLevel(o, extreme)
	if o.Side.IsBuy() {
		fired = price.GreaterThanOrEqual(level)
	} else {
		fired = price.LessThanOrEqual(level)
	}
	// A freshly observed extreme equal to the trigger level means zero
	// retrace; require a configured distance to avoid firing on the first
	// quote.
	if fired && level.Equal(extreme) {
		fired = false
	}
	return fired, changed
}

// trailLevel computes the trigger level from the extreme: extreme minus the
// trail distance for sells, plus for buys.
func trailLevel(o *domain.Order, extreme decimal.Decimal) decimal.Decimal {
	var dist decimal.Decimal
	switch {
	case o.TrailAmount != nil:
		dist = *o.TrailAmount
	case o.TrailPercent != nil:
		dist = extreme.Mul(o.TrailPercent.Div(decimal.NewFromInt(100)))
	}
	if o.Side.IsBuy() {
		return extreme.Add(dist)
	}
	return extreme.Sub(dist)
}

// validateOrderRequest checks the request shape and returns the asset kind
// derived from the symbol (a parseable OCC-style symbol is an option).
func validateOrderRequest(req OrderRequest) (domain.AssetKind, error) {
	if req.AccountID == "" {
		return "", fmt.Errorf("account id is required: %w", ports.ErrValidation)
	}
	if req.Symbol == "" {
		return "", fmt.Errorf("symbol is required: %w", ports.ErrValidation)
	}
	if req.Quantity <= 0 {
		return "", fmt.Errorf("quantity must be positive: %w", ports.ErrValidation)
	}
	if !req.Side.IsValid() {
		return "", fmt.Errorf("unknown side %q: %w", req.Side, ports.ErrValidation)
	}
	if !req.Condition.IsValid() {
		return "", fmt.Errorf("unknown condition %q: %w", req.Condition, ports.ErrValidation)
	}

	hasStop := req.StopPrice != nil
	hasTrailAmt := req.TrailAmount != nil
	hasTrailPct := req.TrailPercent != nil
	hasLimit := req.LimitPrice != nil

	switch req.Condition {
	case domain.ConditionMarket:
		if hasLimit || hasStop || hasTrailAmt || hasTrailPct {
			return "", fmt.Errorf("market order must not carry price triggers: %w", ports.ErrValidation)
		}
	case domain.ConditionLimit:
		if !hasLimit {
			return "", fmt.Errorf("limit order requires a limit price: %w", ports.ErrValidation)
		}
		if hasStop || hasTrailAmt || hasTrailPct {
			return "", fmt.Errorf("limit order must not carry stop or trail fields: %w", ports.ErrValidation)
		}
	case domain.ConditionStop:
		if !hasStop || hasLimit || hasTrailAmt || hasTrailPct {
			return "", fmt.Errorf("stop order requires exactly a stop price: %w", ports.ErrValidation)
		}
	case domain.ConditionStopLimit:
		if !hasStop || !hasLimit || hasTrailAmt || hasTrailPct {
			return "", fmt.Errorf("stop-limit order requires stop and limit prices: %w", ports.ErrValidation)
		}
	case domain.ConditionTrailingStop:
		if hasTrailAmt == hasTrailPct {
			return "", fmt.Errorf("trailing-stop order requires exactly one of trail amount or trail percent: %w", ports.ErrValidation)
		}
		if hasStop || hasLimit {
			return "", fmt.Errorf("trailing-stop order must not carry stop or limit prices: %w", ports.ErrValidation)
		}
	}

	for _, p := range []*decimal.Decimal{req.LimitPrice, req.StopPrice, req.TrailAmount, req.TrailPercent} {
		if p != nil && !p.IsPositive() {
			return "", fmt.Errorf("price and trail fields must be positive: %w", ports.ErrValidation)
		}
	}

	kind := domain.AssetEquity
	if _, err := domain.ParseOptionSymbol(req.Symbol); err == nil {
		kind = domain.AssetOption
	}
	if kind == domain.AssetEquity {
		switch req.Side {
		case domain.BuyToOpen, domain.BuyToClose, domain.SellToOpen, domain.SellToClose:
			return "", fmt.Errorf("side %s is only valid for option orders: %w", req.Side, ports.ErrValidation)
		}
	}
	return kind, nil
}
