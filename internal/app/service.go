// Package app wires the brokerage operations into one service facade and
// owns the polling loop that feeds quotes to the trigger evaluator.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"paperbroker/config"
	"paperbroker/internal/domain"
	"paperbroker/internal/engine"
	"paperbroker/internal/portfolio"
	"paperbroker/internal/ports"
)

// BrokerService orchestrates accounts, orders and portfolio analytics over
// the execution engine and the valuation engine.
type BrokerService struct {
	cfg    *config.Config
	logger ports.Logger
	store  ports.Store
	quotes ports.QuoteSource
	engine *engine.Engine
	valuer *portfolio.Valuer
}

// NewBrokerService creates a new application service instance.
func NewBrokerService(
	cfg *config.Config,
	logger ports.Logger,
	store ports.Store,
	quotes ports.QuoteSource,
	eng *engine.Engine,
	valuer *portfolio.Valuer,
) (*BrokerService, error) {
	if cfg == nil || logger == nil || store == nil || quotes == nil || eng == nil || valuer == nil {
		return nil, fmt.Errorf("missing required dependencies for BrokerService")
	}
	return &BrokerService{
		cfg:    cfg,
		logger: logger,
		store:  store,
		quotes: quotes,
		engine: eng,
		valuer: valuer,
	}, nil
}

// --- Account operations ---

// CreateAccount opens a new account with the given starting cash.
func (s *BrokerService) CreateAccount(ctx context.Context, owner string, initialCash decimal.Decimal) (*domain.Account, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("owner is required: %w", ports.ErrValidation)
	}
	if initialCash.IsNegative() {
		return nil, fmt.Errorf("initial cash cannot be negative: %w", ports.ErrValidation)
	}
	now := time.Now().UTC()
	acct := &domain.Account{
		ID:        domain.NewAccountID(),
		Owner:     owner,
		Cash:      initialCash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Account created", map[string]interface{}{"accountID": acct.ID, "owner": owner, "cash": initialCash.String()})
	return acct, nil
}

// GetAccount returns the account or ErrNotFound.
func (s *BrokerService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrNotFound)
	}
	return acct, nil
}

// Deposit adds cash to an account. A negative amount is a withdrawal and may
// not take cash below zero.
func (s *BrokerService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Account, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("deposit amount cannot be zero: %w", ports.ErrValidation)
	}
	err := s.store.Transact(ctx, func(r ports.Repository) error {
		acct, err := r.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("account %s: %w", accountID, ports.ErrNotFound)
		}
		newCash := acct.Cash.Add(amount)
		if newCash.IsNegative() {
			return fmt.Errorf("withdrawal of %s exceeds cash %s: %w", amount.Neg().String(), acct.Cash.String(), ports.ErrInsufficientFunds)
		}
		return r.UpdateAccountCash(ctx, accountID, newCash)
	})
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, accountID)
}

// --- Order operations ---

// SubmitOrder places a single-instrument order.
func (s *BrokerService) SubmitOrder(ctx context.Context, req engine.OrderRequest) (*domain.Order, error) {
	return s.engine.SubmitOrder(ctx, req)
}

// SubmitMultiLeg places a multi-leg strategy order.
func (s *BrokerService) SubmitMultiLeg(ctx context.Context, req engine.MultiLegRequest) (*domain.MultiLegOrder, []*domain.OrderLeg, error) {
	return s.engine.SubmitMultiLeg(ctx, req)
}

// CancelOrder cancels an open single-instrument order.
func (s *BrokerService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.engine.Cancel(ctx, orderID)
}

// CancelMultiLeg cancels an open multi-leg order and all its legs.
func (s *BrokerService) CancelMultiLeg(ctx context.Context, multiLegID string) (*domain.MultiLegOrder, error) {
	return s.engine.CancelMultiLeg(ctx, multiLegID)
}

// CancelAllOrders cancels every open order of an account, multi-leg included.
func (s *BrokerService) CancelAllOrders(ctx context.Context, accountID string) (int, error) {
	return s.engine.CancelAll(ctx, accountID)
}

// GetOrder returns one order or ErrNotFound.
func (s *BrokerService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrNotFound)
	}
	return o, nil
}

// GetOpenOrders lists the account's open single-instrument orders.
func (s *BrokerService) GetOpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	return s.store.ListOpenOrders(ctx, accountID)
}

// GetMultiLegOrder returns a multi-leg order with its legs, or ErrNotFound.
func (s *BrokerService) GetMultiLegOrder(ctx context.Context, multiLegID string) (*domain.MultiLegOrder, []*domain.OrderLeg, error) {
	mlo, legs, err := s.store.GetMultiLegOrder(ctx, multiLegID)
	if err != nil {
		return nil, nil, err
	}
	if mlo == nil {
		return nil, nil, fmt.Errorf("multi-leg order %s: %w", multiLegID, ports.ErrNotFound)
	}
	return mlo, legs, nil
}

// --- Portfolio operations ---

// GetPositions lists the account's current holdings.
func (s *BrokerService) GetPositions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	return s.store.ListPositions(ctx, accountID)
}

// GetTransactions lists the account's execution ledger, newest first.
func (s *BrokerService) GetTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	return s.store.ListTransactions(ctx, accountID)
}

// GetPortfolio marks the account's holdings to current quotes.
func (s *BrokerService) GetPortfolio(ctx context.Context, accountID string) (*portfolio.Valuation, error) {
	return s.valuer.Value(ctx, accountID)
}

// GetPortfolioGreeks aggregates the account's option exposure.
func (s *BrokerService) GetPortfolioGreeks(ctx context.Context, accountID string) (*portfolio.GreeksReport, error) {
	return s.valuer.PortfolioGreeks(ctx, accountID)
}

// GetPositionGreeks computes the Greeks of one held option position.
func (s *BrokerService) GetPositionGreeks(ctx context.Context, accountID, symbol string) (*portfolio.PositionGreeks, error) {
	return s.valuer.PositionGreeksFor(ctx, accountID, symbol)
}

// ExpireOptions settles every option position expired as of the given date.
func (s *BrokerService) ExpireOptions(ctx context.Context, asOf time.Time) (*engine.ExpirationReport, error) {
	return s.engine.ExpireOptions(ctx, asOf)
}

// EvaluateQuote pushes one fresh quote through the trigger evaluator.
func (s *BrokerService) EvaluateQuote(ctx context.Context, quote *domain.Quote) error {
	return s.engine.EvaluateTriggers(ctx, quote)
}

// GetQuote returns the current quote for a symbol, reading the option feed
// for contract symbols and the equity feed otherwise.
func (s *BrokerService) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if _, err := domain.ParseOptionSymbol(symbol); err == nil {
		oq, err := s.quotes.GetOptionQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return &domain.Quote{Symbol: symbol, Price: oq.Price, Bid: oq.Bid, Ask: oq.Ask, Timestamp: oq.Timestamp}, nil
	}
	return s.quotes.GetQuote(ctx, symbol)
}

// --- Polling loop ---

// Run drives the trigger evaluation loop until the context is cancelled or a
// shutdown signal arrives: every tick, each symbol with an open order gets a
// fresh quote and a trigger pass.
func (s *BrokerService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting broker service...", map[string]interface{}{"triggerInterval": s.cfg.TriggerInterval.String()})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.cfg.TriggerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Broker service stopped.")
			return nil
		case <-ticker.C:
			s.evaluateOpenSymbols(ctx)
		}
	}
}

// evaluateOpenSymbols runs a trigger pass over every symbol that has an open
// single-instrument order; the engine fetches each symbol's price through the
// feed matching its asset kind. Pending multi-leg orders get a fresh
// execution attempt as well.
func (s *BrokerService) evaluateOpenSymbols(ctx context.Context) {
	symbols, err := s.store.ListOpenOrderSymbols(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to list open order symbols")
		return
	}
	for _, sym := range symbols {
		if err := s.engine.EvaluateSymbol(ctx, sym); err != nil {
			if ports.IsTransient(err) {
				s.logger.Debug(ctx, "No quote for open-order symbol", map[string]interface{}{"symbol": sym, "reason": err.Error()})
				continue
			}
			s.logger.Error(ctx, err, "Trigger evaluation pass failed", map[string]interface{}{"symbol": sym})
		}
	}

	mlos, err := s.store.ListOpenMultiLegOrders(ctx, "")
	if err != nil {
		s.logger.Error(ctx, err, "Failed to list open multi-leg orders")
		return
	}
	for _, m := range mlos {
		if err := s.engine.ExecuteMultiLeg(ctx, m.ID); err != nil && !ports.IsTransient(err) {
			s.logger.Debug(ctx, "Multi-leg execution attempt did not fill", map[string]interface{}{"multiLegID": m.ID, "reason": err.Error()})
		}
	}
}
