package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"paperbroker/internal/domain"
)

// Repository is the transactional persistence capability for accounts,
// positions, orders, order legs, multi-leg orders and transactions.
//
// "Not found" lookups return (nil, nil) for single-row getters so callers can
// distinguish absence from infrastructure failure, matching the adapter
// convention used throughout.
type Repository interface {
	// Accounts
	CreateAccount(ctx context.Context, acct *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	UpdateAccountCash(ctx context.Context, id string, cash decimal.Decimal) error

	// Positions, unique per (account, symbol). Upsert with zero quantity
	// deletes the row.
	GetPosition(ctx context.Context, accountID, symbol string) (*domain.Position, error)
	ListPositions(ctx context.Context, accountID string) ([]*domain.Position, error)
	UpsertPosition(ctx context.Context, pos *domain.Position) error
	ListExpiredOptionPositions(ctx context.Context, asOf time.Time) ([]*domain.Position, error)

	// Single-instrument orders
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, order *domain.Order) error
	ListOpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error)
	ListOpenOrdersBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error)
	ListOpenOrderSymbols(ctx context.Context) ([]string, error)

	// Multi-leg orders; creation persists the parent and all legs together.
	CreateMultiLegOrder(ctx context.Context, mlo *domain.MultiLegOrder, legs []*domain.OrderLeg) error
	GetMultiLegOrder(ctx context.Context, id string) (*domain.MultiLegOrder, []*domain.OrderLeg, error)
	UpdateMultiLegOrder(ctx context.Context, mlo *domain.MultiLegOrder) error
	UpdateOrderLeg(ctx context.Context, leg *domain.OrderLeg) error
	// ListOpenMultiLegOrders lists open multi-leg orders for one account, or
	// for every account when accountID is empty.
	ListOpenMultiLegOrders(ctx context.Context, accountID string) ([]*domain.MultiLegOrder, error)

	// Transactions: append-only.
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
	ListTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error)
}

// Store is a Repository that can run a function inside one atomic storage
// transaction. The Repository handed to fn sees and writes uncommitted state;
// any error from fn rolls the whole unit back, leaving no partial writes.
type Store interface {
	Repository

	Transact(ctx context.Context, fn func(Repository) error) error
	Close() error
}
