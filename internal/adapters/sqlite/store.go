// Package sqlite implements the ports.Store persistence capability on a
// local SQLite database. Prices and cash are stored as decimal strings, never
// as REAL, so repeated weighted-average recomputation cannot drift.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"paperbroker/internal/domain"
	"paperbroker/internal/ports"
)

// Store implements ports.Store using SQLite.
type Store struct {
	queries
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewStore opens (and if necessary bootstraps) the database at cfg.DBPath.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paperbroker.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory %q: %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the trigger loop and callers.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at %q: %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at %q: %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// The Go driver benefits from a single connection; SQLite serializes
	// writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{queries: queries{db: db, logger: cfg.Logger}, db: db, logger: cfg.Logger}
	if err := s.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite store ready", map[string]interface{}{"path": dbPath})
	return s, nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		cash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		avg_cost TEXT NOT NULL,
		underlying TEXT NOT NULL DEFAULT '',
		strike TEXT NOT NULL DEFAULT '0',
		expiration TIMESTAMP NULL,
		option_kind TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (account_id, symbol)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		condition TEXT NOT NULL,
		limit_price TEXT NULL,
		stop_price TEXT NULL,
		trail_amount TEXT NULL,
		trail_percent TEXT NULL,
		trail_extreme TEXT NULL,
		status TEXT NOT NULL,
		fill_price TEXT NULL,
		created_at TIMESTAMP NOT NULL,
		triggered_at TIMESTAMP NULL,
		filled_at TIMESTAMP NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS multi_leg_orders (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		underlying TEXT NOT NULL,
		order_type TEXT NOT NULL,
		net_price TEXT NOT NULL,
		status TEXT NOT NULL,
		strategy TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		filled_at TIMESTAMP NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS order_legs (
		id TEXT PRIMARY KEY,
		multi_leg_id TEXT NOT NULL REFERENCES multi_leg_orders(id),
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		filled_quantity INTEGER NOT NULL DEFAULT 0,
		filled_price TEXT NULL,
		status TEXT NOT NULL,
		underlying TEXT NOT NULL DEFAULT '',
		strike TEXT NOT NULL DEFAULT '0',
		expiration TIMESTAMP NULL,
		option_kind TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		executed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quotes (
		symbol TEXT NOT NULL,
		price TEXT NOT NULL,
		bid TEXT NOT NULL,
		ask TEXT NOT NULL,
		implied_vol REAL NOT NULL DEFAULT 0,
		underlying_price TEXT NOT NULL DEFAULT '0',
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_orders_account_status ON orders (account_id, status);
	CREATE INDEX IF NOT EXISTS idx_legs_multi_leg ON order_legs (multi_leg_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_id, executed_at);
	CREATE INDEX IF NOT EXISTS idx_quotes_symbol_time ON quotes (symbol, recorded_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Transact runs fn inside one database transaction. Any error from fn rolls
// the whole unit back.
func (s *Store) Transact(ctx context.Context, fn func(ports.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w: %w", ports.ErrTxFailed, err)
	}
	q := queries{db: tx, logger: s.logger}
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error(ctx, rbErr, "Transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w: %w", ports.ErrTxFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite store")
		return s.db.Close()
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries implements ports.Repository against either the live connection or
// an open transaction.
type queries struct {
	db     dbtx
	logger ports.Logger
}

// --- Accounts ---

func (q queries) CreateAccount(ctx context.Context, acct *domain.Account) error {
	const query = `
	INSERT INTO accounts (id, owner, cash, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`
	if _, err := q.db.ExecContext(ctx, query,
		acct.ID, acct.Owner, acct.Cash.String(), acct.CreatedAt, acct.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert account %s: %w: %w", acct.ID, ports.ErrUpdateFailed, err)
	}
	q.logger.Debug(ctx, "Account created", map[string]interface{}{"accountID": acct.ID, "owner": acct.Owner})
	return nil
}

func (q queries) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	const query = `SELECT id, owner, cash, created_at, updated_at FROM accounts WHERE id = ?`
	row := q.db.QueryRowContext(ctx, query, id)

	a := &domain.Account{}
	var cash string
	err := row.Scan(&a.ID, &a.Owner, &cash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query account %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	if a.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("corrupt cash value for account %s: %w", id, err)
	}
	return a, nil
}

func (q queries) UpdateAccountCash(ctx context.Context, id string, cash decimal.Decimal) error {
	const query = `UPDATE accounts SET cash = ?, updated_at = ? WHERE id = ?`
	res, err := q.db.ExecContext(ctx, query, cash.String(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update cash for account %s: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s not found for cash update: %w", id, ports.ErrNotFound)
	}
	return nil
}

// --- Positions ---

const positionColumns = `account_id, symbol, kind, quantity, avg_cost, underlying, strike, expiration, option_kind, created_at, updated_at`

func (q queries) GetPosition(ctx context.Context, accountID, symbol string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE account_id = ? AND symbol = ?`
	pos, err := scanPosition(q.db.QueryRowContext(ctx, query, accountID, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position %s/%s: %w: %w", accountID, symbol, ports.ErrQueryFailed, err)
	}
	return pos, nil
}

func (q queries) ListPositions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE account_id = ? ORDER BY symbol`
	rows, err := q.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for %s: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (q queries) ListExpiredOptionPositions(ctx context.Context, asOf time.Time) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
	WHERE kind = ? AND expiration IS NOT NULL AND expiration < ?
	ORDER BY account_id, symbol`
	rows, err := q.db.QueryContext(ctx, query, domain.AssetOption, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired option positions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (q queries) UpsertPosition(ctx context.Context, pos *domain.Position) error {
	if pos.Quantity == 0 {
		const del = `DELETE FROM positions WHERE account_id = ? AND symbol = ?`
		if _, err := q.db.ExecContext(ctx, del, pos.AccountID, pos.Symbol); err != nil {
			return fmt.Errorf("failed to delete flat position %s/%s: %w: %w", pos.AccountID, pos.Symbol, ports.ErrUpdateFailed, err)
		}
		q.logger.Debug(ctx, "Position closed", map[string]interface{}{"accountID": pos.AccountID, "symbol": pos.Symbol})
		return nil
	}

	const query = `
	INSERT INTO positions (account_id, symbol, kind, quantity, avg_cost, underlying, strike, expiration, option_kind, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (account_id, symbol) DO UPDATE SET
		quantity = excluded.quantity,
		avg_cost = excluded.avg_cost,
		updated_at = excluded.updated_at`
	if _, err := q.db.ExecContext(ctx, query,
		pos.AccountID, pos.Symbol, pos.Kind, pos.Quantity, pos.AvgCost.String(),
		pos.Underlying, pos.Strike.String(), nullTime(pos.Expiration), pos.OptionKind,
		pos.CreatedAt, pos.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert position %s/%s: %w: %w", pos.AccountID, pos.Symbol, ports.ErrUpdateFailed, err)
	}
	return nil
}

// --- Orders ---

const orderColumns = `id, account_id, symbol, kind, side, quantity, condition, limit_price, stop_price,
	trail_amount, trail_percent, trail_extreme, status, fill_price, created_at, triggered_at, filled_at, updated_at`

func (q queries) CreateOrder(ctx context.Context, o *domain.Order) error {
	const query = `
	INSERT INTO orders (` + orderColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.db.ExecContext(ctx, query,
		o.ID, o.AccountID, o.Symbol, o.Kind, o.Side, o.Quantity, o.Condition,
		nullDecimal(o.LimitPrice), nullDecimal(o.StopPrice),
		nullDecimal(o.TrailAmount), nullDecimal(o.TrailPercent), nullDecimal(o.TrailExtreme),
		o.Status, nullDecimal(o.FillPrice),
		o.CreatedAt, nullTimePtr(o.TriggeredAt), nullTimePtr(o.FilledAt), o.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order %s: %w: %w", o.ID, ports.ErrUpdateFailed, err)
	}
	q.logger.Debug(ctx, "Order created", map[string]interface{}{"orderID": o.ID, "symbol": o.Symbol, "condition": o.Condition})
	return nil
}

func (q queries) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	o, err := scanOrder(q.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return o, nil
}

func (q queries) UpdateOrder(ctx context.Context, o *domain.Order) error {
	const query = `
	UPDATE orders SET status = ?, fill_price = ?, trail_extreme = ?, triggered_at = ?, filled_at = ?, updated_at = ?
	WHERE id = ?`
	res, err := q.db.ExecContext(ctx, query,
		o.Status, nullDecimal(o.FillPrice), nullDecimal(o.TrailExtreme),
		nullTimePtr(o.TriggeredAt), nullTimePtr(o.FilledAt), o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w: %w", o.ID, ports.ErrUpdateFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s not found for update: %w", o.ID, ports.ErrNotFound)
	}
	return nil
}

func (q queries) ListOpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	WHERE account_id = ? AND status IN (?, ?) ORDER BY created_at`
	rows, err := q.db.QueryContext(ctx, query, accountID, domain.StatusPending, domain.StatusTriggered)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders for %s: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (q queries) ListOpenOrdersBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	WHERE symbol = ? AND status IN (?, ?) ORDER BY created_at`
	rows, err := q.db.QueryContext(ctx, query, symbol, domain.StatusPending, domain.StatusTriggered)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (q queries) ListOpenOrderSymbols(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT symbol FROM orders WHERE status IN (?, ?)`
	rows, err := q.db.QueryContext(ctx, query, domain.StatusPending, domain.StatusTriggered)
	if err != nil {
		return nil, fmt.Errorf("failed to query open order symbols: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// --- Multi-leg orders ---

const mloColumns = `id, account_id, underlying, order_type, net_price, status, strategy, created_at, filled_at, updated_at`
const legColumns = `id, multi_leg_id, symbol, kind, side, quantity, price, filled_quantity, filled_price, status, underlying, strike, expiration, option_kind`

func (q queries) CreateMultiLegOrder(ctx context.Context, mlo *domain.MultiLegOrder, legs []*domain.OrderLeg) error {
	const insOrder = `
	INSERT INTO multi_leg_orders (` + mloColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.db.ExecContext(ctx, insOrder,
		mlo.ID, mlo.AccountID, mlo.Underlying, mlo.OrderType, mlo.NetPrice.String(),
		mlo.Status, mlo.Strategy, mlo.CreatedAt, nullTimePtr(mlo.FilledAt), mlo.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert multi-leg order %s: %w: %w", mlo.ID, ports.ErrUpdateFailed, err)
	}

	const insLeg = `
	INSERT INTO order_legs (` + legColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, l := range legs {
		if _, err := q.db.ExecContext(ctx, insLeg,
			l.ID, l.MultiLegID, l.Symbol, l.Kind, l.Side, l.Quantity, l.Price.String(),
			l.FilledQuantity, nullDecimal(l.FilledPrice), l.Status,
			l.Underlying, l.Strike.String(), nullTime(l.Expiration), l.OptionKind); err != nil {
			return fmt.Errorf("failed to insert leg %s of %s: %w: %w", l.ID, mlo.ID, ports.ErrUpdateFailed, err)
		}
	}
	q.logger.Debug(ctx, "Multi-leg order created", map[string]interface{}{"multiLegID": mlo.ID, "legs": len(legs), "strategy": mlo.Strategy})
	return nil
}

func (q queries) GetMultiLegOrder(ctx context.Context, id string) (*domain.MultiLegOrder, []*domain.OrderLeg, error) {
	query := `SELECT ` + mloColumns + ` FROM multi_leg_orders WHERE id = ?`
	mlo, err := scanMultiLeg(q.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to query multi-leg order %s: %w: %w", id, ports.ErrQueryFailed, err)
	}

	legQuery := `SELECT ` + legColumns + ` FROM order_legs WHERE multi_leg_id = ? ORDER BY id`
	rows, err := q.db.QueryContext(ctx, legQuery, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query legs of %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	legs := make([]*domain.OrderLeg, 0, 4)
	for rows.Next() {
		leg, err := scanLeg(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan leg of %s: %w", id, err)
		}
		legs = append(legs, leg)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating legs of %s: %w", id, err)
	}
	return mlo, legs, nil
}

func (q queries) UpdateMultiLegOrder(ctx context.Context, mlo *domain.MultiLegOrder) error {
	const query = `
	UPDATE multi_leg_orders SET status = ?, filled_at = ?, updated_at = ? WHERE id = ?`
	res, err := q.db.ExecContext(ctx, query, mlo.Status, nullTimePtr(mlo.FilledAt), mlo.UpdatedAt, mlo.ID)
	if err != nil {
		return fmt.Errorf("failed to update multi-leg order %s: %w: %w", mlo.ID, ports.ErrUpdateFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("multi-leg order %s not found for update: %w", mlo.ID, ports.ErrNotFound)
	}
	return nil
}

func (q queries) UpdateOrderLeg(ctx context.Context, leg *domain.OrderLeg) error {
	const query = `
	UPDATE order_legs SET filled_quantity = ?, filled_price = ?, status = ? WHERE id = ?`
	res, err := q.db.ExecContext(ctx, query,
		leg.FilledQuantity, nullDecimal(leg.FilledPrice), leg.Status, leg.ID)
	if err != nil {
		return fmt.Errorf("failed to update leg %s: %w: %w", leg.ID, ports.ErrUpdateFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("leg %s not found for update: %w", leg.ID, ports.ErrNotFound)
	}
	return nil
}

func (q queries) ListOpenMultiLegOrders(ctx context.Context, accountID string) ([]*domain.MultiLegOrder, error) {
	query := `SELECT ` + mloColumns + ` FROM multi_leg_orders
	WHERE (account_id = ? OR ? = '') AND status IN (?, ?) ORDER BY created_at`
	rows, err := q.db.QueryContext(ctx, query, accountID, accountID, domain.StatusPending, domain.StatusTriggered)
	if err != nil {
		return nil, fmt.Errorf("failed to query open multi-leg orders for %s: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	orders := make([]*domain.MultiLegOrder, 0)
	for rows.Next() {
		mlo, err := scanMultiLeg(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan multi-leg order: %w", err)
		}
		orders = append(orders, mlo)
	}
	return orders, rows.Err()
}

// --- Transactions ---

func (q queries) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	const query = `
	INSERT INTO transactions (id, account_id, order_id, symbol, kind, side, quantity, price, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.db.ExecContext(ctx, query,
		t.ID, t.AccountID, t.OrderID, t.Symbol, t.Kind, t.Side, t.Quantity, t.Price.String(), t.ExecutedAt); err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w: %w", t.ID, ports.ErrUpdateFailed, err)
	}
	return nil
}

func (q queries) ListTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	const query = `
	SELECT id, account_id, order_id, symbol, kind, side, quantity, price, executed_at
	FROM transactions WHERE account_id = ? ORDER BY executed_at, id`
	rows, err := q.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for %s: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	txns := make([]*domain.Transaction, 0)
	for rows.Next() {
		t := &domain.Transaction{}
		var price string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.OrderID, &t.Symbol, &t.Kind, &t.Side, &t.Quantity, &price, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("corrupt price on transaction %s: %w", t.ID, err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// --- Quote history (scenario data) ---

// RecordQuote appends a quote row for the database-backed scenario source.
func (s *Store) RecordQuote(ctx context.Context, q *domain.Quote) error {
	const query = `
	INSERT INTO quotes (symbol, price, bid, ask, recorded_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		q.Symbol, q.Price.String(), q.Bid.String(), q.Ask.String(), q.Timestamp); err != nil {
		return fmt.Errorf("failed to insert quote for %s: %w: %w", q.Symbol, ports.ErrUpdateFailed, err)
	}
	return nil
}

// RecordOptionQuote appends an option quote row for the scenario source.
func (s *Store) RecordOptionQuote(ctx context.Context, q *domain.OptionQuote) error {
	const query = `
	INSERT INTO quotes (symbol, price, bid, ask, implied_vol, underlying_price, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		q.ContractID, q.Price.String(), q.Bid.String(), q.Ask.String(),
		q.ImpliedVol, q.UnderlyingPrice.String(), q.Timestamp); err != nil {
		return fmt.Errorf("failed to insert option quote for %s: %w: %w", q.ContractID, ports.ErrUpdateFailed, err)
	}
	return nil
}

// LatestQuote returns the most recent stored quote for a symbol, or
// (nil, nil) when none is recorded.
func (s *Store) LatestQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	const query = `
	SELECT symbol, price, bid, ask, recorded_at FROM quotes
	WHERE symbol = ? ORDER BY recorded_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, symbol)

	q := &domain.Quote{}
	var price, bid, ask string
	err := row.Scan(&q.Symbol, &price, &bid, &ask, &q.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest quote for %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	if q.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("corrupt quote price for %s: %w", symbol, err)
	}
	q.Bid, _ = decimal.NewFromString(bid)
	q.Ask, _ = decimal.NewFromString(ask)
	return q, nil
}

// LatestOptionQuote returns the most recent stored option quote, or
// (nil, nil) when none is recorded.
func (s *Store) LatestOptionQuote(ctx context.Context, contractID string) (*domain.OptionQuote, error) {
	const query = `
	SELECT symbol, price, bid, ask, implied_vol, underlying_price, recorded_at FROM quotes
	WHERE symbol = ? ORDER BY recorded_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, contractID)

	q := &domain.OptionQuote{}
	var price, bid, ask, und string
	err := row.Scan(&q.ContractID, &price, &bid, &ask, &q.ImpliedVol, &und, &q.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest option quote for %s: %w: %w", contractID, ports.ErrQueryFailed, err)
	}
	if q.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("corrupt option quote price for %s: %w", contractID, err)
	}
	q.Bid, _ = decimal.NewFromString(bid)
	q.Ask, _ = decimal.NewFromString(ask)
	q.UnderlyingPrice, _ = decimal.NewFromString(und)
	return q, nil
}

// --- Scan helpers ---

// scanner is compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var avgCost, strike string
	var expiration sql.NullTime
	err := s.Scan(&p.AccountID, &p.Symbol, &p.Kind, &p.Quantity, &avgCost,
		&p.Underlying, &strike, &expiration, &p.OptionKind, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.AvgCost, err = decimal.NewFromString(avgCost); err != nil {
		return nil, fmt.Errorf("corrupt avg_cost for %s/%s: %w", p.AccountID, p.Symbol, err)
	}
	p.Strike, _ = decimal.NewFromString(strike)
	if expiration.Valid {
		p.Expiration = expiration.Time
	}
	return p, nil
}

func collectPositions(rows *sql.Rows) ([]*domain.Position, error) {
	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var limit, stop, trailAmt, trailPct, trailExt, fill sql.NullString
	var triggeredAt, filledAt sql.NullTime
	err := s.Scan(&o.ID, &o.AccountID, &o.Symbol, &o.Kind, &o.Side, &o.Quantity, &o.Condition,
		&limit, &stop, &trailAmt, &trailPct, &trailExt, &o.Status, &fill,
		&o.CreatedAt, &triggeredAt, &filledAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.LimitPrice, err = decimalPtr(limit); err != nil {
		return nil, err
	}
	if o.StopPrice, err = decimalPtr(stop); err != nil {
		return nil, err
	}
	if o.TrailAmount, err = decimalPtr(trailAmt); err != nil {
		return nil, err
	}
	if o.TrailPercent, err = decimalPtr(trailPct); err != nil {
		return nil, err
	}
	if o.TrailExtreme, err = decimalPtr(trailExt); err != nil {
		return nil, err
	}
	if o.FillPrice, err = decimalPtr(fill); err != nil {
		return nil, err
	}
	if triggeredAt.Valid {
		t := triggeredAt.Time
		o.TriggeredAt = &t
	}
	if filledAt.Valid {
		t := filledAt.Time
		o.FilledAt = &t
	}
	return o, nil
}

func collectOrders(rows *sql.Rows) ([]*domain.Order, error) {
	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanMultiLeg(s scanner) (*domain.MultiLegOrder, error) {
	m := &domain.MultiLegOrder{}
	var net string
	var filledAt sql.NullTime
	err := s.Scan(&m.ID, &m.AccountID, &m.Underlying, &m.OrderType, &net,
		&m.Status, &m.Strategy, &m.CreatedAt, &filledAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if m.NetPrice, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("corrupt net_price on %s: %w", m.ID, err)
	}
	if filledAt.Valid {
		t := filledAt.Time
		m.FilledAt = &t
	}
	return m, nil
}

func scanLeg(s scanner) (*domain.OrderLeg, error) {
	l := &domain.OrderLeg{}
	var price, strike string
	var filledPrice sql.NullString
	var expiration sql.NullTime
	err := s.Scan(&l.ID, &l.MultiLegID, &l.Symbol, &l.Kind, &l.Side, &l.Quantity, &price,
		&l.FilledQuantity, &filledPrice, &l.Status, &l.Underlying, &strike, &expiration, &l.OptionKind)
	if err != nil {
		return nil, err
	}
	if l.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("corrupt price on leg %s: %w", l.ID, err)
	}
	if l.FilledPrice, err = decimalPtr(filledPrice); err != nil {
		return nil, err
	}
	l.Strike, _ = decimal.NewFromString(strike)
	if expiration.Valid {
		l.Expiration = expiration.Time
	}
	return l, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func decimalPtr(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("corrupt decimal value %q: %w", ns.String, err)
	}
	return &d, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
