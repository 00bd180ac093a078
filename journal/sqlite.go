package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLite struct {
	db *sql.DB
}

// NewSQLite opens path with the cgo sqlite3 driver.
func NewSQLite(path string) (*SQLite, error) {
	return OpenSQLite("sqlite3", path)
}

// OpenSQLite opens path with the named driver and creates the schema.
// The pool is held to a single connection: SQLite serializes writers
// anyway, and one connection keeps ":memory:" databases coherent.
func OpenSQLite(driver, path string) (*SQLite, error) {
	switch driver {
	case "", "sqlite3":
		driver = "sqlite3"
	case "sqlite":
	default:
		return nil, fmt.Errorf("open store: unknown driver %q", driver)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open store %s: %s: %w", path, pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open store %s: schema: %w", path, err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) InsertOrder(ctx context.Context, o broker.Order) error {
	if err := o.Check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, owner_id, symbol, kind, side, quantity, price, stop_price, status, filled_quantity,
		 average_fill_price, time_in_force, created_at, updated_at, expires_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OwnerID, o.Symbol, string(o.Kind), string(o.Side), o.Quantity,
		nullDecimal(o.Price), nullDecimal(o.StopPrice), string(o.Status), o.FilledQuantity,
		nullDecimal(o.AverageFillPrice), string(o.TimeInForce),
		nanos(o.CreatedAt), nanos(o.UpdatedAt), nullNanos(o.ExpiresAt), nullNanos(o.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (s *SQLite) GetOrder(ctx context.Context, owner, id string) (broker.Order, error) {
	return getOrder(ctx, s.db, owner, id)
}

func (s *SQLite) Transition(ctx context.Context, id, owner string, to broker.Status, at time.Time) (broker.Order, error) {
	from := broker.SourcesFor(to)
	if len(from) == 0 {
		return broker.Order{}, fmt.Errorf("transition %s: %w: nothing moves into %s", id, broker.ErrInvalidState, to)
	}

	var closed *time.Time
	if to.Terminal() {
		closed = &at
	}

	args := []any{string(to), nanos(at), nullNanos(closed), id, owner, owner}
	args = append(args, statusArgs(from)...)

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?, closed_at = ?
		WHERE id = ? AND (? = '' OR owner_id = ?) AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return broker.Order{}, fmt.Errorf("transition %s to %s: %w", id, to, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return broker.Order{}, err
	}
	o, err := getOrder(ctx, s.db, owner, id)
	if err != nil {
		return broker.Order{}, err
	}
	if n == 0 {
		return o, fmt.Errorf("transition %s to %s: %w (status %s)", id, to, broker.ErrOrderNotPending, o.Status)
	}
	return o, nil
}

func (s *SQLite) Fill(ctx context.Context, f Fill, mutate PositionMutator) (FillResult, error) {
	t := f.Trade

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return FillResult{}, fmt.Errorf("fill %s: begin: %w", t.OrderID, err)
	}
	defer func() { _ = tx.Rollback() }()

	at := t.ExecutedAt.UTC()
	args := []any{string(broker.Filled), t.Quantity, t.Price.String(), nanos(at), nanos(at),
		t.OrderID, t.OwnerID, t.Symbol, string(t.Side), t.Quantity}
	args = append(args, statusArgs(broker.SourcesFor(broker.Filled))...)

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, filled_quantity = filled_quantity + ?, average_fill_price = ?, updated_at = ?, closed_at = ?
		WHERE id = ? AND owner_id = ? AND symbol = ? AND side = ? AND quantity - filled_quantity = ?
		  AND status IN (`+placeholders(len(broker.SourcesFor(broker.Filled)))+`)`,
		args...,
	)
	if err != nil {
		return FillResult{}, fmt.Errorf("fill %s: update order: %w", t.OrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return FillResult{}, err
	}
	if n == 0 {
		o, err := getOrder(ctx, tx, "", t.OrderID)
		if err != nil {
			return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, err)
		}
		if !o.Status.Open() {
			return FillResult{}, fmt.Errorf("fill %s: %w (status %s)", t.OrderID, broker.ErrOrderNotPending, o.Status)
		}
		return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, ErrFillMismatch)
	}

	pos, err := getPosition(ctx, tx, t.OwnerID, t.Symbol)
	if errors.Is(err, broker.ErrPositionNotFound) {
		pos = broker.Position{
			OwnerID:       t.OwnerID,
			Symbol:        t.Symbol,
			AverageCost:   decimal.Zero,
			MarketValue:   decimal.Zero,
			UnrealizedPnL: decimal.Zero,
			CreatedAt:     at,
		}
	} else if err != nil {
		return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, err)
	}

	next, err := mutate(pos)
	if err != nil {
		return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, err)
	}
	next.UpdatedAt = at

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades
		(id, order_id, owner_id, symbol, side, quantity, price, commission, executed_at, settlement_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrderID, t.OwnerID, t.Symbol, string(t.Side), t.Quantity,
		t.Price.String(), t.Commission.String(), nanos(at), nullNanos(t.SettlementDate),
	); err != nil {
		return FillResult{}, fmt.Errorf("fill %s: insert trade: %w", t.OrderID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO positions
		(owner_id, symbol, quantity, average_cost, market_value, unrealized_pnl, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			average_cost = excluded.average_cost,
			market_value = excluded.market_value,
			unrealized_pnl = excluded.unrealized_pnl,
			updated_at = excluded.updated_at`,
		next.OwnerID, next.Symbol, next.Quantity, next.AverageCost.String(),
		next.MarketValue.String(), next.UnrealizedPnL.String(),
		nanos(next.CreatedAt), nanos(next.UpdatedAt),
	); err != nil {
		return FillResult{}, fmt.Errorf("fill %s: write position: %w", t.OrderID, err)
	}

	o, err := getOrder(ctx, tx, "", t.OrderID)
	if err != nil {
		return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, err)
	}

	if err := tx.Commit(); err != nil {
		return FillResult{}, fmt.Errorf("fill %s: commit: %w", t.OrderID, err)
	}

	t.ExecutedAt = at
	return FillResult{Order: o, Trade: t, Position: next}, nil
}

func (s *SQLite) SetValuation(ctx context.Context, owner, symbol string, marketValue, unrealized decimal.Decimal, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET market_value = ?, unrealized_pnl = ?, updated_at = ?
		WHERE owner_id = ? AND symbol = ?`,
		marketValue.String(), unrealized.String(), nanos(at), owner, symbol,
	)
	if err != nil {
		return fmt.Errorf("set valuation %s: %w", broker.PositionKey(owner, symbol), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("set valuation %s: %w", broker.PositionKey(owner, symbol), broker.ErrPositionNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(ss []broker.Status) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func fromNullDecimal(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}
