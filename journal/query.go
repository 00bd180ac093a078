package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, owner_id, symbol, kind, side, quantity, price, stop_price, status, filled_quantity,
	average_fill_price, time_in_force, created_at, updated_at, expires_at, closed_at`

const tradeColumns = `id, order_id, owner_id, symbol, side, quantity, price, commission, executed_at, settlement_date`

const positionColumns = `owner_id, symbol, quantity, average_cost, market_value, unrealized_pnl, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (broker.Order, error) {
	var (
		o                       broker.Order
		kind, side, status, tif string
		price, stop, avg        decimal.NullDecimal
		created, updated        int64
		expires, closed         sql.NullInt64
	)
	if err := row.Scan(
		&o.ID, &o.OwnerID, &o.Symbol, &kind, &side, &o.Quantity,
		&price, &stop, &status, &o.FilledQuantity,
		&avg, &tif, &created, &updated, &expires, &closed,
	); err != nil {
		return broker.Order{}, err
	}
	o.Kind = broker.Kind(kind)
	o.Side = broker.Side(side)
	o.Status = broker.Status(status)
	o.TimeInForce = broker.TimeInForce(tif)
	o.Price = fromNullDecimal(price)
	o.StopPrice = fromNullDecimal(stop)
	o.AverageFillPrice = fromNullDecimal(avg)
	o.CreatedAt = fromNanos(created)
	o.UpdatedAt = fromNanos(updated)
	o.ExpiresAt = fromNullNanos(expires)
	o.ClosedAt = fromNullNanos(closed)
	return o, nil
}

func scanTrade(row scanner) (broker.Trade, error) {
	var (
		t        broker.Trade
		side     string
		executed int64
		settle   sql.NullInt64
	)
	if err := row.Scan(
		&t.ID, &t.OrderID, &t.OwnerID, &t.Symbol, &side, &t.Quantity,
		&t.Price, &t.Commission, &executed, &settle,
	); err != nil {
		return broker.Trade{}, err
	}
	t.Side = broker.Side(side)
	t.ExecutedAt = fromNanos(executed)
	t.SettlementDate = fromNullNanos(settle)
	return t, nil
}

func scanPosition(row scanner) (broker.Position, error) {
	var (
		p                broker.Position
		created, updated int64
	)
	if err := row.Scan(
		&p.OwnerID, &p.Symbol, &p.Quantity, &p.AverageCost,
		&p.MarketValue, &p.UnrealizedPnL, &created, &updated,
	); err != nil {
		return broker.Position{}, err
	}
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return p, nil
}

func getOrder(ctx context.Context, q querier, owner, id string) (broker.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = ? AND (? = '' OR owner_id = ?)`, id, owner, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return broker.Order{}, fmt.Errorf("order %q: %w", id, broker.ErrOrderNotFound)
		}
		return broker.Order{}, err
	}
	return o, nil
}

func getPosition(ctx context.Context, q querier, owner, symbol string) (broker.Position, error) {
	p, err := scanPosition(q.QueryRowContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE owner_id = ? AND symbol = ?`, owner, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return broker.Position{}, fmt.Errorf("position %q: %w", broker.PositionKey(owner, symbol), broker.ErrPositionNotFound)
		}
		return broker.Position{}, err
	}
	return p, nil
}

func (s *SQLite) GetPosition(ctx context.Context, owner, symbol string) (broker.Position, error) {
	return getPosition(ctx, s.db, owner, symbol)
}

// ListOrders returns an owner's orders newest first.
func (s *SQLite) ListOrders(ctx context.Context, q OrderQuery) ([]broker.Order, error) {
	var (
		where []string
		args  []any
	)
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*q.Status))
	}
	if q.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, q.Symbol)
	}

	p := q.Page.Normalize()
	args = append(args, p.Limit, p.Offset)

	return s.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders`+whereClause(where)+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, args...)
}

// OpenOrders returns every PENDING or PARTIALLY_FILLED order, oldest first.
func (s *SQLite) OpenOrders(ctx context.Context) ([]broker.Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status IN (?, ?)
		ORDER BY created_at ASC, id ASC`, string(broker.Pending), string(broker.PartiallyFilled))
}

// ExpiredOrders returns open orders whose expiry is at or before now.
func (s *SQLite) ExpiredOrders(ctx context.Context, now time.Time) ([]broker.Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status IN (?, ?) AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC`, string(broker.Pending), string(broker.PartiallyFilled), nanos(now))
}

func (s *SQLite) queryOrders(ctx context.Context, query string, args ...any) ([]broker.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTrades returns trades newest first.
func (s *SQLite) ListTrades(ctx context.Context, q TradeQuery) ([]broker.Trade, error) {
	var (
		where []string
		args  []any
	)
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, q.Symbol)
	}
	if !q.Since.IsZero() {
		where = append(where, "executed_at >= ?")
		args = append(args, nanos(q.Since))
	}
	if !q.Until.IsZero() {
		where = append(where, "executed_at < ?")
		args = append(args, nanos(q.Until))
	}

	p := q.Page.Normalize()
	args = append(args, p.Limit, p.Offset)

	return s.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades`+whereClause(where)+`
		ORDER BY executed_at DESC, id DESC
		LIMIT ? OFFSET ?`, args...)
}

// TradesFor returns the full trade history of one position, oldest first.
func (s *SQLite) TradesFor(ctx context.Context, owner, symbol string) ([]broker.Trade, error) {
	return s.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE owner_id = ? AND symbol = ?
		ORDER BY executed_at ASC, id ASC`, owner, symbol)
}

func (s *SQLite) queryTrades(ctx context.Context, query string, args ...any) ([]broker.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPositions returns positions ordered by owner and symbol. Flat
// positions are left out unless IncludeFlat is set.
func (s *SQLite) ListPositions(ctx context.Context, q PositionQuery) ([]broker.Position, error) {
	var (
		where []string
		args  []any
	)
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if !q.IncludeFlat {
		where = append(where, "quantity > 0")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions`+whereClause(where)+`
		ORDER BY owner_id ASC, symbol ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND ")
}
