package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
)

// Memory is a Store held in process memory. A single mutex makes every
// method atomic, which gives it the same conditional-update semantics as
// the SQLite store.
type Memory struct {
	mu        sync.Mutex
	orders    map[string]broker.Order
	trades    []broker.Trade
	tradeByOr map[string]string
	positions map[broker.PositionID]broker.Position
}

func NewMemory() *Memory {
	return &Memory{
		orders:    make(map[string]broker.Order),
		tradeByOr: make(map[string]string),
		positions: make(map[broker.PositionID]broker.Position),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) InsertOrder(_ context.Context, o broker.Order) error {
	if err := o.Check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("insert order %s: duplicate id", o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) getOrderLocked(owner, id string) (broker.Order, error) {
	o, ok := m.orders[id]
	if !ok || (owner != "" && o.OwnerID != owner) {
		return broker.Order{}, fmt.Errorf("order %q: %w", id, broker.ErrOrderNotFound)
	}
	return o, nil
}

func (m *Memory) GetOrder(_ context.Context, owner, id string) (broker.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrderLocked(owner, id)
}

func (m *Memory) ListOrders(_ context.Context, q OrderQuery) ([]broker.Order, error) {
	m.mu.Lock()
	var out []broker.Order
	for _, o := range m.orders {
		if q.OwnerID != "" && o.OwnerID != q.OwnerID {
			continue
		}
		if q.Status != nil && o.Status != *q.Status {
			continue
		}
		if q.Symbol != "" && o.Symbol != q.Symbol {
			continue
		}
		out = append(out, o)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, q.Page), nil
}

func (m *Memory) OpenOrders(_ context.Context) ([]broker.Order, error) {
	return m.selectOrders(func(o broker.Order) bool { return o.Status.Open() }), nil
}

func (m *Memory) ExpiredOrders(_ context.Context, now time.Time) ([]broker.Order, error) {
	return m.selectOrders(func(o broker.Order) bool { return o.Status.Open() && o.Expired(now) }), nil
}

// selectOrders returns matching orders oldest first.
func (m *Memory) selectOrders(keep func(broker.Order) bool) []broker.Order {
	m.mu.Lock()
	var out []broker.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) Transition(_ context.Context, id, owner string, to broker.Status, at time.Time) (broker.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.getOrderLocked(owner, id)
	if err != nil {
		return broker.Order{}, err
	}
	if len(broker.SourcesFor(to)) == 0 {
		return o, fmt.Errorf("transition %s: %w: nothing moves into %s", id, broker.ErrInvalidState, to)
	}
	if !o.Status.CanTransition(to) {
		return o, fmt.Errorf("transition %s to %s: %w (status %s)", id, to, broker.ErrOrderNotPending, o.Status)
	}

	at = at.UTC()
	o.Status = to
	o.UpdatedAt = at
	if to.Terminal() {
		o.ClosedAt = &at
	}
	m.orders[id] = o
	return o, nil
}

func (m *Memory) Fill(_ context.Context, f Fill, mutate PositionMutator) (FillResult, error) {
	t := f.Trade
	t.ExecutedAt = t.ExecutedAt.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.getOrderLocked("", t.OrderID)
	if err != nil {
		return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, err)
	}
	if !o.Status.CanTransition(broker.Filled) {
		return FillResult{}, fmt.Errorf("fill %s: %w (status %s)", t.OrderID, broker.ErrOrderNotPending, o.Status)
	}
	if o.OwnerID != t.OwnerID || o.Symbol != t.Symbol || o.Side != t.Side || o.Remaining() != t.Quantity {
		return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, ErrFillMismatch)
	}
	if _, dup := m.tradeByOr[t.OrderID]; dup {
		return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, ErrFillMismatch)
	}

	key := broker.PositionKey(t.OwnerID, t.Symbol)
	pos, ok := m.positions[key]
	if !ok {
		pos = broker.Position{
			OwnerID:       t.OwnerID,
			Symbol:        t.Symbol,
			AverageCost:   decimal.Zero,
			MarketValue:   decimal.Zero,
			UnrealizedPnL: decimal.Zero,
			CreatedAt:     t.ExecutedAt,
		}
	}
	next, err := mutate(pos)
	if err != nil {
		return FillResult{}, fmt.Errorf("fill %s: %w", t.OrderID, err)
	}
	next.UpdatedAt = t.ExecutedAt

	price := t.Price
	o.Status = broker.Filled
	o.FilledQuantity += t.Quantity
	o.AverageFillPrice = &price
	o.UpdatedAt = t.ExecutedAt
	closed := t.ExecutedAt
	o.ClosedAt = &closed

	m.orders[o.ID] = o
	m.trades = append(m.trades, t)
	m.tradeByOr[t.OrderID] = t.ID
	m.positions[key] = next

	return FillResult{Order: o, Trade: t, Position: next}, nil
}

func (m *Memory) ListTrades(_ context.Context, q TradeQuery) ([]broker.Trade, error) {
	m.mu.Lock()
	var out []broker.Trade
	for _, t := range m.trades {
		if q.OwnerID != "" && t.OwnerID != q.OwnerID {
			continue
		}
		if q.Symbol != "" && t.Symbol != q.Symbol {
			continue
		}
		if !q.Since.IsZero() && t.ExecutedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && !t.ExecutedAt.Before(q.Until) {
			continue
		}
		out = append(out, t)
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.After(out[j].ExecutedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, q.Page), nil
}

func (m *Memory) TradesFor(_ context.Context, owner, symbol string) ([]broker.Trade, error) {
	m.mu.Lock()
	var out []broker.Trade
	for _, t := range m.trades {
		if t.OwnerID == owner && t.Symbol == symbol {
			out = append(out, t)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.Before(out[j].ExecutedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetPosition(_ context.Context, owner, symbol string) (broker.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[broker.PositionKey(owner, symbol)]
	if !ok {
		return broker.Position{}, fmt.Errorf("position %q: %w", broker.PositionKey(owner, symbol), broker.ErrPositionNotFound)
	}
	return p, nil
}

func (m *Memory) ListPositions(_ context.Context, q PositionQuery) ([]broker.Position, error) {
	m.mu.Lock()
	var out []broker.Position
	for _, p := range m.positions {
		if q.OwnerID != "" && p.OwnerID != q.OwnerID {
			continue
		}
		if !q.IncludeFlat && p.Quantity <= 0 {
			continue
		}
		out = append(out, p)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (m *Memory) SetValuation(_ context.Context, owner, symbol string, marketValue, unrealized decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := broker.PositionKey(owner, symbol)
	p, ok := m.positions[key]
	if !ok {
		return fmt.Errorf("set valuation %s: %w", key, broker.ErrPositionNotFound)
	}
	p.MarketValue = marketValue
	p.UnrealizedPnL = unrealized
	p.UpdatedAt = at.UTC()
	m.positions[key] = p
	return nil
}

func paginate[T any](in []T, p Page) []T {
	p = p.Normalize()
	if p.Offset >= len(in) {
		return nil
	}
	end := p.Offset + p.Limit
	if end > len(in) {
		end = len(in)
	}
	return in[p.Offset:end]
}
