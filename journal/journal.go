// Package journal is the durable record of orders, trades and positions.
//
// Every order status change goes through a conditional update keyed on the
// order's current status, so concurrent writers (the evaluation loop, a
// cancel request, a second process) can never both act on one order.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// ErrFillMismatch means a fill's quantity or owner did not match the
// order it was applied to.
var ErrFillMismatch = errors.New("fill does not match order")

type Page struct {
	Offset int `json:"skip"`
	Limit  int `json:"limit"`
}

// Normalize clamps the page to [1, MaxPageSize] rows, defaulting to
// DefaultPageSize.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

type OrderQuery struct {
	OwnerID string
	Status  *broker.Status
	Symbol  string
	Page    Page
}

type TradeQuery struct {
	OwnerID string
	Symbol  string
	Since   time.Time // inclusive, zero means unbounded
	Until   time.Time // exclusive, zero means unbounded
	Page    Page
}

type PositionQuery struct {
	OwnerID     string
	IncludeFlat bool
}

// Fill is one execution to be recorded against an open order.
type Fill struct {
	Trade broker.Trade
}

// PositionMutator derives the next position state from the current one.
// Returning an error aborts the whole fill.
type PositionMutator func(broker.Position) (broker.Position, error)

type FillResult struct {
	Order    broker.Order
	Trade    broker.Trade
	Position broker.Position
}

// Store persists orders, trades and positions.
//
// Transition and Fill are compare-and-swap operations: they return
// broker.ErrOrderNotPending when the order has already left every status
// the target may be entered from, and broker.ErrOrderNotFound when no
// such order exists for the owner. An empty owner matches any owner.
//
// Fill moves the order to FILLED, inserts the trade and writes the
// position returned by mutate in one unit of work; nothing is written
// if any step fails.
type Store interface {
	InsertOrder(ctx context.Context, o broker.Order) error
	GetOrder(ctx context.Context, owner, id string) (broker.Order, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]broker.Order, error)
	OpenOrders(ctx context.Context) ([]broker.Order, error)
	ExpiredOrders(ctx context.Context, now time.Time) ([]broker.Order, error)
	Transition(ctx context.Context, id, owner string, to broker.Status, at time.Time) (broker.Order, error)

	Fill(ctx context.Context, f Fill, mutate PositionMutator) (FillResult, error)
	ListTrades(ctx context.Context, q TradeQuery) ([]broker.Trade, error)
	TradesFor(ctx context.Context, owner, symbol string) ([]broker.Trade, error)

	GetPosition(ctx context.Context, owner, symbol string) (broker.Position, error)
	ListPositions(ctx context.Context, q PositionQuery) ([]broker.Position, error)
	SetValuation(ctx context.Context, owner, symbol string, marketValue, unrealized decimal.Decimal, at time.Time) error

	Close() error
}

// Open returns the store for a configured driver: "memory", "sqlite3"
// (cgo, default) or "sqlite" (pure Go).
func Open(driver, path string) (Store, error) {
	if driver == "memory" {
		return NewMemory(), nil
	}
	s, err := OpenSQLite(driver, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}
