package trading

import (
	"context"
	"errors"
	"sync"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/shopspring/decimal"
)

// CashBook answers cash balances. Account funding lives outside this
// service.
type CashBook interface {
	CashBalance(ctx context.Context, owner string) (decimal.Decimal, error)
}

// StaticCash gives every owner the same configured balance unless an
// override was set for them.
type StaticCash struct {
	mu        sync.RWMutex
	Default   decimal.Decimal
	overrides map[string]decimal.Decimal
}

func NewStaticCash(def decimal.Decimal) *StaticCash {
	return &StaticCash{Default: def, overrides: make(map[string]decimal.Decimal)}
}

func (c *StaticCash) Set(owner string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[owner] = amount
}

func (c *StaticCash) CashBalance(_ context.Context, owner string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.overrides[owner]; ok {
		return v, nil
	}
	return c.Default, nil
}

// Holdings joins a cash book with positions from the store.
type Holdings struct {
	Cash  CashBook
	Store journal.Store
}

var _ broker.Holdings = Holdings{}

func (h Holdings) CashBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	return h.Cash.CashBalance(ctx, owner)
}

func (h Holdings) PositionQuantity(ctx context.Context, owner, symbol string) (int64, error) {
	p, err := h.Store.GetPosition(ctx, owner, symbol)
	if errors.Is(err, broker.ErrPositionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return p.Quantity, nil
}
