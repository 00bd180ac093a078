// Package broker holds the order, trade and position model of the
// execution engine together with the ports it consumes.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrPositionNotFound = errors.New("position not found")
	// ErrOrderNotPending is returned when a conditional transition finds
	// the order already moved on. Callers treat it as a lost race.
	ErrOrderNotPending = errors.New("order is no longer pending")
	ErrInvalidState    = errors.New("order is not in a cancellable state")
)

// Trade is the immutable record of one execution against an order.
type Trade struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	OwnerID        string          `json:"user_id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Commission     decimal.Decimal `json:"commission"`
	ExecutedAt     time.Time       `json:"executed_at"`
	SettlementDate *time.Time      `json:"settlement_date,omitempty"`
}

// Notional is quantity times execution price, commission excluded.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Position is the net holding of one symbol for one owner.
type Position struct {
	OwnerID       string          `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PositionID identifies the (owner, symbol) pair a position belongs to.
// It is comparable and used as a map key; String is for display only.
type PositionID struct {
	Owner  string
	Symbol string
}

func (k PositionID) String() string { return k.Owner + "/" + k.Symbol }

func (p Position) Key() PositionID { return PositionKey(p.OwnerID, p.Symbol) }

func PositionKey(owner, symbol string) PositionID {
	return PositionID{Owner: owner, Symbol: symbol}
}

// RealizedPnL is what selling qty at price would realize against the
// current average cost. It is never stored.
func (p Position) RealizedPnL(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Sub(p.AverageCost).Mul(decimal.NewFromInt(qty))
}

// Holdings is the read-only view of balances the validator checks against.
type Holdings interface {
	CashBalance(ctx context.Context, owner string) (decimal.Decimal, error)
	PositionQuantity(ctx context.Context, owner, symbol string) (int64, error)
}

// Notifier receives executed trades. Implementations must not block; a
// returned error is logged and never rolls the trade back.
type Notifier interface {
	TradeExecuted(ctx context.Context, t Trade) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) TradeExecuted(context.Context, Trade) error { return nil }
