package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	Market    Kind = "MARKET"
	Limit     Kind = "LIMIT"
	Stop      Kind = "STOP"
	StopLimit Kind = "STOP_LIMIT"
)

// NeedsPrice reports whether orders of this kind carry a limit price.
func (k Kind) NeedsPrice() bool { return k == Limit || k == StopLimit }

// NeedsStopPrice reports whether orders of this kind carry a stop price.
func (k Kind) NeedsStopPrice() bool { return k == Stop || k == StopLimit }

func (k Kind) Valid() bool {
	switch k {
	case Market, Limit, Stop, StopLimit:
		return true
	}
	return false
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

type TimeInForce string

const (
	Day TimeInForce = "DAY"
	GTC TimeInForce = "GTC"
)

func (t TimeInForce) Valid() bool { return t == Day || t == GTC }

type Status string

const (
	Pending         Status = "PENDING"
	PartiallyFilled Status = "PARTIALLY_FILLED"
	Filled          Status = "FILLED"
	Cancelled       Status = "CANCELLED"
	Rejected        Status = "REJECTED"
	Expired         Status = "EXPIRED"
)

// transitions is the order state machine. Terminal statuses have no entry.
// PARTIALLY_FILLED is reachable but nothing produces it yet.
var transitions = map[Status][]Status{
	Pending:         {Filled, Cancelled, Rejected, Expired, PartiallyFilled},
	PartiallyFilled: {Filled, Expired},
}

// Open reports whether the engine should still evaluate an order in this status.
func (s Status) Open() bool { return s == Pending || s == PartiallyFilled }

func (s Status) Terminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	return s == Pending || s == PartiallyFilled || s.Terminal()
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor returns every status from which `to` may be entered. The
// store uses it to build conditional updates.
func SourcesFor(to Status) []Status {
	var out []Status
	for _, from := range []Status{Pending, PartiallyFilled} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

// OrderRequest is what a client submits.
type OrderRequest struct {
	Symbol      string           `json:"symbol"`
	Kind        Kind             `json:"order_type"`
	Side        Side             `json:"side"`
	Quantity    int64            `json:"quantity"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce TimeInForce      `json:"time_in_force,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
}

// Normalize upper-cases the symbol and fills in the default time-in-force.
func (r OrderRequest) Normalize() OrderRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Kind = Kind(strings.ToUpper(string(r.Kind)))
	r.Side = Side(strings.ToUpper(string(r.Side)))
	r.TimeInForce = TimeInForce(strings.ToUpper(string(r.TimeInForce)))
	if r.TimeInForce == "" {
		r.TimeInForce = Day
	}
	return r
}

type Order struct {
	ID               string           `json:"id"`
	OwnerID          string           `json:"user_id"`
	Symbol           string           `json:"symbol"`
	Kind             Kind             `json:"order_type"`
	Side             Side             `json:"side"`
	Quantity         int64            `json:"quantity"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	StopPrice        *decimal.Decimal `json:"stop_price,omitempty"`
	Status           Status           `json:"status"`
	FilledQuantity   int64            `json:"filled_quantity"`
	AverageFillPrice *decimal.Decimal `json:"average_fill_price,omitempty"`
	TimeInForce      TimeInForce      `json:"time_in_force"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	ClosedAt         *time.Time       `json:"closed_at,omitempty"`
}

// NewOrder builds a PENDING order from an already validated request.
// DAY orders without an explicit expiry expire at the end of the UTC day
// they were created in.
func NewOrder(id, owner string, req OrderRequest, now time.Time) Order {
	now = now.UTC()
	o := Order{
		ID:          id,
		OwnerID:     owner,
		Symbol:      req.Symbol,
		Kind:        req.Kind,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		Status:      Pending,
		TimeInForce: req.TimeInForce,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   req.ExpiresAt,
	}
	if o.ExpiresAt == nil && o.TimeInForce == Day {
		eod := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
		o.ExpiresAt = &eod
	}
	return o
}

// Remaining is the quantity still to be executed.
func (o Order) Remaining() int64 { return o.Quantity - o.FilledQuantity }

// Check verifies the structural invariants of a stored order.
func (o Order) Check() error {
	if o.Quantity <= 0 {
		return fmt.Errorf("order %s: quantity %d must be positive", o.ID, o.Quantity)
	}
	if o.FilledQuantity < 0 || o.FilledQuantity > o.Quantity {
		return fmt.Errorf("order %s: filled quantity %d outside [0, %d]", o.ID, o.FilledQuantity, o.Quantity)
	}
	if (o.Price != nil) != o.Kind.NeedsPrice() {
		return fmt.Errorf("order %s: price set mismatch for %s", o.ID, o.Kind)
	}
	if (o.StopPrice != nil) != o.Kind.NeedsStopPrice() {
		return fmt.Errorf("order %s: stop price set mismatch for %s", o.ID, o.Kind)
	}
	if o.Status.Terminal() && o.ClosedAt == nil {
		return fmt.Errorf("order %s: terminal status %s without closed_at", o.ID, o.Status)
	}
	return nil
}

// Expired reports whether the order's validity window has passed.
func (o Order) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}
