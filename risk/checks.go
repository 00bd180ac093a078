// Package risk holds the pre-trade checks run before an order is persisted.
package risk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
)

const (
	InvalidSymbol          = "INVALID_SYMBOL"
	InvalidSide            = "INVALID_SIDE"
	InvalidKind            = "INVALID_KIND"
	InvalidQuantity        = "INVALID_QUANTITY"
	MissingLimitPrice      = "MISSING_LIMIT_PRICE"
	UnexpectedLimitPrice   = "UNEXPECTED_LIMIT_PRICE"
	MissingStopPrice       = "MISSING_STOP_PRICE"
	UnexpectedStopPrice    = "UNEXPECTED_STOP_PRICE"
	UnsupportedTimeInForce = "UNSUPPORTED_TIME_IN_FORCE"
	ExpiryInPast           = "EXPIRY_IN_PAST"
	InsufficientFunds      = "INSUFFICIENT_FUNDS"
	InsufficientShares     = "INSUFFICIENT_SHARES"
	MaxOrderSize           = "MAX_ORDER_SIZE"
)

// symbolPattern is checked after normalization, so only upper case.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,16}$`)

type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	// Cost is quantity times the reference price, when one was known.
	Cost *decimal.Decimal
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Has reports whether a violation with the given code was recorded.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Err returns nil for an allowed decision, else a *ValidationError.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ValidationError{Violations: d.Violations}
}

// ValidationError carries every rule a rejected request broke.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Msg
	}
	return "order rejected: " + strings.Join(msgs, "; ")
}

type Validator struct {
	Policy Policy
}

func NewValidator(p Policy) *Validator {
	return &Validator{Policy: p}
}

// Validate checks req against the snapshot. It never stops at the first
// failure so the caller sees every violation at once.
func (v *Validator) Validate(req broker.OrderRequest, s Snapshot) Decision {
	d := Decision{Allowed: true}

	// Shape
	switch {
	case req.Symbol == "":
		d.add(InvalidSymbol, "symbol is required")
	case !symbolPattern.MatchString(req.Symbol):
		d.add(InvalidSymbol, fmt.Sprintf("symbol %q must be 1-16 of A-Z, 0-9, '.' or '-'", req.Symbol))
	}
	if !req.Side.Valid() {
		d.add(InvalidSide, fmt.Sprintf("side %q must be BUY or SELL", req.Side))
	}
	if !req.Kind.Valid() {
		d.add(InvalidKind, fmt.Sprintf("order type %q is not supported", req.Kind))
	}
	if req.Quantity <= 0 {
		d.add(InvalidQuantity, fmt.Sprintf("quantity %d must be positive", req.Quantity))
	}
	if req.Kind.NeedsPrice() {
		if req.Price == nil || !req.Price.IsPositive() {
			d.add(MissingLimitPrice, fmt.Sprintf("%s orders require a positive price", req.Kind))
		}
	} else if req.Price != nil && req.Kind.Valid() {
		d.add(UnexpectedLimitPrice, fmt.Sprintf("%s orders must not carry a price", req.Kind))
	}
	if req.Kind.NeedsStopPrice() {
		if req.StopPrice == nil || !req.StopPrice.IsPositive() {
			d.add(MissingStopPrice, fmt.Sprintf("%s orders require a positive stop price", req.Kind))
		}
	} else if req.StopPrice != nil && req.Kind.Valid() {
		d.add(UnexpectedStopPrice, fmt.Sprintf("%s orders must not carry a stop price", req.Kind))
	}
	if !req.TimeInForce.Valid() {
		d.add(UnsupportedTimeInForce, fmt.Sprintf("time in force %q is not supported", req.TimeInForce))
	}
	if req.ExpiresAt != nil && !s.Now.IsZero() && !req.ExpiresAt.After(s.Now) {
		d.add(ExpiryInPast, "expires_at must be in the future")
	}

	// Policy limits
	if v.Policy.MaxOrderQuantity > 0 && req.Quantity > v.Policy.MaxOrderQuantity {
		d.add(MaxOrderSize,
			fmt.Sprintf("quantity %d exceeds max order size %d", req.Quantity, v.Policy.MaxOrderQuantity))
	}

	// Balances
	if req.Quantity > 0 && s.ReferencePrice != nil {
		cost := s.ReferencePrice.Mul(decimal.NewFromInt(req.Quantity))
		d.Cost = &cost
		if req.Side == broker.Buy && cost.GreaterThan(s.Cash) {
			d.add(InsufficientFunds,
				fmt.Sprintf("insufficient buying power: cost %s exceeds cash %s", cost.StringFixed(2), s.Cash.StringFixed(2)))
		}
	}
	if req.Side == broker.Sell && req.Quantity > 0 && req.Quantity > s.Held {
		d.add(InsufficientShares,
			fmt.Sprintf("insufficient shares to sell: have %d, want %d", s.Held, req.Quantity))
	}

	return d
}

// ReferencePrice picks the price used to cost a request: the limit price,
// then the stop price, then the quote (MARKET orders only).
func ReferencePrice(req broker.OrderRequest, quote *decimal.Decimal) *decimal.Decimal {
	switch {
	case req.Price != nil:
		return req.Price
	case req.StopPrice != nil:
		return req.StopPrice
	case req.Kind == broker.Market:
		return quote
	}
	return nil
}
