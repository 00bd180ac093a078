// Package ledger maintains positions: quantity and average cost per
// (owner, symbol), derived only from the ordered trade history.
package ledger

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientQuantity = errors.New("insufficient position quantity")
	ErrInvalidTrade         = errors.New("invalid trade")
)

// Apply returns the position after trade t.
//
// A BUY moves the average cost to the quantity-weighted mean. A SELL
// leaves it unchanged; once the position is flat it resets to zero along
// with the valuation fields. Selling more than is held is an error, short
// positions are not modelled.
func Apply(p broker.Position, t broker.Trade) (broker.Position, error) {
	if t.Quantity <= 0 {
		return p, fmt.Errorf("%w: quantity %d", ErrInvalidTrade, t.Quantity)
	}
	if !t.Price.IsPositive() {
		return p, fmt.Errorf("%w: price %s", ErrInvalidTrade, t.Price)
	}
	if p.OwnerID == "" && p.Symbol == "" {
		p.OwnerID, p.Symbol = t.OwnerID, t.Symbol
	}
	if p.OwnerID != t.OwnerID || p.Symbol != t.Symbol {
		return p, fmt.Errorf("%w: trade %s for %s applied to %s",
			ErrInvalidTrade, t.ID, broker.PositionKey(t.OwnerID, t.Symbol), p.Key())
	}

	switch t.Side {
	case broker.Buy:
		qty := p.Quantity + t.Quantity
		cost := p.AverageCost.Mul(decimal.NewFromInt(p.Quantity)).
			Add(t.Price.Mul(decimal.NewFromInt(t.Quantity)))
		p.Quantity = qty
		p.AverageCost = cost.Div(decimal.NewFromInt(qty))

	case broker.Sell:
		if t.Quantity > p.Quantity {
			return p, fmt.Errorf("%w: %s holds %d, trade %s sells %d",
				ErrInsufficientQuantity, p.Key(), p.Quantity, t.ID, t.Quantity)
		}
		p.Quantity -= t.Quantity
		if p.Quantity == 0 {
			p.AverageCost = decimal.Zero
			p.MarketValue = decimal.Zero
			p.UnrealizedPnL = decimal.Zero
		}

	default:
		return p, fmt.Errorf("%w: side %q", ErrInvalidTrade, t.Side)
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.ExecutedAt
	}
	p.UpdatedAt = t.ExecutedAt
	return p, nil
}

// Replay rebuilds a position from its trades in execution order.
func Replay(owner, symbol string, trades []broker.Trade) (broker.Position, error) {
	p := broker.Position{
		OwnerID:       owner,
		Symbol:        symbol,
		AverageCost:   decimal.Zero,
		MarketValue:   decimal.Zero,
		UnrealizedPnL: decimal.Zero,
	}
	for _, t := range trades {
		var err error
		if p, err = Apply(p, t); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Value marks p to price.
func Value(p broker.Position, price decimal.Decimal) (marketValue, unrealized decimal.Decimal) {
	qty := decimal.NewFromInt(p.Quantity)
	return price.Mul(qty), price.Sub(p.AverageCost).Mul(qty)
}
