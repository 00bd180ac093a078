package sim

import "github.com/shopspring/decimal"

// Commission is a per-unit fee with a floor.
type Commission struct {
	Rate    decimal.Decimal // per unit
	Minimum decimal.Decimal
}

func DefaultCommission() Commission {
	return Commission{
		Rate:    decimal.RequireFromString("0.01"),
		Minimum: decimal.RequireFromString("1.00"),
	}
}

// Fee is max(qty*Rate, Minimum).
func (c Commission) Fee(qty int64) decimal.Decimal {
	fee := c.Rate.Mul(decimal.NewFromInt(qty))
	if fee.LessThan(c.Minimum) {
		return c.Minimum
	}
	return fee
}
