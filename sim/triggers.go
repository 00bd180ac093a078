package sim

import (
	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
)

// trigger decides when an order of one kind may execute against a quote.
// Kinds with no quote requirement never fire on their own.
type trigger struct {
	needsQuote bool
	eligible   func(o broker.Order, quote decimal.Decimal) bool
}

// STOP and STOP_LIMIT are accepted and stored but have no crossing model
// yet, so they never fire.
var triggers = map[broker.Kind]trigger{
	broker.Market:    {needsQuote: true, eligible: always},
	broker.Limit:     {needsQuote: true, eligible: limitCrossed},
	broker.Stop:      {},
	broker.StopLimit: {},
}

func always(broker.Order, decimal.Decimal) bool { return true }

// limitCrossed: a BUY fires at or below its limit, a SELL at or above.
func limitCrossed(o broker.Order, quote decimal.Decimal) bool {
	if o.Price == nil {
		return false
	}
	switch o.Side {
	case broker.Buy:
		return quote.LessThanOrEqual(*o.Price)
	case broker.Sell:
		return quote.GreaterThanOrEqual(*o.Price)
	}
	return false
}
