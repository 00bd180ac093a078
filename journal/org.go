package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
)

// FormatTradeOrg renders a trade as an Org-mode block. Structured facts go
// in a PROPERTIES drawer so they stay searchable.
func FormatTradeOrg(t broker.Trade) string {
	heading := fmt.Sprintf("** Trade: %s %d %s @ %s (%s)", t.Side, t.Quantity, t.Symbol, t.Price.StringFixed(2), shortID(t.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf(":ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf(":ORDER_ID: %s\n", t.OrderID))
	b.WriteString(fmt.Sprintf(":OWNER: %s\n", t.OwnerID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", t.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", t.Side))
	b.WriteString(fmt.Sprintf(":QUANTITY: %d\n", t.Quantity))
	b.WriteString(fmt.Sprintf(":PRICE: %s\n", t.Price.StringFixed(4)))
	b.WriteString(fmt.Sprintf(":COMMISSION: %s\n", t.Commission.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":NOTIONAL: %s\n", t.Notional().StringFixed(2)))
	b.WriteString(fmt.Sprintf(":EXECUTED_AT: %s\n", t.ExecutedAt.UTC().Format(time.RFC3339)))
	if t.SettlementDate != nil {
		b.WriteString(fmt.Sprintf(":SETTLEMENT_DATE: %s\n", t.SettlementDate.UTC().Format("2006-01-02")))
	}
	b.WriteString(":END:\n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []broker.Trade) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func FormatOrderOrg(o broker.Order) string {
	heading := fmt.Sprintf("** %s %s %s %d %s (%s)", o.Status, o.Kind, o.Side, o.Quantity, o.Symbol, shortID(o.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ORDER_ID: %s\n", o.ID))
	b.WriteString(fmt.Sprintf(":OWNER: %s\n", o.OwnerID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", o.Symbol))
	b.WriteString(fmt.Sprintf(":TYPE: %s\n", o.Kind))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", o.Side))
	b.WriteString(fmt.Sprintf(":QUANTITY: %d\n", o.Quantity))
	b.WriteString(fmt.Sprintf(":FILLED_QUANTITY: %d\n", o.FilledQuantity))
	b.WriteString(fmt.Sprintf(":PRICE: %s\n", orgDecimal(o.Price)))
	b.WriteString(fmt.Sprintf(":STOP_PRICE: %s\n", orgDecimal(o.StopPrice)))
	b.WriteString(fmt.Sprintf(":AVG_FILL_PRICE: %s\n", orgDecimal(o.AverageFillPrice)))
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", o.Status))
	b.WriteString(fmt.Sprintf(":TIME_IN_FORCE: %s\n", o.TimeInForce))
	b.WriteString(fmt.Sprintf(":CREATED_AT: %s\n", o.CreatedAt.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":EXPIRES_AT: %s\n", orgTime(o.ExpiresAt)))
	b.WriteString(fmt.Sprintf(":CLOSED_AT: %s\n", orgTime(o.ClosedAt)))
	b.WriteString(":END:\n")

	return b.String()
}

func FormatPositionOrg(p broker.Position) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("** Position: %s %d @ %s\n", p.Symbol, p.Quantity, p.AverageCost.StringFixed(4)))
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":OWNER: %s\n", p.OwnerID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", p.Symbol))
	b.WriteString(fmt.Sprintf(":QUANTITY: %d\n", p.Quantity))
	b.WriteString(fmt.Sprintf(":AVERAGE_COST: %s\n", p.AverageCost.StringFixed(4)))
	b.WriteString(fmt.Sprintf(":MARKET_VALUE: %s\n", p.MarketValue.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":UNREALIZED_PNL: %s\n", p.UnrealizedPnL.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":UPDATED_AT: %s\n", p.UpdatedAt.UTC().Format(time.RFC3339)))
	b.WriteString(":END:\n")
	return b.String()
}

func orgDecimal(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(4)
}

func orgTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
