package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	settle := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	trade := broker.Trade{
		ID:             "01HQX3K9ZV8M2B7N4C5D6E7F8G",
		OrderID:        "01HQX3K9ZV8M2B7N4C5D6E7F8A",
		OwnerID:        "alice",
		Symbol:         "AAPL",
		Side:           broker.Buy,
		Quantity:       10,
		Price:          decimal.RequireFromString("39.5"),
		Commission:     decimal.RequireFromString("1"),
		ExecutedAt:     time.Date(2024, 3, 1, 14, 30, 45, 0, time.UTC),
		SettlementDate: &settle,
	}

	result := FormatTradeOrg(trade)

	assert.Contains(t, result, "** Trade: BUY 10 AAPL @ 39.50 (01HQX3K9)")
	assert.Contains(t, result, ":PROPERTIES:")
	assert.Contains(t, result, ":TRADE_ID: 01HQX3K9ZV8M2B7N4C5D6E7F8G")
	assert.Contains(t, result, ":ORDER_ID: 01HQX3K9ZV8M2B7N4C5D6E7F8A")
	assert.Contains(t, result, ":OWNER: alice")
	assert.Contains(t, result, ":PRICE: 39.5000")
	assert.Contains(t, result, ":COMMISSION: 1.00")
	assert.Contains(t, result, ":NOTIONAL: 395.00")
	assert.Contains(t, result, ":EXECUTED_AT: 2024-03-01T14:30:45Z")
	assert.Contains(t, result, ":SETTLEMENT_DATE: 2024-03-05")
	assert.True(t, strings.HasSuffix(result, ":END:\n"))
}

func TestFormatTradesOrg(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", FormatTradesOrg(nil))

	trades := []broker.Trade{
		{ID: "T1", Symbol: "X", Side: broker.Buy, Quantity: 1},
		{ID: "T2", Symbol: "Y", Side: broker.Sell, Quantity: 2},
	}
	result := FormatTradesOrg(trades)
	assert.Equal(t, 2, strings.Count(result, ":PROPERTIES:"))
	assert.Less(t, strings.Index(result, "(T1)"), strings.Index(result, "(T2)"))
}

func TestFormatOrderOrg(t *testing.T) {
	t.Parallel()

	limit := decimal.RequireFromString("40")
	o := broker.NewOrder("ORDER-123456789", "alice", broker.OrderRequest{
		Symbol: "X", Kind: broker.Limit, Side: broker.Buy, Quantity: 10, Price: &limit, TimeInForce: broker.GTC,
	}, time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC))

	result := FormatOrderOrg(o)
	assert.Contains(t, result, "** PENDING LIMIT BUY 10 X (ORDER-12)")
	assert.Contains(t, result, ":PRICE: 40.0000")
	assert.Contains(t, result, ":STOP_PRICE: -")
	assert.Contains(t, result, ":EXPIRES_AT: -")
	assert.Contains(t, result, ":TIME_IN_FORCE: GTC")
}

func TestFormatPositionOrg(t *testing.T) {
	t.Parallel()

	p := broker.Position{
		OwnerID:       "alice",
		Symbol:        "X",
		Quantity:      15,
		AverageCost:   decimal.NewFromInt(55),
		MarketValue:   decimal.NewFromInt(900),
		UnrealizedPnL: decimal.NewFromInt(75),
	}
	result := FormatPositionOrg(p)
	assert.Contains(t, result, "** Position: X 15 @ 55.0000")
	assert.Contains(t, result, ":MARKET_VALUE: 900.00")
	assert.Contains(t, result, ":UNREALIZED_PNL: 75.00")
}

func TestShortID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "short"},
		{"12345678", "12345678"},
		{"123456789", "12345678"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortID(tt.in))
	}
}
