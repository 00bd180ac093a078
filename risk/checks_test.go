package risk

import (
	"testing"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	cash := decimal.NewFromInt(10000)

	tests := []struct {
		name  string
		req   broker.OrderRequest
		held  int64
		quote *decimal.Decimal
		want  []string
	}{
		{
			name:  "market buy ok",
			req:   broker.OrderRequest{Symbol: "X", Kind: broker.Market, Side: broker.Buy, Quantity: 10, TimeInForce: broker.Day},
			quote: dec("50"),
		},
		{
			name: "market buy without quote skips funds",
			req:  broker.OrderRequest{Symbol: "X", Kind: broker.Market, Side: broker.Buy, Quantity: 9000, TimeInForce: broker.Day},
		},
		{
			name:  "insufficient funds",
			req:   broker.OrderRequest{Symbol: "X", Kind: broker.Market, Side: broker.Buy, Quantity: 201, TimeInForce: broker.Day},
			quote: dec("50"),
			want:  []string{InsufficientFunds},
		},
		{
			name: "limit uses limit price",
			req:  broker.OrderRequest{Symbol: "X", Kind: broker.Limit, Side: broker.Buy, Quantity: 100, Price: dec("101"), TimeInForce: broker.GTC},
			want: []string{InsufficientFunds},
		},
		{
			name: "limit missing price",
			req:  broker.OrderRequest{Symbol: "X", Kind: broker.Limit, Side: broker.Buy, Quantity: 1, TimeInForce: broker.Day},
			want: []string{MissingLimitPrice},
		},
		{
			name: "stop limit missing both",
			req:  broker.OrderRequest{Symbol: "X", Kind: broker.StopLimit, Side: broker.Buy, Quantity: 1, TimeInForce: broker.Day},
			want: []string{MissingLimitPrice, MissingStopPrice},
		},
		{
			name:  "market with price",
			req:   broker.OrderRequest{Symbol: "X", Kind: broker.Market, Side: broker.Buy, Quantity: 1, Price: dec("1"), TimeInForce: broker.Day},
			quote: dec("1"),
			want:  []string{UnexpectedLimitPrice},
		},
		{
			name: "oversell",
			req:  broker.OrderRequest{Symbol: "X", Kind: broker.Market, Side: broker.Sell, Quantity: 6, TimeInForce: broker.Day},
			held: 5,
			want: []string{InsufficientShares},
		},
		{
			name: "sell within holdings",
			req:  broker.OrderRequest{Symbol: "X", Kind: broker.Limit, Side: broker.Sell, Quantity: 5, Price: dec("60"), TimeInForce: broker.Day},
			held: 5,
		},
		{
			name: "everything wrong at once",
			req:  broker.OrderRequest{Kind: "ICEBERG", Side: "HOLD", Quantity: 0, TimeInForce: "IOC", ExpiresAt: &past},
			want: []string{InvalidSymbol, InvalidSide, InvalidKind, InvalidQuantity, UnsupportedTimeInForce, ExpiryInPast},
		},
		{
			name: "symbol with a slash",
			req:  broker.OrderRequest{Symbol: "X/Y", Kind: broker.Market, Side: broker.Buy, Quantity: 1, TimeInForce: broker.Day},
			want: []string{InvalidSymbol},
		},
		{
			name: "symbol too long",
			req:  broker.OrderRequest{Symbol: "ABCDEFGHIJKLMNOPQ", Kind: broker.Market, Side: broker.Buy, Quantity: 1, TimeInForce: broker.Day},
			want: []string{InvalidSymbol},
		},
		{
			name: "dotted symbol",
			req:  broker.OrderRequest{Symbol: "BRK.B", Kind: broker.Market, Side: broker.Buy, Quantity: 1, TimeInForce: broker.Day},
		},
		{
			name: "max order size",
			req:  broker.OrderRequest{Symbol: "X", Kind: broker.Limit, Side: broker.Buy, Quantity: 10001, Price: dec("0.01"), TimeInForce: broker.Day},
			want: []string{MaxOrderSize},
		},
	}

	v := NewValidator(DefaultPolicy())
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := v.Validate(tt.req, Snapshot{
				Now:            now,
				OwnerID:        "u1",
				Cash:           cash,
				Held:           tt.held,
				ReferencePrice: ReferencePrice(tt.req, tt.quote),
			})

			var got []string
			for _, vi := range d.Violations {
				got = append(got, vi.Code)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want) == 0, d.Allowed)
		})
	}
}

func TestDecisionErr(t *testing.T) {
	t.Parallel()

	v := NewValidator(DefaultPolicy())
	d := v.Validate(broker.OrderRequest{Symbol: "X", Kind: broker.Market, Side: broker.Sell, Quantity: 3, TimeInForce: broker.Day}, Snapshot{})
	require.False(t, d.Allowed)
	assert.True(t, d.Has(InsufficientShares))

	err := d.Err()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Violations, 1)
	assert.Contains(t, err.Error(), "insufficient shares")

	assert.NoError(t, Decision{Allowed: true}.Err())
}

func TestReferencePrice(t *testing.T) {
	t.Parallel()

	q := dec("50")
	assert.Equal(t, "40", ReferencePrice(broker.OrderRequest{Kind: broker.Limit, Price: dec("40")}, q).String())
	assert.Equal(t, "45", ReferencePrice(broker.OrderRequest{Kind: broker.Stop, StopPrice: dec("45")}, q).String())
	assert.Equal(t, "50", ReferencePrice(broker.OrderRequest{Kind: broker.Market}, q).String())
	assert.Nil(t, ReferencePrice(broker.OrderRequest{Kind: broker.Market}, nil))
}
