package trading

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/ledger"
	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/risk"
	"github.com/rustyeddy/oms/sim"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

type env struct {
	svc    *Service
	store  journal.Store
	quotes *market.QuoteStore
	cash   *StaticCash
	engine *sim.Engine
	hook   *test.Hook
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	store := journal.NewMemory()
	quotes := market.NewQuoteStore(0)
	cash := NewStaticCash(decimal.NewFromInt(10000))

	engine := sim.NewEngine(store, ledger.New(store, log), quotes, nil, sim.DefaultConfig(), log)
	engine.SetClock(func() time.Time { return t0 })
	var tn int64
	engine.SetIDSource(func() string { return fmt.Sprintf("T%04d", atomic.AddInt64(&tn, 1)) })

	svc := New(store, engine, risk.NewValidator(risk.DefaultPolicy()), Holdings{Cash: cash, Store: store}, quotes, log)
	svc.SetClock(func() time.Time { return t0 })
	var on int64
	svc.SetIDSource(func() string { return fmt.Sprintf("O%04d", atomic.AddInt64(&on, 1)) })

	return &env{svc: svc, store: store, quotes: quotes, cash: cash, engine: engine, hook: hook}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func marketReq(sym string, side broker.Side, qty int64) broker.OrderRequest {
	return broker.OrderRequest{Symbol: sym, Kind: broker.Market, Side: side, Quantity: qty}
}

func TestSubmitOrder_MarketFillsImmediately(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.quotes.SetPrice("AAPL", decimal.RequireFromString("150.00"))

	o, err := e.svc.SubmitOrder(ctx, "alice", marketReq("aapl", broker.Buy, 10))
	require.NoError(t, err)
	assert.Equal(t, "O0001", o.ID)
	assert.Equal(t, "AAPL", o.Symbol)
	assert.Equal(t, broker.Day, o.TimeInForce)
	assert.Equal(t, broker.Filled, o.Status)
	assert.EqualValues(t, 10, o.FilledQuantity)

	trades, err := e.svc.ListTrades(ctx, "alice", "", journal.Page{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "150", trades[0].Price.String())
	assert.Equal(t, "1", trades[0].Commission.String())

	p, err := e.svc.GetPosition(ctx, "alice", "aapl")
	require.NoError(t, err)
	assert.EqualValues(t, 10, p.Quantity)
	assert.True(t, p.AverageCost.Equal(decimal.NewFromInt(150)))
}

func TestSubmitOrder_MarketWithoutQuoteStaysPending(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.SubmitOrder(ctx, "alice", marketReq("MSFT", broker.Buy, 1))
	require.NoError(t, err)
	assert.Equal(t, broker.Pending, o.Status)

	var warned bool
	for _, entry := range e.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned, "a missing quote is logged")

	e.quotes.SetPrice("MSFT", decimal.RequireFromString("400"))
	c, err := e.engine.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Outcomes[sim.Filled])
}

func TestSubmitOrder_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  broker.OrderRequest
		code string
	}{
		{"insufficient funds", marketReq("AAPL", broker.Buy, 100), risk.InsufficientFunds},
		{"oversell", marketReq("AAPL", broker.Sell, 5), risk.InsufficientShares},
		{"limit without price", broker.OrderRequest{Symbol: "AAPL", Kind: broker.Limit, Side: broker.Buy, Quantity: 1}, risk.MissingLimitPrice},
		{"too large", broker.OrderRequest{Symbol: "AAPL", Kind: broker.Limit, Side: broker.Buy, Quantity: 20000, Price: dec("0.01")}, risk.MaxOrderSize},
		{"bad side", broker.OrderRequest{Symbol: "AAPL", Kind: broker.Market, Side: "HOLD", Quantity: 1}, risk.InvalidSide},
		{"slash in symbol", marketReq("x/y", broker.Buy, 5), risk.InvalidSymbol},
		{"sell slash symbol", marketReq("X/Y", broker.Sell, 5), risk.InvalidSymbol},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			ctx := context.Background()
			e.quotes.SetPrice("AAPL", decimal.RequireFromString("150.00"))

			_, err := e.svc.SubmitOrder(ctx, "alice", tt.req)
			var verr *risk.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, risk.Decision{Violations: verr.Violations}.Has(tt.code), verr.Error())

			orders, err := e.svc.ListOrders(ctx, "alice", nil, journal.Page{})
			require.NoError(t, err)
			assert.Empty(t, orders, "rejected orders are not persisted")
		})
	}
}

func TestSubmitOrder_SellAgainstHoldings(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.quotes.SetPrice("X", decimal.RequireFromString("50"))

	_, err := e.svc.SubmitOrder(ctx, "alice", marketReq("X", broker.Buy, 10))
	require.NoError(t, err)

	o, err := e.svc.SubmitOrder(ctx, "alice", marketReq("X", broker.Sell, 10))
	require.NoError(t, err)
	assert.Equal(t, broker.Filled, o.Status)

	open, err := e.svc.ListPositions(ctx, "alice", false)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := e.svc.ListPositions(ctx, "alice", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Zero(t, all[0].Quantity)
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.SubmitOrder(ctx, "alice", broker.OrderRequest{
		Symbol: "X", Kind: broker.Limit, Side: broker.Buy, Quantity: 10, Price: dec("40"), TimeInForce: broker.GTC,
	})
	require.NoError(t, err)
	require.Equal(t, broker.Pending, o.Status)

	_, err = e.svc.CancelOrder(ctx, "bob", o.ID)
	assert.ErrorIs(t, err, broker.ErrOrderNotFound, "other owners cannot see the order")

	c, err := e.svc.CancelOrder(ctx, "alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.Cancelled, c.Status)
	require.NotNil(t, c.ClosedAt)

	_, err = e.svc.CancelOrder(ctx, "alice", o.ID)
	assert.ErrorIs(t, err, broker.ErrInvalidState)

	_, err = e.svc.CancelOrder(ctx, "alice", "missing")
	assert.ErrorIs(t, err, broker.ErrOrderNotFound)

	// A cancelled order never fills, even once its limit is crossed.
	e.quotes.SetPrice("X", decimal.RequireFromString("39.50"))
	cy, err := e.engine.Evaluate(ctx)
	require.NoError(t, err)
	assert.Zero(t, cy.Evaluated)
}

func TestListOrders_StatusFilter(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.quotes.SetPrice("X", decimal.RequireFromString("50"))

	_, err := e.svc.SubmitOrder(ctx, "alice", marketReq("X", broker.Buy, 1))
	require.NoError(t, err)
	_, err = e.svc.SubmitOrder(ctx, "alice", broker.OrderRequest{
		Symbol: "X", Kind: broker.Limit, Side: broker.Buy, Quantity: 1, Price: dec("10"),
	})
	require.NoError(t, err)

	pending := broker.Pending
	got, err := e.svc.ListOrders(ctx, "alice", &pending, journal.Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, broker.Limit, got[0].Kind)

	got, err = e.svc.ListOrders(ctx, "bob", nil, journal.Page{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStats(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.quotes.SetPrice("X", decimal.RequireFromString("50"))
	e.quotes.SetPrice("Y", decimal.RequireFromString("20"))

	for _, r := range []broker.OrderRequest{
		marketReq("X", broker.Buy, 10),
		marketReq("Y", broker.Buy, 100),
		marketReq("X", broker.Sell, 4),
	} {
		_, err := e.svc.SubmitOrder(ctx, "alice", r)
		require.NoError(t, err)
	}

	l := ledger.New(e.store, nil)
	_, err := l.Revalue(ctx, market.Static{"X": decimal.NewFromInt(60), "Y": decimal.NewFromInt(20)})
	require.NoError(t, err)

	st, err := e.svc.Stats(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultStatsPeriodDays, st.PeriodDays)
	assert.Equal(t, 3, st.TotalTrades)
	assert.Equal(t, 2, st.BuyTrades)
	assert.Equal(t, 1, st.SellTrades)
	assert.Equal(t, "2700", st.TotalVolume.String())
	assert.Equal(t, "3", st.TotalCommission.String())
	assert.Equal(t, "2360", st.TotalPositionValue.String())
	assert.Equal(t, "60", st.TotalUnrealizedPnL.String())

	e.svc.SetClock(func() time.Time { return t0.Add(48 * time.Hour) })
	st, err = e.svc.Stats(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Zero(t, st.TotalTrades, "trades outside the period are left out")
	assert.Equal(t, "2360", st.TotalPositionValue.String())
}

func TestHoldings(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.cash.Set("rich", decimal.NewFromInt(1_000_000))
	h := Holdings{Cash: e.cash, Store: e.store}

	c, err := h.CashBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10000", c.String())
	c, err = h.CashBalance(ctx, "rich")
	require.NoError(t, err)
	assert.Equal(t, "1000000", c.String())

	q, err := h.PositionQuantity(ctx, "alice", "NONE")
	require.NoError(t, err)
	assert.Zero(t, q)

	e.quotes.SetPrice("X", decimal.RequireFromString("1"))
	_, err = e.svc.SubmitOrder(ctx, "rich", marketReq("X", broker.Buy, 5000))
	require.NoError(t, err)
	q, err = h.PositionQuantity(ctx, "rich", "X")
	require.NoError(t, err)
	assert.EqualValues(t, 5000, q)
}
