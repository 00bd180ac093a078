// Package sim executes open orders against a single external quote per
// symbol. There is no book: every order fills, in full, at the quote.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/ledger"
	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/pkg/id"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Commission     Commission
	QuoteTimeout   time.Duration
	SettlementDays int // 0 leaves trades without a settlement date
}

func DefaultConfig() Config {
	return Config{
		Commission:     DefaultCommission(),
		QuoteTimeout:   2 * time.Second,
		SettlementDays: 2,
	}
}

// Outcome is what one evaluation did with one order.
type Outcome string

const (
	Filled   Outcome = "filled"
	Waiting  Outcome = "waiting"  // condition not met, or kind never fires
	Deferred Outcome = "deferred" // no usable quote, retried next cycle
	Lost     Outcome = "lost"     // order left PENDING before the fill landed
	Blocked  Outcome = "blocked"  // fill refused by the ledger (e.g. shares gone)
	Stale    Outcome = "stale"    // expired, left to the expiry sweep
)

type Result struct {
	Outcome Outcome
	Order   broker.Order
	Trade   *broker.Trade
}

// Cycle reports one pass over the open orders.
type Cycle struct {
	Evaluated int
	Outcomes  map[Outcome]int
	Trades    []broker.Trade
}

func (c *Cycle) add(r Result) {
	c.Evaluated++
	c.Outcomes[r.Outcome]++
	if r.Trade != nil {
		c.Trades = append(c.Trades, *r.Trade)
	}
}

type Engine struct {
	store  journal.Store
	ledger *ledger.Ledger
	quotes market.QuoteSource
	notify broker.Notifier
	cfg    Config
	log    logrus.FieldLogger
	now    func() time.Time
	newID  id.Source
}

// NewEngine wires an engine. Every quote request is bounded by
// cfg.QuoteTimeout.
func NewEngine(store journal.Store, l *ledger.Ledger, quotes market.QuoteSource, n broker.Notifier, cfg Config, log logrus.FieldLogger) *Engine {
	if n == nil {
		n = broker.NopNotifier{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		store:  store,
		ledger: l,
		quotes: market.WithTimeout(quotes, cfg.QuoteTimeout),
		notify: n,
		cfg:    cfg,
		log:    log.WithField("component", "engine"),
		now:    time.Now,
		newID:  id.New,
	}
}

func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) SetIDSource(src id.Source) { e.newID = src }

// Evaluate runs one pass over every open order. Quotes are fetched at
// most once per symbol per pass. Order-level problems are counted in the
// Cycle; only store failures abort the pass and return an error.
func (e *Engine) Evaluate(ctx context.Context) (Cycle, error) {
	c := Cycle{Outcomes: make(map[Outcome]int)}

	orders, err := e.store.OpenOrders(ctx)
	if err != nil {
		return c, fmt.Errorf("evaluate: open orders: %w", err)
	}

	snap := newSnapshot(e.quotes)
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		r, err := e.evaluate(ctx, o, snap)
		if err != nil {
			return c, err
		}
		c.add(r)
	}

	if c.Evaluated > 0 {
		e.log.WithFields(logrus.Fields{
			"evaluated": c.Evaluated,
			"filled":    c.Outcomes[Filled],
			"deferred":  c.Outcomes[Deferred],
		}).Debug("evaluation cycle")
	}
	return c, nil
}

// EvaluateOrder evaluates a single order right away. Submission uses it
// to execute MARKET orders without waiting for the next cycle.
func (e *Engine) EvaluateOrder(ctx context.Context, orderID string) (Result, error) {
	o, err := e.store.GetOrder(ctx, "", orderID)
	if err != nil {
		return Result{}, err
	}
	return e.evaluate(ctx, o, newSnapshot(e.quotes))
}

func (e *Engine) evaluate(ctx context.Context, o broker.Order, snap *snapshot) (Result, error) {
	r := Result{Order: o}
	log := e.log.WithFields(logrus.Fields{"order": o.ID, "symbol": o.Symbol, "type": o.Kind})

	if !o.Status.Open() {
		r.Outcome = Lost
		return r, nil
	}
	if o.Expired(e.now()) {
		r.Outcome = Stale
		return r, nil
	}

	trig, ok := triggers[o.Kind]
	if !ok || !trig.needsQuote {
		r.Outcome = Waiting
		return r, nil
	}

	q, err := snap.quote(ctx, o.Symbol)
	if err != nil {
		log.WithError(err).Warn("quote unavailable, order stays pending")
		r.Outcome = Deferred
		return r, nil
	}
	if !trig.eligible(o, q.Price) {
		r.Outcome = Waiting
		return r, nil
	}

	t := e.newTrade(o, q.Price)
	res, err := e.ledger.Record(ctx, t)
	switch {
	case err == nil:
	case errors.Is(err, broker.ErrOrderNotPending):
		log.Debug("order left pending before fill, skipping")
		r.Outcome = Lost
		return r, nil
	case errors.Is(err, ledger.ErrInsufficientQuantity),
		errors.Is(err, ledger.ErrInvalidTrade),
		errors.Is(err, journal.ErrFillMismatch):
		log.WithError(err).Error("fill refused")
		r.Outcome = Blocked
		return r, nil
	default:
		return r, fmt.Errorf("evaluate %s: %w", o.ID, err)
	}

	log.WithFields(logrus.Fields{
		"trade":    res.Trade.ID,
		"side":     res.Trade.Side,
		"quantity": res.Trade.Quantity,
		"price":    res.Trade.Price.String(),
	}).Info("order filled")

	// Notification happens after commit; a failure never undoes the trade.
	if err := e.notify.TradeExecuted(ctx, res.Trade); err != nil {
		log.WithError(err).Warn("trade notification failed")
	}

	r.Outcome = Filled
	r.Order = res.Order
	r.Trade = &res.Trade
	return r, nil
}

func (e *Engine) newTrade(o broker.Order, price decimal.Decimal) broker.Trade {
	now := e.now().UTC()
	t := broker.Trade{
		ID:         e.newID(),
		OrderID:    o.ID,
		OwnerID:    o.OwnerID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Remaining(),
		Price:      price,
		Commission: e.cfg.Commission.Fee(o.Remaining()),
		ExecutedAt: now,
	}
	if e.cfg.SettlementDays > 0 {
		sd := SettlementDate(now, e.cfg.SettlementDays)
		t.SettlementDate = &sd
	}
	return t
}

// ExpireOrders moves every open order past its expiry to EXPIRED and
// returns how many it moved.
func (e *Engine) ExpireOrders(ctx context.Context) (int, error) {
	now := e.now().UTC()
	orders, err := e.store.ExpiredOrders(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire: %w", err)
	}

	n := 0
	for _, o := range orders {
		_, err := e.store.Transition(ctx, o.ID, "", broker.Expired, now)
		if errors.Is(err, broker.ErrOrderNotPending) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("expire %s: %w", o.ID, err)
		}
		e.log.WithFields(logrus.Fields{"order": o.ID, "symbol": o.Symbol}).Info("order expired")
		n++
	}
	return n, nil
}

// SettlementDate is t plus days business days, at midnight UTC.
func SettlementDate(t time.Time, days int) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for days > 0 {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days--
		}
	}
	return d
}

// snapshot memoizes quotes for one evaluation pass, failures included, so
// every order on a symbol sees the same price.
type snapshot struct {
	src    market.QuoteSource
	quotes map[string]quoteResult
}

type quoteResult struct {
	q   market.Quote
	err error
}

func newSnapshot(src market.QuoteSource) *snapshot {
	return &snapshot{src: src, quotes: make(map[string]quoteResult)}
}

func (s *snapshot) quote(ctx context.Context, symbol string) (market.Quote, error) {
	if r, ok := s.quotes[symbol]; ok {
		return r.q, r.err
	}
	q, err := s.src.Quote(ctx, symbol)
	s.quotes[symbol] = quoteResult{q, err}
	return q, err
}
