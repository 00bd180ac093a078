package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/market"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Ledger is the only writer of positions. Writes to one (owner, symbol)
// are serialized; different positions proceed in parallel.
type Ledger struct {
	store journal.Store
	locks *keyedMutex
	log   logrus.FieldLogger
	now   func() time.Time
}

func New(store journal.Store, log logrus.FieldLogger) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{
		store: store,
		locks: newKeyedMutex(),
		log:   log.WithField("component", "ledger"),
		now:   time.Now,
	}
}

// SetClock replaces the ledger's time source.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Record fills t's order and applies t to its position in one unit of
// work. broker.ErrOrderNotPending means another writer got there first
// and nothing was written.
func (l *Ledger) Record(ctx context.Context, t broker.Trade) (journal.FillResult, error) {
	unlock := l.locks.Lock(broker.PositionKey(t.OwnerID, t.Symbol))
	defer unlock()

	return l.store.Fill(ctx, journal.Fill{Trade: t}, func(p broker.Position) (broker.Position, error) {
		return Apply(p, t)
	})
}

// Valuation summarizes one revaluation pass.
type Valuation struct {
	Revalued int
	Skipped  int
}

// Revalue marks every open position to its current quote. Quotes are
// fetched once per symbol per pass; a symbol without a quote keeps its
// previous valuation.
func (l *Ledger) Revalue(ctx context.Context, quotes market.QuoteSource) (Valuation, error) {
	var v Valuation

	positions, err := l.store.ListPositions(ctx, journal.PositionQuery{})
	if err != nil {
		return v, fmt.Errorf("revalue: %w", err)
	}

	prices := make(map[string]*decimal.Decimal)
	for _, p := range positions {
		if err := ctx.Err(); err != nil {
			return v, err
		}

		price, seen := prices[p.Symbol]
		if !seen {
			q, err := quotes.Quote(ctx, p.Symbol)
			if err != nil {
				l.log.WithError(err).WithField("symbol", p.Symbol).Warn("no quote for valuation")
			} else {
				price = &q.Price
			}
			prices[p.Symbol] = price
		}
		if price == nil {
			v.Skipped++
			continue
		}

		if err := l.revalueOne(ctx, p.OwnerID, p.Symbol, *price); err != nil {
			if errors.Is(err, broker.ErrPositionNotFound) {
				v.Skipped++
				continue
			}
			return v, err
		}
		v.Revalued++
	}

	return v, nil
}

func (l *Ledger) revalueOne(ctx context.Context, owner, symbol string, price decimal.Decimal) error {
	unlock := l.locks.Lock(broker.PositionKey(owner, symbol))
	defer unlock()

	// Re-read under the lock: a fill may have landed since the listing.
	p, err := l.store.GetPosition(ctx, owner, symbol)
	if err != nil {
		return err
	}
	mv, upnl := Value(p, price)
	return l.store.SetValuation(ctx, owner, symbol, mv, upnl, l.now().UTC())
}

// Drift describes a stored position that disagrees with its trade history.
type Drift struct {
	Stored   broker.Position
	Replayed broker.Position
}

func (d Drift) Error() string {
	return fmt.Sprintf("position %s drifted: stored %d @ %s, replayed %d @ %s",
		d.Stored.Key(), d.Stored.Quantity, d.Stored.AverageCost, d.Replayed.Quantity, d.Replayed.AverageCost)
}

// Reconcile replays the trade history of one position and compares it
// with the stored row. It returns a *Drift error when they differ.
func (l *Ledger) Reconcile(ctx context.Context, owner, symbol string) (broker.Position, error) {
	unlock := l.locks.Lock(broker.PositionKey(owner, symbol))
	defer unlock()

	stored, err := l.store.GetPosition(ctx, owner, symbol)
	if err != nil {
		return broker.Position{}, err
	}
	trades, err := l.store.TradesFor(ctx, owner, symbol)
	if err != nil {
		return stored, err
	}
	replayed, err := Replay(owner, symbol, trades)
	if err != nil {
		return stored, fmt.Errorf("reconcile %s: %w", stored.Key(), err)
	}

	if replayed.Quantity != stored.Quantity || !replayed.AverageCost.Equal(stored.AverageCost) {
		return stored, &Drift{Stored: stored, Replayed: replayed}
	}
	return stored, nil
}
