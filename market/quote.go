// Package market is the engine's view of current prices. The engine only
// ever asks for a best-effort last price per symbol.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrQuoteUnavailable means no usable price right now. It is always
// retryable.
var ErrQuoteUnavailable = errors.New("quote unavailable")

type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   time.Time       `json:"time"`
}

type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// QuoteFunc adapts a function to QuoteSource.
type QuoteFunc func(ctx context.Context, symbol string) (Quote, error)

func (f QuoteFunc) Quote(ctx context.Context, symbol string) (Quote, error) { return f(ctx, symbol) }

// QuoteStore keeps the last quote per symbol. Quotes older than maxAge
// are reported unavailable; a zero maxAge disables the check.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	maxAge time.Duration
	now    func() time.Time
}

func NewQuoteStore(maxAge time.Duration) *QuoteStore {
	return &QuoteStore{
		quotes: make(map[string]Quote),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SetClock replaces the store's time source.
func (s *QuoteStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *QuoteStore) Set(q Quote) {
	if q.Time.IsZero() {
		q.Time = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

// SetPrice is shorthand for Set with the current time.
func (s *QuoteStore) SetPrice(symbol string, price decimal.Decimal) {
	s.Set(Quote{Symbol: symbol, Price: price, Time: s.now()})
}

func (s *QuoteStore) Quote(_ context.Context, symbol string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: no quote for %s", ErrQuoteUnavailable, symbol)
	}
	if s.maxAge > 0 && s.now().Sub(q.Time) > s.maxAge {
		return Quote{}, fmt.Errorf("%w: quote for %s is stale (%s)", ErrQuoteUnavailable, symbol, q.Time.Format(time.RFC3339))
	}
	return q, nil
}

// Cached reads through to a remote source and keeps the result for at
// most maxAge, so every caller sees a quote of bounded freshness.
type Cached struct {
	src   QuoteSource
	store *QuoteStore
}

func NewCached(src QuoteSource, maxAge time.Duration) *Cached {
	return &Cached{src: src, store: NewQuoteStore(maxAge)}
}

func (c *Cached) Quote(ctx context.Context, symbol string) (Quote, error) {
	if q, err := c.store.Quote(ctx, symbol); err == nil {
		return q, nil
	}
	q, err := c.src.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	c.store.Set(q)
	return q, nil
}

// WithTimeout bounds every call to src by d. Timeouts, source errors and
// non-positive prices all come back as ErrQuoteUnavailable.
func WithTimeout(src QuoteSource, d time.Duration) QuoteSource {
	return QuoteFunc(func(ctx context.Context, symbol string) (Quote, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		type result struct {
			q   Quote
			err error
		}
		ch := make(chan result, 1)
		go func() {
			q, err := src.Quote(ctx, symbol)
			ch <- result{q, err}
		}()

		select {
		case <-ctx.Done():
			return Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, ctx.Err())
		case r := <-ch:
			if r.err != nil {
				if errors.Is(r.err, ErrQuoteUnavailable) {
					return Quote{}, r.err
				}
				return Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, r.err)
			}
			if !r.q.Price.IsPositive() {
				return Quote{}, fmt.Errorf("%w: %s: non-positive price %s", ErrQuoteUnavailable, symbol, r.q.Price)
			}
			return r.q, nil
		}
	})
}

// Static serves fixed prices, mainly for demos and local runs.
type Static map[string]decimal.Decimal

func (s Static) Quote(_ context.Context, symbol string) (Quote, error) {
	p, ok := s[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: no static price for %s", ErrQuoteUnavailable, symbol)
	}
	return Quote{Symbol: symbol, Price: p, Time: time.Now()}, nil
}
