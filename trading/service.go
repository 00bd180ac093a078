// Package trading exposes the operations clients call: submitting,
// cancelling and reading orders, trades and positions.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/pkg/id"
	"github.com/rustyeddy/oms/risk"
	"github.com/rustyeddy/oms/sim"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Service struct {
	store     journal.Store
	engine    *sim.Engine
	validator *risk.Validator
	holdings  broker.Holdings
	quotes    market.QuoteSource
	log       logrus.FieldLogger
	now       func() time.Time
	newID     id.Source
}

func New(store journal.Store, engine *sim.Engine, v *risk.Validator, h broker.Holdings, quotes market.QuoteSource, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:     store,
		engine:    engine,
		validator: v,
		holdings:  h,
		quotes:    quotes,
		log:       log.WithField("component", "trading"),
		now:       time.Now,
		newID:     id.New,
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) SetIDSource(src id.Source) { s.newID = src }

// SubmitOrder validates req for owner and persists it as PENDING. A
// rejected request returns *risk.ValidationError and writes nothing.
// MARKET orders are evaluated right away; if that fails the order stays
// PENDING for the next cycle.
func (s *Service) SubmitOrder(ctx context.Context, owner string, req broker.OrderRequest) (broker.Order, error) {
	req = req.Normalize()
	now := s.now().UTC()

	snap := risk.Snapshot{Now: now, OwnerID: owner}
	cash, err := s.holdings.CashBalance(ctx, owner)
	if err != nil {
		return broker.Order{}, fmt.Errorf("submit: cash balance: %w", err)
	}
	snap.Cash = cash
	if req.Symbol != "" {
		held, err := s.holdings.PositionQuantity(ctx, owner, req.Symbol)
		if err != nil {
			return broker.Order{}, fmt.Errorf("submit: position: %w", err)
		}
		snap.Held = held
	}

	var quote *decimal.Decimal
	if req.Kind == broker.Market && req.Side == broker.Buy && req.Symbol != "" && s.quotes != nil {
		q, err := s.quotes.Quote(ctx, req.Symbol)
		if err != nil {
			s.log.WithError(err).WithField("symbol", req.Symbol).Warn("no quote for market order, skipping funds check")
		} else {
			quote = &q.Price
		}
	}
	snap.ReferencePrice = risk.ReferencePrice(req, quote)

	if err := s.validator.Validate(req, snap).Err(); err != nil {
		return broker.Order{}, err
	}

	o := broker.NewOrder(s.newID(), owner, req, now)
	if err := s.store.InsertOrder(ctx, o); err != nil {
		return broker.Order{}, fmt.Errorf("submit: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"order":    o.ID,
		"owner":    owner,
		"symbol":   o.Symbol,
		"side":     o.Side,
		"type":     o.Kind,
		"quantity": o.Quantity,
	}).Info("order accepted")

	if o.Kind != broker.Market || s.engine == nil {
		return o, nil
	}
	r, err := s.engine.EvaluateOrder(ctx, o.ID)
	if err != nil {
		s.log.WithError(err).WithField("order", o.ID).Error("immediate execution failed")
		return o, nil
	}
	return r.Order, nil
}

// CancelOrder moves a PENDING order to CANCELLED. Orders in any other
// status return broker.ErrInvalidState.
func (s *Service) CancelOrder(ctx context.Context, owner, orderID string) (broker.Order, error) {
	o, err := s.store.Transition(ctx, orderID, owner, broker.Cancelled, s.now().UTC())
	if errors.Is(err, broker.ErrOrderNotPending) {
		return broker.Order{}, broker.ErrInvalidState
	}
	if err != nil {
		return broker.Order{}, err
	}
	s.log.WithFields(logrus.Fields{"order": o.ID, "owner": owner}).Info("order cancelled")
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, owner, orderID string) (broker.Order, error) {
	return s.store.GetOrder(ctx, owner, orderID)
}

func (s *Service) ListOrders(ctx context.Context, owner string, status *broker.Status, page journal.Page) ([]broker.Order, error) {
	return s.store.ListOrders(ctx, journal.OrderQuery{OwnerID: owner, Status: status, Page: page})
}

func (s *Service) ListTrades(ctx context.Context, owner, symbol string, page journal.Page) ([]broker.Trade, error) {
	return s.store.ListTrades(ctx, journal.TradeQuery{OwnerID: owner, Symbol: normalizeSymbol(symbol), Page: page})
}

func (s *Service) GetPosition(ctx context.Context, owner, symbol string) (broker.Position, error) {
	return s.store.GetPosition(ctx, owner, normalizeSymbol(symbol))
}

// ListPositions returns open positions only unless includeFlat is set.
func (s *Service) ListPositions(ctx context.Context, owner string, includeFlat bool) ([]broker.Position, error) {
	return s.store.ListPositions(ctx, journal.PositionQuery{OwnerID: owner, IncludeFlat: includeFlat})
}

func normalizeSymbol(s string) string {
	return broker.OrderRequest{Symbol: s}.Normalize().Symbol
}
