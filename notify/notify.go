// Package notify delivers executed trades to interested parties. Every
// Notifier here returns quickly; slow consumers are dropped, never waited
// on.
package notify

import (
	"context"
	"errors"

	"github.com/rustyeddy/oms/broker"
	"github.com/sirupsen/logrus"
)

// Log writes a confirmation line per trade.
type Log struct {
	Log logrus.FieldLogger
}

func (l Log) TradeExecuted(_ context.Context, t broker.Trade) error {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"trade":      t.ID,
		"order":      t.OrderID,
		"owner":      t.OwnerID,
		"symbol":     t.Symbol,
		"side":       t.Side,
		"quantity":   t.Quantity,
		"price":      t.Price.String(),
		"commission": t.Commission.String(),
	}).Info("trade confirmation")
	return nil
}

// Fanout calls every notifier and joins their errors.
type Fanout []broker.Notifier

func (f Fanout) TradeExecuted(ctx context.Context, t broker.Trade) error {
	var errs []error
	for _, n := range f {
		if err := n.TradeExecuted(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
