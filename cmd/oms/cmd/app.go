package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/config"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/ledger"
	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/notify"
	"github.com/rustyeddy/oms/risk"
	"github.com/rustyeddy/oms/sim"
	"github.com/rustyeddy/oms/trading"
	"github.com/sirupsen/logrus"
)

// app is every component of a running instance, wired from config.
type app struct {
	cfg     *config.Config
	timings config.Timings
	log     *logrus.Logger
	store   journal.Store
	quotes  market.QuoteSource
	ledger  *ledger.Ledger
	engine  *sim.Engine
	hub     *notify.Hub
	svc     *trading.Service
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.Logging)

	timings, err := cfg.Engine.Timings()
	if err != nil {
		return nil, err
	}
	money, err := cfg.Money()
	if err != nil {
		return nil, err
	}

	store, err := journal.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	quotes, err := newQuoteSource(cfg.Quotes, money, timings)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		timings: timings,
		log:     log,
		store:   store,
		quotes:  quotes,
		ledger:  ledger.New(store, log),
		hub:     notify.NewHub(log),
	}

	ecfg := sim.Config{
		Commission: sim.Commission{
			Rate:    money.CommissionRate,
			Minimum: money.CommissionMinimum,
		},
		QuoteTimeout:   timings.QuoteTimeout,
		SettlementDays: cfg.Engine.SettlementDays,
	}
	notifier := notify.Fanout{notify.Log{Log: log}, a.hub}
	a.engine = sim.NewEngine(store, a.ledger, quotes, notifier, ecfg, log)

	cash := trading.NewStaticCash(money.DefaultCash)
	for owner, amount := range money.Cash {
		cash.Set(owner, amount)
	}
	validator := risk.NewValidator(risk.Policy{MaxOrderQuantity: cfg.Risk.MaxOrderQuantity})
	a.svc = trading.New(store, a.engine, validator, trading.Holdings{Cash: cash, Store: store},
		market.WithTimeout(quotes, timings.QuoteTimeout), log)
	return a, nil
}

func (a *app) Close() error { return a.store.Close() }

// revalue marks positions to market through the same bounded source the
// service prices orders with.
func (a *app) revalue(ctx context.Context) (ledger.Valuation, error) {
	return a.ledger.Revalue(ctx, market.WithTimeout(a.quotes, a.timings.QuoteTimeout))
}

func newQuoteSource(qc config.QuotesConfig, m config.Money, t config.Timings) (market.QuoteSource, error) {
	var src market.QuoteSource
	switch qc.Source {
	case "http":
		src = market.NewHTTPSource(qc.URL, qc.RatePerSecond)
	case "alpaca":
		src = market.NewAlpacaSource(qc.AlpacaKey, qc.AlpacaSecret, qc.AlpacaDataURL)
	case "static":
		return market.Static(m.Static), nil
	default:
		return nil, fmt.Errorf("unknown quote source %q", qc.Source)
	}
	if t.QuoteMaxAge > 0 {
		src = market.NewCached(src, t.QuoteMaxAge)
	}
	return src, nil
}

// parseStatus turns a --status flag into a filter; empty means any.
func parseStatus(s string) (*broker.Status, error) {
	if s == "" {
		return nil, nil
	}
	st := broker.Status(strings.ToUpper(s))
	if !st.Valid() {
		return nil, fmt.Errorf("unknown status %q", s)
	}
	return &st, nil
}
