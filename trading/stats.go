package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/shopspring/decimal"
)

const DefaultStatsPeriodDays = 30

// Stats summarizes an owner's trading over the last PeriodDays days and
// the current valuation of their open positions.
type Stats struct {
	TotalTrades        int             `json:"total_trades"`
	TotalVolume        decimal.Decimal `json:"total_volume"`
	TotalCommission    decimal.Decimal `json:"total_commission"`
	BuyTrades          int             `json:"buy_trades"`
	SellTrades         int             `json:"sell_trades"`
	TotalPositionValue decimal.Decimal `json:"total_position_value"`
	TotalUnrealizedPnL decimal.Decimal `json:"total_unrealized_pnl"`
	PeriodDays         int             `json:"period_days"`
}

func (s *Service) Stats(ctx context.Context, owner string, periodDays int) (Stats, error) {
	if periodDays <= 0 {
		periodDays = DefaultStatsPeriodDays
	}
	st := Stats{PeriodDays: periodDays}

	since := s.now().UTC().Add(-time.Duration(periodDays) * 24 * time.Hour)
	page := journal.Page{Limit: journal.MaxPageSize}
	for {
		trades, err := s.store.ListTrades(ctx, journal.TradeQuery{OwnerID: owner, Since: since, Page: page})
		if err != nil {
			return Stats{}, fmt.Errorf("stats: trades: %w", err)
		}
		for _, t := range trades {
			st.TotalTrades++
			st.TotalVolume = st.TotalVolume.Add(t.Notional())
			st.TotalCommission = st.TotalCommission.Add(t.Commission)
			if t.Side == broker.Buy {
				st.BuyTrades++
			} else {
				st.SellTrades++
			}
		}
		if len(trades) < page.Limit {
			break
		}
		page.Offset += page.Limit
	}

	positions, err := s.store.ListPositions(ctx, journal.PositionQuery{OwnerID: owner})
	if err != nil {
		return Stats{}, fmt.Errorf("stats: positions: %w", err)
	}
	for _, p := range positions {
		st.TotalPositionValue = st.TotalPositionValue.Add(p.MarketValue)
		st.TotalUnrealizedPnL = st.TotalUnrealizedPnL.Add(p.UnrealizedPnL)
	}
	return st, nil
}
