package journal

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rustyeddy/oms/broker"
	"github.com/shopspring/decimal"
)

// TradeRecord is the Parquet schema for exported trades. Money columns
// are exact decimal strings.
type TradeRecord struct {
	ID             string `parquet:"id"`
	OrderID        string `parquet:"order_id"`
	OwnerID        string `parquet:"user_id"`
	Symbol         string `parquet:"symbol"`
	Side           string `parquet:"side"`
	Quantity       int64  `parquet:"quantity"`
	Price          string `parquet:"price"`
	Commission     string `parquet:"commission"`
	ExecutedAt     int64  `parquet:"executed_at,timestamp(millisecond)"` // Unix ms
	SettlementDate int64  `parquet:"settlement_date"`                    // Unix ms, 0 if unset
}

func NewTradeRecord(t broker.Trade) TradeRecord {
	rec := TradeRecord{
		ID:         t.ID,
		OrderID:    t.OrderID,
		OwnerID:    t.OwnerID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Quantity:   t.Quantity,
		Price:      t.Price.String(),
		Commission: t.Commission.String(),
		ExecutedAt: t.ExecutedAt.UnixMilli(),
	}
	if t.SettlementDate != nil {
		rec.SettlementDate = t.SettlementDate.UnixMilli()
	}
	return rec
}

func (r TradeRecord) Trade() (broker.Trade, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return broker.Trade{}, fmt.Errorf("trade %s: price: %w", r.ID, err)
	}
	comm, err := decimal.NewFromString(r.Commission)
	if err != nil {
		return broker.Trade{}, fmt.Errorf("trade %s: commission: %w", r.ID, err)
	}
	t := broker.Trade{
		ID:         r.ID,
		OrderID:    r.OrderID,
		OwnerID:    r.OwnerID,
		Symbol:     r.Symbol,
		Side:       broker.Side(r.Side),
		Quantity:   r.Quantity,
		Price:      price,
		Commission: comm,
		ExecutedAt: time.UnixMilli(r.ExecutedAt).UTC(),
	}
	if r.SettlementDate != 0 {
		sd := time.UnixMilli(r.SettlementDate).UTC()
		t.SettlementDate = &sd
	}
	return t, nil
}

// WriteTradesParquet writes trades to a Parquet file at path.
func WriteTradesParquet(path string, trades []broker.Trade) error {
	records := make([]TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = NewTradeRecord(t)
	}
	return parquet.WriteFile(path, records)
}

// ReadTradesParquet loads trades written by WriteTradesParquet.
func ReadTradesParquet(path string) ([]broker.Trade, error) {
	records, err := parquet.ReadFile[TradeRecord](path)
	if err != nil {
		return nil, err
	}
	out := make([]broker.Trade, 0, len(records))
	for _, r := range records {
		t, err := r.Trade()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
