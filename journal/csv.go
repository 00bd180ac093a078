package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/oms/broker"
)

var tradeCSVHeader = []string{
	"trade_id", "order_id", "user_id", "symbol", "side", "quantity",
	"price", "commission", "executed_at", "settlement_date",
}

// WriteTradesCSV writes trades with a header row. Decimals are written
// in their exact string form.
func WriteTradesCSV(w io.Writer, trades []broker.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeCSVHeader); err != nil {
		return err
	}

	for _, t := range trades {
		settle := ""
		if t.SettlementDate != nil {
			settle = t.SettlementDate.UTC().Format("2006-01-02")
		}
		if err := cw.Write([]string{
			t.ID,
			t.OrderID,
			t.OwnerID,
			t.Symbol,
			string(t.Side),
			strconv.FormatInt(t.Quantity, 10),
			t.Price.String(),
			t.Commission.String(),
			t.ExecutedAt.UTC().Format(time.RFC3339Nano),
			settle,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
