package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/spf13/cobra"
)

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Query executed trades",
	Long: `Query trades recorded in the store.

Subcommands:
  list  - List trades, newest first
  today - List trades executed today (UTC)
  day   - List trades executed on a specific day (UTC)

Examples:
  oms trades list --owner alice --symbol AAPL
  oms trades day 2024-03-01`,
}

var tradesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trades, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTradesList,
}

var tradesTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades executed today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTradesDay(cmd, time.Now().UTC().Format(time.DateOnly))
	},
}

var tradesDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades executed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTradesDay(cmd, args[0])
	},
}

var (
	tradesOwner  string
	tradesSymbol string
	tradesLimit  int
	tradesSkip   int
)

func init() {
	rootCmd.AddCommand(tradesCmd)
	tradesCmd.AddCommand(tradesListCmd, tradesTodayCmd, tradesDayCmd)

	tradesCmd.PersistentFlags().StringVarP(&tradesOwner, "owner", "u", "", "owner (user) id, empty for all")
	tradesCmd.PersistentFlags().StringVarP(&tradesSymbol, "symbol", "s", "", "only this symbol")
	tradesListCmd.Flags().IntVar(&tradesLimit, "limit", journal.DefaultPageSize, "page size")
	tradesListCmd.Flags().IntVar(&tradesSkip, "skip", 0, "rows to skip")
}

func runTradesList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	trades, err := a.store.ListTrades(cmd.Context(), journal.TradeQuery{
		OwnerID: tradesOwner,
		Symbol:  tradesSymbol,
		Page:    journal.Page{Offset: tradesSkip, Limit: tradesLimit},
	})
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Println(journal.FormatTradesOrg(trades))
	return nil
}

func runTradesDay(cmd *cobra.Command, day string) error {
	start, end, err := dayBounds(day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	trades, err := collectTrades(cmd, a.store, journal.TradeQuery{
		OwnerID: tradesOwner,
		Symbol:  tradesSymbol,
		Since:   start,
		Until:   end,
	})
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Println(journal.FormatTradesOrg(trades))
	return nil
}

func dayBounds(day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, day, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return t, t.Add(24 * time.Hour), nil
}

// collectTrades pages through every trade matching q.
func collectTrades(cmd *cobra.Command, store journal.Store, q journal.TradeQuery) ([]broker.Trade, error) {
	q.Page = journal.Page{Limit: journal.MaxPageSize}
	var out []broker.Trade
	for {
		page, err := store.ListTrades(cmd.Context(), q)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < q.Page.Limit {
			return out, nil
		}
		q.Page.Offset += q.Page.Limit
	}
}
