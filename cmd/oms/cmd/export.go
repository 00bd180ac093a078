package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/oms/journal"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export trades as CSV, Parquet or org-mode",
	Long: `Write every matching trade, oldest pages first, to a file or stdout.

Parquet output needs --out.

Examples:
  oms export --format csv --owner alice > trades.csv
  oms export --format parquet --since 2024-03-01 --out trades.parquet
  oms export --format org --symbol AAPL`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var (
	exportFormat string
	exportOut    string
	exportOwner  string
	exportSymbol string
	exportSince  string
	exportUntil  string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv, parquet or org")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (stdout when empty)")
	exportCmd.Flags().StringVarP(&exportOwner, "owner", "u", "", "owner (user) id, empty for all")
	exportCmd.Flags().StringVarP(&exportSymbol, "symbol", "s", "", "only this symbol")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "first day to include (YYYY-MM-DD, UTC)")
	exportCmd.Flags().StringVar(&exportUntil, "until", "", "first day to exclude (YYYY-MM-DD, UTC)")
}

func runExport(cmd *cobra.Command, args []string) error {
	q := journal.TradeQuery{OwnerID: exportOwner, Symbol: exportSymbol}
	var err error
	if exportSince != "" {
		if q.Since, err = time.ParseInLocation(time.DateOnly, exportSince, time.UTC); err != nil {
			return fmt.Errorf("since: %w", err)
		}
	}
	if exportUntil != "" {
		if q.Until, err = time.ParseInLocation(time.DateOnly, exportUntil, time.UTC); err != nil {
			return fmt.Errorf("until: %w", err)
		}
	}
	if exportFormat == "parquet" && exportOut == "" {
		return fmt.Errorf("parquet export needs --out")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	trades, err := collectTrades(cmd, a.store, q)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	switch exportFormat {
	case "parquet":
		if err := journal.WriteTradesParquet(exportOut, trades); err != nil {
			return err
		}
	case "csv", "org":
		w := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			defer f.Close()
			w = f
		}
		if exportFormat == "csv" {
			err = journal.WriteTradesCSV(w, trades)
		} else {
			_, err = fmt.Fprintln(w, journal.FormatTradesOrg(trades))
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", exportFormat, err)
		}
	default:
		return fmt.Errorf("unknown format %q", exportFormat)
	}

	if exportOut != "" {
		fmt.Fprintf(os.Stderr, "✓ Exported %d trades to %s\n", len(trades), exportOut)
	}
	return nil
}
