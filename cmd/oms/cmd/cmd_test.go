package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/oms/config"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/ledger"
	"github.com/rustyeddy/oms/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "oms.sqlite")
	cfg.Quotes.Source = "static"
	cfg.Quotes.Static = map[string]string{"AAPL": "150"}
	cfg.Logging.Level = "error"

	path := filepath.Join(dir, "oms.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "generated.yaml")

	require.NoError(t, execute(t, "config", "init", "-o", out))
	require.NoError(t, execute(t, "config", "validate", "-f", out))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("store:\n  driver: nope\n"), 0644))
	assert.Error(t, execute(t, "config", "validate", "-f", bad))
}

func TestOrderFlow(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	require.NoError(t, execute(t, "-c", cfgPath, "orders", "submit", "-u", "alice", "-s", "AAPL", "--side", "BUY", "-q", "10"))
	require.NoError(t, execute(t, "-c", cfgPath, "positions", "reconcile"))

	csvPath := filepath.Join(dir, "trades.csv")
	require.NoError(t, execute(t, "-c", cfgPath, "export", "--format", "csv", "-o", csvPath))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2, "header plus one trade")
	assert.Contains(t, lines[1], "AAPL")

	pqPath := filepath.Join(dir, "trades.parquet")
	require.NoError(t, execute(t, "-c", cfgPath, "export", "--format", "parquet", "-o", pqPath))
	trades, err := journal.ReadTradesParquet(pqPath)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.EqualValues(t, 10, trades[0].Quantity)

	assert.Error(t, execute(t, "-c", cfgPath, "export", "--format", "xml", "-o", filepath.Join(dir, "x")))

	store, err := journal.Open("sqlite3", filepath.Join(dir, "oms.sqlite"))
	require.NoError(t, err)
	defer store.Close()
	p, err := store.GetPosition(context.Background(), "alice", "AAPL")
	require.NoError(t, err)
	assert.EqualValues(t, 10, p.Quantity)
}

func TestRevalueUsesBoundedQuotes(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	require.NoError(t, execute(t, "-c", cfgPath, "orders", "submit", "-u", "alice", "-s", "AAPL", "--side", "BUY", "-q", "10"))

	cfgFile = cfgPath
	a, err := newApp()
	require.NoError(t, err)
	defer a.Close()
	a.timings.QuoteTimeout = 20 * time.Millisecond
	ctx := context.Background()

	revalue := func() ledger.Valuation {
		t.Helper()
		type result struct {
			v   ledger.Valuation
			err error
		}
		ch := make(chan result, 1)
		go func() {
			v, err := a.revalue(ctx)
			ch <- result{v, err}
		}()
		select {
		case r := <-ch:
			require.NoError(t, r.err)
			return r.v
		case <-time.After(5 * time.Second):
			t.Fatal("revalue waited on a hung quote source")
			return ledger.Valuation{}
		}
	}

	before, err := a.store.GetPosition(ctx, "alice", "AAPL")
	require.NoError(t, err)

	// A source that never answers is cut off by the quote timeout.
	a.quotes = market.QuoteFunc(func(ctx context.Context, symbol string) (market.Quote, error) {
		<-ctx.Done()
		return market.Quote{}, ctx.Err()
	})
	v := revalue()
	assert.Equal(t, 0, v.Revalued)
	assert.Equal(t, 1, v.Skipped)

	// A zero price is not a valuation.
	a.quotes = market.QuoteFunc(func(context.Context, string) (market.Quote, error) {
		return market.Quote{Symbol: "AAPL", Price: decimal.Zero}, nil
	})
	v = revalue()
	assert.Equal(t, 1, v.Skipped)

	p, err := a.store.GetPosition(ctx, "alice", "AAPL")
	require.NoError(t, err)
	assert.True(t, p.MarketValue.Equal(before.MarketValue), "skipped positions keep their valuation")

	a.quotes = market.Static{"AAPL": decimal.NewFromInt(160)}
	v = revalue()
	assert.Equal(t, 1, v.Revalued)

	p, err = a.store.GetPosition(ctx, "alice", "AAPL")
	require.NoError(t, err)
	assert.True(t, p.MarketValue.Equal(decimal.NewFromInt(1600)), p.MarketValue.String())
}
