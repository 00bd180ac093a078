package cmd

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/ledger"
	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Inspect, revalue and reconcile positions",
	Long: `Work with per-owner positions.

Subcommands:
  list      - List positions
  show      - Show one position
  revalue   - Mark every open position to the current quote
  reconcile - Replay trade history and compare with the stored positions

Examples:
  oms positions list --owner alice
  oms positions reconcile --owner alice --symbol AAPL
  oms positions reconcile`,
}

var positionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List positions",
	Args:  cobra.NoArgs,
	RunE:  runPositionsList,
}

var positionsShowCmd = &cobra.Command{
	Use:   "show <symbol>",
	Short: "Show one position",
	Args:  cobra.ExactArgs(1),
	RunE:  runPositionsShow,
}

var positionsRevalueCmd = &cobra.Command{
	Use:   "revalue",
	Short: "Mark every open position to the current quote",
	Args:  cobra.NoArgs,
	RunE:  runPositionsRevalue,
}

var positionsReconcileCmd = &cobra.Command{
	Use:     "reconcile",
	Aliases: []string{"verify"},
	Short:   "Replay trade history and compare with the stored positions",
	Args:    cobra.NoArgs,
	RunE:    runPositionsReconcile,
}

var (
	positionsOwner  string
	positionsSymbol string
	positionsAll    bool
)

func init() {
	rootCmd.AddCommand(positionsCmd)
	positionsCmd.AddCommand(positionsListCmd, positionsShowCmd, positionsRevalueCmd, positionsReconcileCmd)

	positionsCmd.PersistentFlags().StringVarP(&positionsOwner, "owner", "u", "", "owner (user) id, empty for all")
	positionsListCmd.Flags().BoolVarP(&positionsAll, "all", "a", false, "include flat positions")
	positionsReconcileCmd.Flags().StringVarP(&positionsSymbol, "symbol", "s", "", "only this symbol (needs --owner)")
}

func runPositionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	positions, err := a.store.ListPositions(cmd.Context(), journal.PositionQuery{OwnerID: positionsOwner, IncludeFlat: positionsAll})
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	for _, p := range positions {
		fmt.Println(journal.FormatPositionOrg(p))
	}
	return nil
}

func runPositionsShow(cmd *cobra.Command, args []string) error {
	if positionsOwner == "" {
		return fmt.Errorf("--owner is required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.svc.GetPosition(cmd.Context(), positionsOwner, args[0])
	if err != nil {
		return err
	}
	fmt.Println(journal.FormatPositionOrg(p))
	return nil
}

func runPositionsRevalue(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.revalue(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Revalued %d positions, %d without a quote\n", v.Revalued, v.Skipped)
	return nil
}

func runPositionsReconcile(cmd *cobra.Command, args []string) error {
	if positionsSymbol != "" && positionsOwner == "" {
		return fmt.Errorf("--symbol needs --owner")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	type key struct{ owner, symbol string }
	var keys []key
	if positionsSymbol != "" {
		keys = append(keys, key{positionsOwner, positionsSymbol})
	} else {
		positions, err := a.store.ListPositions(cmd.Context(), journal.PositionQuery{OwnerID: positionsOwner, IncludeFlat: true})
		if err != nil {
			return fmt.Errorf("list positions: %w", err)
		}
		for _, p := range positions {
			keys = append(keys, key{p.OwnerID, p.Symbol})
		}
	}

	drifted := 0
	for _, k := range keys {
		_, err := a.ledger.Reconcile(cmd.Context(), k.owner, k.symbol)
		var drift *ledger.Drift
		switch {
		case err == nil:
		case errors.As(err, &drift):
			drifted++
			fmt.Println("✗", drift.Error())
		default:
			return err
		}
	}

	fmt.Printf("Checked %d positions, %d drifted\n", len(keys), drifted)
	if drifted > 0 {
		return fmt.Errorf("%d positions disagree with their trades", drifted)
	}
	return nil
}
