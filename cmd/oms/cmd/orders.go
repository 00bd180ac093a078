package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/sim"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Submit, cancel and inspect orders",
	Long: `Work with orders in the configured store.

Subcommands:
  submit   - Validate and submit a new order
  cancel   - Cancel a pending order
  show     - Show one order
  list     - List orders, newest first
  evaluate - Run one evaluation and expiry pass

Examples:
  oms orders submit --owner alice --symbol AAPL --side BUY --qty 10
  oms orders submit --owner alice --symbol AAPL --side SELL --type LIMIT --price 160 --qty 5
  oms orders list --owner alice --status PENDING`,
}

var ordersSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Validate and submit a new order",
	Args:  cobra.NoArgs,
	RunE:  runOrdersSubmit,
}

var ordersCancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel a pending order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrdersCancel,
}

var ordersShowCmd = &cobra.Command{
	Use:   "show <order-id>",
	Short: "Show one order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrdersShow,
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orders, newest first",
	Args:  cobra.NoArgs,
	RunE:  runOrdersList,
}

var ordersEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one evaluation and expiry pass",
	Args:  cobra.NoArgs,
	RunE:  runOrdersEvaluate,
}

var (
	orderOwner   string
	orderSymbol  string
	orderSide    string
	orderType    string
	orderQty     int64
	orderPrice   string
	orderStop    string
	orderTIF     string
	orderExpires string
	orderStatus  string
	orderLimit   int
	orderSkip    int
)

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersSubmitCmd, ordersCancelCmd, ordersShowCmd, ordersListCmd, ordersEvaluateCmd)

	ordersCmd.PersistentFlags().StringVarP(&orderOwner, "owner", "u", "", "owner (user) id")

	f := ordersSubmitCmd.Flags()
	f.StringVarP(&orderSymbol, "symbol", "s", "", "symbol (required)")
	f.StringVar(&orderSide, "side", "BUY", "BUY or SELL")
	f.StringVarP(&orderType, "type", "t", "MARKET", "MARKET, LIMIT, STOP or STOP_LIMIT")
	f.Int64VarP(&orderQty, "qty", "q", 0, "quantity (required)")
	f.StringVar(&orderPrice, "price", "", "limit price")
	f.StringVar(&orderStop, "stop", "", "stop price")
	f.StringVar(&orderTIF, "tif", "DAY", "time in force: DAY or GTC")
	f.StringVar(&orderExpires, "expires", "", "expiry time (RFC3339)")
	ordersSubmitCmd.MarkFlagRequired("symbol")
	ordersSubmitCmd.MarkFlagRequired("qty")

	ordersListCmd.Flags().StringVar(&orderStatus, "status", "", "only orders in this status")
	ordersListCmd.Flags().IntVar(&orderLimit, "limit", journal.DefaultPageSize, "page size")
	ordersListCmd.Flags().IntVar(&orderSkip, "skip", 0, "rows to skip")
}

func optionalDecimal(s, name string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &d, nil
}

func runOrdersSubmit(cmd *cobra.Command, args []string) error {
	if orderOwner == "" {
		return fmt.Errorf("--owner is required")
	}
	req := broker.OrderRequest{
		Symbol:      orderSymbol,
		Kind:        broker.Kind(orderType),
		Side:        broker.Side(orderSide),
		Quantity:    orderQty,
		TimeInForce: broker.TimeInForce(orderTIF),
	}
	var err error
	if req.Price, err = optionalDecimal(orderPrice, "price"); err != nil {
		return err
	}
	if req.StopPrice, err = optionalDecimal(orderStop, "stop"); err != nil {
		return err
	}
	if orderExpires != "" {
		t, err := time.Parse(time.RFC3339, orderExpires)
		if err != nil {
			return fmt.Errorf("expires: %w", err)
		}
		req.ExpiresAt = &t
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.svc.SubmitOrder(cmd.Context(), orderOwner, req)
	if err != nil {
		return err
	}
	fmt.Println(journal.FormatOrderOrg(o))
	return nil
}

func runOrdersCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.svc.CancelOrder(cmd.Context(), orderOwner, args[0])
	if err != nil {
		return fmt.Errorf("cancel %s: %w", args[0], err)
	}
	fmt.Println(journal.FormatOrderOrg(o))
	return nil
}

func runOrdersShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.svc.GetOrder(cmd.Context(), orderOwner, args[0])
	if err != nil {
		return err
	}
	fmt.Println(journal.FormatOrderOrg(o))
	return nil
}

func runOrdersList(cmd *cobra.Command, args []string) error {
	status, err := parseStatus(orderStatus)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orders, err := a.svc.ListOrders(cmd.Context(), orderOwner, status, journal.Page{Offset: orderSkip, Limit: orderLimit})
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	for _, o := range orders {
		fmt.Println(journal.FormatOrderOrg(o))
	}
	return nil
}

func runOrdersEvaluate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	expired, err := a.engine.ExpireOrders(cmd.Context())
	if err != nil {
		return err
	}
	c, err := a.engine.Evaluate(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Evaluated %d open orders\n", c.Evaluated)
	fmt.Printf("  Expired:  %d\n", expired)
	for _, k := range []sim.Outcome{sim.Filled, sim.Waiting, sim.Deferred, sim.Lost, sim.Blocked, sim.Stale} {
		if n := c.Outcomes[k]; n > 0 {
			fmt.Printf("  %-9s %d\n", string(k)+":", n)
		}
	}
	for _, t := range c.Trades {
		fmt.Println(journal.FormatTradeOrg(t))
	}
	return nil
}
