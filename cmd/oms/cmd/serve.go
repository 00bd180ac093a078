package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rustyeddy/oms/api"
	"github.com/rustyeddy/oms/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trading API and the background loops",
	Long: `Serve the trading HTTP API and run three loops until interrupted:

  evaluate  - try every open order against the current quote
  expire    - move orders past their expiry to EXPIRED
  revalue   - mark open positions to market

Example:
  oms serve -c oms.yaml`,
	RunE: runServe,
}

var serveNoHTTP bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoHTTP, "no-http", false, "run the loops only, without the HTTP API")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedulers := a.schedulers()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.RunAll(ctx, schedulers...)
	}()

	var srvErr error
	if !serveNoHTTP {
		srvErr = a.serveHTTP(ctx)
	} else {
		<-ctx.Done()
	}
	stop()
	wg.Wait()

	a.log.Info("shutdown complete")
	return srvErr
}

func (a *app) schedulers() []*scheduler.Scheduler {
	t := a.timings
	mk := func(name string, every time.Duration, task scheduler.Task) *scheduler.Scheduler {
		return &scheduler.Scheduler{
			Name:       name,
			Interval:   every,
			Backoff:    t.ErrorBackoff,
			MaxBackoff: t.MaxBackoff,
			Task:       task,
			Log:        a.log,
		}
	}
	expiry := t.ExpiryInterval
	if expiry <= 0 {
		expiry = t.Interval
	}
	valuation := t.ValuationInterval
	if valuation <= 0 {
		valuation = 30 * time.Second
	}

	return []*scheduler.Scheduler{
		mk("evaluate", t.Interval, func(ctx context.Context) error {
			_, err := a.engine.Evaluate(ctx)
			return err
		}),
		mk("expire", expiry, func(ctx context.Context) error {
			_, err := a.engine.ExpireOrders(ctx)
			return err
		}),
		mk("revalue", valuation, func(ctx context.Context) error {
			v, err := a.revalue(ctx)
			if err == nil && v.Skipped > 0 {
				a.log.WithField("skipped", v.Skipped).Debug("positions left unvalued")
			}
			return err
		}),
	}
}

func (a *app) serveHTTP(ctx context.Context) error {
	if a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: a.cfg.Server.Addr,
		Handler: api.NewServer(a.svc, a.hub, api.Options{
			JWTSecret:     a.cfg.Server.JWTSecret,
			RatePerSecond: a.cfg.Server.RatePerSecond,
			Burst:         a.cfg.Server.Burst,
		}, a.log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithFields(logrus.Fields{"addr": srv.Addr, "store": a.cfg.Store.Driver}).Info("trading API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
