package cmd

import (
	"os"

	"github.com/rustyeddy/oms/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "oms",
	Short: "Order execution and position reconciliation engine",
	Long: `oms accepts orders, executes them against external quotes and keeps
per-owner positions in step with the trades it records.

It provides tools for:
  - Serving the trading API and the evaluation, expiry and valuation loops
  - Submitting, cancelling and inspecting orders from the command line
  - Listing trades and positions, and reconciling positions against trades
  - Exporting trades as CSV, Parquet or org-mode`,
	SilenceUsage: true,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON, defaults apply when empty)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger builds the process logger from the logging section.
func newLogger(lc config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if lc.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		log.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
