// Command pairagent runs the statistical-arbitrage pair scanner.
//
// Usage:
//
//	pairagent serve                      # scheduler + HTTP surface
//	pairagent report --output-dir docs   # markdown and CSV report from the position store
//	pairagent backtest --pairs BTCUSDT/ETHUSDT --window 200 --bars 500
//	pairagent migrate                    # apply database migrations
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pair-agent/internal/config"
	"pair-agent/internal/logging"
)

// env is the loaded configuration and logger shared by subcommands.
type env struct {
	cfg *config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "pairagent",
		Short: "Statistical-arbitrage pair scanner with simulated positions",
		Long: `pairagent scans instrument pairs for mean-reverting spreads, opens simulated
long/short spread positions when a signal qualifies, and tracks them until an
exit rule fires. Configuration is read from a YAML file, a .env file and
PAIRAGENT_* environment variables; command-line flags override all three.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = logger
			return nil
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(e),
		newReportCmd(e),
		newBacktestCmd(e),
		newMigrateCmd(e),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
