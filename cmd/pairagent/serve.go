package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pair-agent/internal/analysis"
	"pair-agent/internal/api"
	"pair-agent/internal/ledger"
	"pair-agent/internal/marketdata"
	"pair-agent/internal/metrics"
	"pair-agent/internal/observability"
	"pair-agent/internal/orchestrator"
	"pair-agent/internal/qualifier"
	"pair-agent/internal/risk"
)

func newServeCmd(e *env) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP surface until interrupted",
		Long: `serve restores open positions from the position store, then runs full scan
cycles and fast exit passes on their intervals. /health, /metrics, /status,
/positions and /performance are served on the configured address.
SIGINT or SIGTERM stops the scheduler after the current run and drains HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), e, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations on startup")
	return cmd
}

func runServe(parent context.Context, e *env, migrate bool) error {
	cfg, logger := e.cfg, e.log
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(cfg.Fields()).Info("starting pair agent")

	st, err := openStores(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer st.Close()

	provider, closeMD, err := newMarketData(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeMD()

	if cfg.MarketData.StreamEnabled {
		stream := marketdata.NewTickerStream(cfg.MarketData.StreamURL, nil, logger)
		go stream.Run(ctx)
		provider = marketdata.NewStreamingProvider(provider, stream, cfg.MarketData.MaxPriceAge)
	}

	sel, err := newSelector(cfg)
	if err != nil {
		return err
	}

	led := ledger.New(st.positions, cfg.ExitConfig(),
		ledger.WithLogger(logger),
		ledger.WithPersistErrorHook(func(op string, _ error) {
			observability.RecordPersistFailure(op)
		}),
	)
	open, err := led.Restore(ctx)
	if err != nil {
		return err
	}
	observability.SetOpenPositions(open)

	agg := metrics.NewAggregator(led, st.performance, cfg.Scan.Leverage)

	orch := orchestrator.New(orchestrator.Options{
		Config:        cfg.OrchestratorConfig(),
		MarketData:    provider,
		Selector:      sel,
		Analyzer:      analysis.New(cfg.AnalyzerConfig()),
		Qualifier:     qualifier.New(cfg.QualifierConfig()),
		Risk:          risk.NewManager(cfg.RiskConfig()),
		Ledger:        led,
		Aggregator:    agg,
		AnalysisStore: st.analyses,
		Logger:        logger,
	})
	sched := orchestrator.NewScheduler(orch, cfg.SchedulerConfig(), logger)

	srvCfg := api.DefaultConfig()
	srvCfg.Addr = cfg.Server.Addr
	srv := api.NewServer(srvCfg, sched, led, agg, logger)

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-srvErr:
		if err != nil {
			logger.WithError(err).Error("http server failed")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && !errors.Is(shutdownErr, context.DeadlineExceeded) {
		logger.WithError(shutdownErr).Warn("http shutdown")
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before the shutdown timeout")
	}

	logger.Info("shutdown complete")
	return err
}
