package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pair-agent/internal/analysis"
	"pair-agent/internal/backtest"
	"pair-agent/internal/domain"
	"pair-agent/internal/qualifier"
	"pair-agent/internal/reporting"
	"pair-agent/internal/risk"
)

type backtestFlags struct {
	pairs      []string
	window     int
	bars       int
	entryEvery int
	runID      string
	outputDir  string
}

func newBacktestCmd(e *env) *cobra.Command {
	f := &backtestFlags{}

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical series through the strategy on a simulated clock",
		Long: `backtest fetches window+bars historical closes for every pair leg, aligns
them on shared timestamps, and replays them bar by bar through the analyzer,
qualifier, risk manager and ledger exit rules. Pairs default to scan.fallback_pairs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, e, f)
		},
	}
	cmd.Flags().StringSliceVar(&f.pairs, "pairs", nil, "pairs to replay as A/B (default: scan.fallback_pairs)")
	cmd.Flags().IntVar(&f.window, "window", 0, "bars per analysis window (default: scan.lookback)")
	cmd.Flags().IntVar(&f.bars, "bars", 500, "bars to replay after the first full window")
	cmd.Flags().IntVar(&f.entryEvery, "entry-every", 1, "bars between entry scans")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run id for deterministic position ids (default: random)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "also write PERFORMANCE.md and trades.csv here")
	return cmd
}

func runBacktest(cmd *cobra.Command, e *env, f *backtestFlags) error {
	cfg := e.cfg
	ctx := cmd.Context()

	raw := f.pairs
	if len(raw) == 0 {
		raw = cfg.Scan.FallbackPairs
	}
	var pairs []domain.Pair
	for _, s := range raw {
		p, ok := domain.ParsePair(s)
		if !ok {
			return fmt.Errorf("invalid pair %q, want A/B", s)
		}
		pairs = append(pairs, p)
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no pairs: pass --pairs or set scan.fallback_pairs")
	}

	window := f.window
	if window == 0 {
		window = cfg.Scan.Lookback
	}
	runID := f.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	provider, closeMD, err := newMarketData(ctx, cfg, e.log)
	if err != nil {
		return err
	}
	defer closeMD()

	runner := backtest.NewRunner(provider,
		analysis.New(cfg.AnalyzerConfig()),
		qualifier.New(cfg.QualifierConfig()),
		risk.NewManager(cfg.RiskConfig()),
		cfg.ExitConfig(),
		e.log,
	)
	results, err := runner.Run(ctx, backtest.Config{
		RunID:      runID,
		Pairs:      pairs,
		Window:     window,
		Bars:       f.bars,
		EntryEvery: f.entryEvery,
		Leverage:   cfg.Scan.Leverage,
	})
	if err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"run_id":      results.RunID,
		"bars":        results.Bars,
		"evaluations": results.Evaluations,
		"failures":    results.Failures,
	}).Info("backtest finished")

	fmt.Fprint(cmd.OutOrStdout(), reporting.RenderMarkdown(results.Report))

	if f.outputDir != "" {
		return writeReport(f.outputDir, results.Report, e.log)
	}
	return nil
}
