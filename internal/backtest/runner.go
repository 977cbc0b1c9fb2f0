package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"pair-agent/internal/domain"
	"pair-agent/internal/ledger"
	"pair-agent/internal/logging"
	"pair-agent/internal/orchestrator"
	"pair-agent/internal/risk"
)

// Backtest errors.
var (
	ErrNoPairs             = errors.New("no pairs with history")
	ErrInsufficientHistory = errors.New("insufficient aligned history")
)

// SeriesSource provides historical price series. marketdata.Provider implements it.
type SeriesSource interface {
	GetSeries(ctx context.Context, symbol string, lookback int) (*domain.PriceSeries, error)
}

// Config controls one backtest run.
type Config struct {
	RunID      string
	Pairs      []domain.Pair
	Window     int     // bars per analysis window
	Bars       int     // bars replayed after the first full window
	EntryEvery int     // bars between entry scans, 1 scans every bar
	Leverage   float64 // for annualized return in the report
}

// Runner executes backtests with a fixed strategy stack.
type Runner struct {
	source    SeriesSource
	analyzer  orchestrator.PairAnalyzer
	qualifier orchestrator.SignalQualifier
	risk      *risk.Manager
	exits     ledger.ExitConfig
	log       *logrus.Entry
}

// NewRunner creates a new backtest runner.
func NewRunner(
	source SeriesSource,
	analyzer orchestrator.PairAnalyzer,
	qualifier orchestrator.SignalQualifier,
	riskManager *risk.Manager,
	exits ledger.ExitConfig,
	logger logrus.FieldLogger,
) *Runner {
	return &Runner{
		source:    source,
		analyzer:  analyzer,
		qualifier: qualifier,
		risk:      riskManager,
		exits:     exits,
		log:       logging.Component(logger, "backtest"),
	}
}

// Run fetches history for every pair leg and replays it bar by bar.
// Symbols whose history cannot be fetched are dropped with their pairs.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Results, error) {
	if cfg.Window < 3 {
		return nil, fmt.Errorf("window must be at least 3, got %d", cfg.Window)
	}
	if cfg.Bars < 1 {
		return nil, fmt.Errorf("bars must be at least 1, got %d", cfg.Bars)
	}
	if cfg.EntryEvery < 1 {
		cfg.EntryEvery = 1
	}
	if cfg.RunID == "" {
		cfg.RunID = "backtest"
	}

	var series []*domain.PriceSeries
	seen := make(map[string]struct{})
	for _, pair := range cfg.Pairs {
		for _, symbol := range []string{pair.SymbolA, pair.SymbolB} {
			if _, ok := seen[symbol]; ok {
				continue
			}
			seen[symbol] = struct{}{}

			s, err := r.source.GetSeries(ctx, symbol, cfg.Window+cfg.Bars)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				r.log.WithError(err).WithField("symbol", symbol).Warn("history unavailable, dropping symbol")
				continue
			}
			series = append(series, s)
		}
	}

	tl := NewTimeline(series)

	var pairs []domain.Pair
	for _, pair := range cfg.Pairs {
		if tl.Has(pair.SymbolA) && tl.Has(pair.SymbolB) {
			pairs = append(pairs, pair)
		}
	}
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}
	if tl.Len() < cfg.Window+1 {
		return nil, fmt.Errorf("%w: %d aligned bars, need %d", ErrInsufficientHistory, tl.Len(), cfg.Window+1)
	}

	engine := newEngine(cfg, tl, pairs, r)

	r.log.WithFields(logrus.Fields{
		"run_id": cfg.RunID,
		"pairs":  len(pairs),
		"bars":   tl.Len() - cfg.Window + 1,
		"window": cfg.Window,
	}).Info("backtest started")

	for i := cfg.Window - 1; i < tl.Len(); i++ {
		if err := engine.OnBar(ctx, i); err != nil {
			return nil, err
		}
	}

	results := engine.Results()
	r.log.WithFields(logrus.Fields{
		"run_id":    cfg.RunID,
		"opened":    results.Opened,
		"closed":    results.Closed,
		"total_pnl": results.Report.Summary.TotalPnLPct,
	}).Info("backtest completed")
	return results, nil
}
