// Package orchestrator drives the scan loop.
// A full cycle runs: exit checks → candidate scan (analyze → qualify → admit → open)
// → mark refresh → performance snapshot. The fast pass runs exit checks alone.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"pair-agent/internal/domain"
	"pair-agent/internal/idhash"
	"pair-agent/internal/ledger"
	"pair-agent/internal/logging"
	"pair-agent/internal/metrics"
	"pair-agent/internal/observability"
	"pair-agent/internal/qualifier"
	"pair-agent/internal/risk"
	"pair-agent/internal/storage"
)

// MarketData provides price series and spot prices.
type MarketData interface {
	GetSeries(ctx context.Context, symbol string, lookback int) (*domain.PriceSeries, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// PairSelector proposes candidate pairs.
type PairSelector interface {
	NextCandidates(ctx context.Context, count int) ([]domain.Pair, error)
}

// PairAnalyzer computes spread statistics for a pair. *analysis.Analyzer implements it.
type PairAnalyzer interface {
	Analyze(pair domain.Pair, seriesA, seriesB *domain.PriceSeries) (*domain.AnalysisResult, error)
}

// SignalQualifier decides tradeability. *qualifier.Qualifier implements it.
type SignalQualifier interface {
	Qualify(r *domain.AnalysisResult) qualifier.Decision
}

// Config holds scan parameters.
type Config struct {
	ScanBudget     int           // candidates analyzed per cycle
	BatchSize      int           // candidates requested per selector call
	InterScanDelay time.Duration // pause between batches
	Lookback       int           // series length requested per symbol
	FallbackPairs  []domain.Pair // probed when the budget ends without a trade
}

// DefaultConfig returns the default scan parameters.
func DefaultConfig() Config {
	return Config{
		ScanBudget:     30,
		BatchSize:      5,
		InterScanDelay: 2 * time.Second,
		Lookback:       200,
	}
}

// Options for creating Orchestrator.
type Options struct {
	Config Config

	// Required collaborators
	MarketData MarketData
	Selector   PairSelector
	Analyzer   PairAnalyzer
	Qualifier  SignalQualifier
	Risk       *risk.Manager
	Ledger     *ledger.Ledger

	// Optional
	Aggregator    *metrics.Aggregator   // nil skips performance snapshots
	AnalysisStore storage.AnalysisStore // nil skips analysis recording
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

// Orchestrator coordinates one scan cycle or exit pass at a time.
// It is not safe for concurrent use; Scheduler serializes runs.
type Orchestrator struct {
	cfg Config

	md        MarketData
	selector  PairSelector
	analyzer  PairAnalyzer
	qualifier SignalQualifier
	risk      *risk.Manager
	ledger    *ledger.Ledger

	aggregator    *metrics.Aggregator
	analysisStore storage.AnalysisStore

	log *logrus.Entry
	now func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultConfig().Lookback
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:           cfg,
		md:            opts.MarketData,
		selector:      opts.Selector,
		analyzer:      opts.Analyzer,
		qualifier:     opts.Qualifier,
		risk:          opts.Risk,
		ledger:        opts.Ledger,
		aggregator:    opts.Aggregator,
		analysisStore: opts.AnalysisStore,
		log:           logging.Component(opts.Logger, "orchestrator"),
		now:           now,
	}
}

// ExitReport summarizes one exit-check pass.
type ExitReport struct {
	Checked int // open positions examined
	Closed  int
	Failed  int // positions with a data or ledger failure
}

// CycleReport summarizes one full cycle.
type CycleReport struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Exits ExitReport

	Scanned      int            // candidates analyzed (counts against the budget)
	Rejected     map[string]int // by qualifier or risk reason
	Failures     int            // candidates skipped on data/persistence failures
	CapReached   bool           // stopped because open positions hit the concurrency cap
	UsedFallback bool

	Opened      *domain.Position
	Performance *domain.PerformanceSnapshot
}

// RunExitChecks runs the fast exit pass over all open positions.
func (o *Orchestrator) RunExitChecks(ctx context.Context) ExitReport {
	return o.runExitChecks(ctx, newSeriesCache(o.md, o.cfg.Lookback))
}

func (o *Orchestrator) runExitChecks(ctx context.Context, cache *seriesCache) ExitReport {
	var report ExitReport

	open := o.ledger.OpenPositions()
	if len(open) == 0 {
		return report
	}

	for _, p := range open {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		log := o.log.WithFields(logrus.Fields{"position_id": p.ID, "pair": p.Pair.Key()})

		quote := o.quote(ctx, p.Pair, log)

		// Mean reversion needs a fresh z; the other rules still run without one.
		if result, err := o.analyze(ctx, p.Pair, cache); err != nil {
			o.logFailure(log, "fresh analysis unavailable for exit check", err)
		} else {
			z := result.ZScore
			quote.ZScore = &z
		}

		res, err := o.ledger.CheckExits(ctx, p.ID, quote, o.now())
		if err != nil {
			report.Failed++
			o.logFailure(log, "exit check failed", err)
			continue
		}
		if res.Closed {
			report.Closed++
			observability.RecordPositionClosed(string(res.Reason))
		}
	}

	observability.SetOpenPositions(o.ledger.OpenCount())
	return report
}

// RunCycle runs one full cycle. Only context cancellation is returned as an error;
// every other failure is isolated to its candidate or position.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		StartedAt: o.now(),
		Rejected:  make(map[string]int),
	}
	cache := newSeriesCache(o.md, o.cfg.Lookback)
	var snapshots []*domain.AnalysisSnapshot

	report.Exits = o.runExitChecks(ctx, cache)

	scan := &scanState{seen: make(map[string]struct{})}
	err := o.scan(ctx, cache, scan, report, &snapshots)

	if err == nil && report.Opened == nil && !report.CapReached && len(o.cfg.FallbackPairs) > 0 {
		report.UsedFallback = true
		o.log.WithField("pairs", len(o.cfg.FallbackPairs)).Info("scan budget exhausted, probing fallback pairs")
		for _, pair := range o.cfg.FallbackPairs {
			if ctx.Err() != nil {
				err = ctx.Err()
				break
			}
			if !scan.claim(pair) || o.ledger.HasOpen(pair) {
				continue
			}
			if opened := o.evaluate(ctx, pair, cache, report, &snapshots); opened != nil {
				report.Opened = opened
				break
			}
		}
	}

	o.recordAnalyses(snapshots)

	if err != nil {
		report.FinishedAt = o.now()
		return report, err
	}

	o.refreshMarks(ctx)
	report.Performance = o.updatePerformance(ctx)
	report.FinishedAt = o.now()

	fields := logrus.Fields{
		"scanned":  report.Scanned,
		"closed":   report.Exits.Closed,
		"failures": report.Failures,
		"open":     o.ledger.OpenCount(),
	}
	if report.Opened != nil {
		fields["opened"] = report.Opened.Pair.Key()
	}
	o.log.WithFields(fields).Info("cycle completed")
	return report, nil
}

// scanState holds per-cycle counters. It is reset every cycle.
type scanState struct {
	seen map[string]struct{}
}

// claim marks pair as visited this cycle; false if it was already visited.
func (s *scanState) claim(pair domain.Pair) bool {
	key := unorderedKey(pair)
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func (o *Orchestrator) scan(ctx context.Context, cache *seriesCache, scan *scanState, report *CycleReport, snapshots *[]*domain.AnalysisSnapshot) error {
	maxOpen := o.risk.Config().Limits.MaxConcurrentPositions

	for report.Scanned < o.cfg.ScanBudget {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.ledger.OpenCount() >= maxOpen {
			report.CapReached = true
			return nil
		}

		want := o.cfg.BatchSize
		if remaining := o.cfg.ScanBudget - report.Scanned; want > remaining {
			want = remaining
		}
		batch, err := o.selector.NextCandidates(ctx, want)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.RecordCandidateError("selector")
			o.log.WithError(err).Warn("pair selector failed, ending scan")
			return nil
		}
		if len(batch) == 0 {
			return nil
		}

		progressed := false
		for _, pair := range batch {
			if report.Scanned >= o.cfg.ScanBudget {
				break
			}
			if !pair.Valid() || !scan.claim(pair) || o.ledger.HasOpen(pair) {
				continue
			}
			progressed = true
			report.Scanned++
			if opened := o.evaluate(ctx, pair, cache, report, snapshots); opened != nil {
				report.Opened = opened
				return nil
			}
		}
		// A selector that only repeats itself would otherwise spin until the budget is gone.
		if !progressed {
			return nil
		}

		if o.cfg.InterScanDelay > 0 && report.Scanned < o.cfg.ScanBudget {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.InterScanDelay):
			}
		}
	}
	return nil
}

// evaluate runs one candidate through analyze → qualify → admit → open.
func (o *Orchestrator) evaluate(ctx context.Context, pair domain.Pair, cache *seriesCache, report *CycleReport, snapshots *[]*domain.AnalysisSnapshot) *domain.Position {
	log := o.log.WithField("pair", pair.Key())
	observability.RecordCandidateEvaluated()

	result, err := o.analyze(ctx, pair, cache)
	if err != nil {
		report.Failures++
		o.logFailure(log, "candidate skipped", err)
		return nil
	}

	decision := o.qualifier.Qualify(result)
	*snapshots = append(*snapshots, o.snapshot(result, decision))

	log = log.WithFields(logrus.Fields{
		"z_score":     result.ZScore,
		"correlation": result.Correlation,
		"half_life":   result.HalfLife,
		"p_value":     result.CointegrationPValue,
	})
	if !decision.Tradeable {
		report.Rejected[string(decision.Reason)]++
		observability.RecordCandidateRejected(string(decision.Reason))
		log.WithField("reason", decision.Reason).Debug("candidate not tradeable")
		return nil
	}
	if decision.Overridden {
		log.WithFields(logrus.Fields{
			"base_signal": result.Signal,
			"direction":   decision.Direction,
			"threshold":   decision.EffectiveThreshold,
		}).Info("dynamic threshold overrides base signal")
	}

	size := o.risk.Size(o.ledger.ClosedPositions(), result.Volatility)
	if err := o.risk.Admit(pair, o.ledger.OpenPositions(), size); err != nil {
		reason := riskReason(err)
		report.Rejected[reason]++
		observability.RecordCandidateRejected(reason)
		log.WithError(err).Info("candidate rejected by risk limits")
		return nil
	}

	priceA, err := o.md.GetCurrentPrice(ctx, pair.SymbolA)
	if err != nil {
		report.Failures++
		o.logFailure(log, "entry price unavailable", err)
		return nil
	}
	priceB, err := o.md.GetCurrentPrice(ctx, pair.SymbolB)
	if err != nil {
		report.Failures++
		o.logFailure(log, "entry price unavailable", err)
		return nil
	}

	pos, err := o.ledger.Open(ctx, ledger.OpenRequest{
		Pair:         pair,
		Direction:    decision.Direction,
		PriceA:       priceA,
		PriceB:       priceB,
		ZScore:       result.ZScore,
		HedgeRatio:   result.HedgeRatio,
		HalfLife:     result.HalfLife,
		SizeFraction: size,
	})
	if err != nil {
		report.Failures++
		o.logFailure(log, "open failed", err)
		return nil
	}

	observability.RecordPositionOpened()
	observability.SetOpenPositions(o.ledger.OpenCount())
	return pos
}

// analyze fetches both legs through the cache and runs the analyzer.
func (o *Orchestrator) analyze(ctx context.Context, pair domain.Pair, cache *seriesCache) (*domain.AnalysisResult, error) {
	seriesA, err := cache.get(ctx, pair.SymbolA)
	if err != nil {
		return nil, err
	}
	seriesB, err := cache.get(ctx, pair.SymbolB)
	if err != nil {
		return nil, err
	}
	return o.analyzer.Analyze(pair, seriesA, seriesB)
}

// quote fetches current prices for both legs. A failed leg is left at 0,
// which the ledger treats as invalid and skips the mark.
func (o *Orchestrator) quote(ctx context.Context, pair domain.Pair, log *logrus.Entry) ledger.Quote {
	var q ledger.Quote
	var err error
	if q.PriceA, err = o.md.GetCurrentPrice(ctx, pair.SymbolA); err != nil {
		o.logFailure(log.WithField("symbol", pair.SymbolA), "current price unavailable", err)
	}
	if q.PriceB, err = o.md.GetCurrentPrice(ctx, pair.SymbolB); err != nil {
		o.logFailure(log.WithField("symbol", pair.SymbolB), "current price unavailable", err)
	}
	return q
}

// refreshMarks re-marks every open position with current prices.
func (o *Orchestrator) refreshMarks(ctx context.Context) {
	for _, p := range o.ledger.OpenPositions() {
		if ctx.Err() != nil {
			return
		}
		log := o.log.WithFields(logrus.Fields{"position_id": p.ID, "pair": p.Pair.Key()})
		if _, err := o.ledger.Mark(ctx, p.ID, o.quote(ctx, p.Pair, log)); err != nil {
			o.logFailure(log, "mark failed", err)
		}
	}
}

func (o *Orchestrator) updatePerformance(ctx context.Context) *domain.PerformanceSnapshot {
	if o.aggregator == nil {
		return nil
	}
	snap, err := o.aggregator.ComputeAndStore(ctx)
	if err != nil {
		o.logFailure(o.log, "performance snapshot not saved", err)
	}
	if snap != nil {
		observability.UpdatePerformance(snap.WinRate, snap.TotalPnLPct)
	}
	return snap
}

func (o *Orchestrator) snapshot(r *domain.AnalysisResult, d qualifier.Decision) *domain.AnalysisSnapshot {
	return &domain.AnalysisSnapshot{
		SnapshotID:     idhash.ComputeSnapshotID(r.Pair.Key(), r.ComputedAt),
		AnalysisResult: *r,
		Tradeable:      d.Tradeable,
		Reason:         string(d.Reason),
		RecordedAt:     o.now().UnixMilli(),
	}
}

// recordAnalyses writes the cycle's evaluations. Failures are logged only.
func (o *Orchestrator) recordAnalyses(snapshots []*domain.AnalysisSnapshot) {
	if o.analysisStore == nil || len(snapshots) == 0 {
		return
	}

	// The same pair can be evaluated twice on one bar (scan then fallback); keep the first.
	seen := make(map[string]struct{}, len(snapshots))
	unique := snapshots[:0]
	for _, s := range snapshots {
		if _, ok := seen[s.SnapshotID]; ok {
			continue
		}
		seen[s.SnapshotID] = struct{}{}
		unique = append(unique, s)
	}

	// Detached from the cycle context so a shutdown does not drop the batch.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := o.analysisStore.InsertBulk(ctx, unique)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// An earlier cycle may have recorded the same bar; insert the rest one by one.
		err = nil
		for _, s := range unique {
			if e := o.analysisStore.InsertBulk(ctx, []*domain.AnalysisSnapshot{s}); e != nil && !errors.Is(e, storage.ErrDuplicateKey) {
				err = e
				break
			}
		}
	}
	if err != nil {
		observability.RecordPersistFailure("analysis")
		o.log.WithError(err).Warn("recording analysis snapshots failed")
	}
}

// logFailure logs an isolated failure at a severity matching its class.
func (o *Orchestrator) logFailure(log *logrus.Entry, msg string, err error) {
	class := ErrorClass(err)
	observability.RecordCandidateError(class)

	entry := log.WithError(err).WithField("class", class)
	switch class {
	case "client_rejection":
		entry.Debug(msg)
	case "persistence":
		entry.Error(msg)
	case "data_unavailable":
		entry.Info(msg)
	default:
		entry.Warn(msg)
	}
}

// ErrorClass maps an error onto the failure taxonomy.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrClientRejection):
		return "client_rejection"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrInvalidPriceData):
		return "invalid_price"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	case errors.Is(err, domain.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

func riskReason(err error) string {
	switch {
	case errors.Is(err, risk.ErrMaxConcurrent):
		return "max_concurrent"
	case errors.Is(err, risk.ErrMaxCorrelated):
		return "max_correlated"
	case errors.Is(err, risk.ErrPortfolioRisk):
		return "portfolio_risk"
	case errors.Is(err, risk.ErrAlreadyHeld):
		return "already_held"
	default:
		return "risk"
	}
}

func unorderedKey(p domain.Pair) string {
	if p.SymbolA < p.SymbolB {
		return p.SymbolA + "|" + p.SymbolB
	}
	return p.SymbolB + "|" + p.SymbolA
}
