package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"pair-agent/internal/domain"
	"pair-agent/internal/idhash"
	"pair-agent/internal/ledger"
	"pair-agent/internal/orchestrator"
	"pair-agent/internal/reporting"
	"pair-agent/internal/risk"
	"pair-agent/internal/storage/memory"
)

// Results holds backtest output.
type Results struct {
	RunID       string
	Start       time.Time // first replayed bar
	End         time.Time // last replayed bar
	Bars        int
	Evaluations int
	Rejected    map[string]int // by qualifier or risk reason
	Failures    int
	Opened      int
	Closed      int

	Positions []*domain.Position
	Report    *reporting.Report
}

// Engine replays aligned bars through Analyzer → Qualifier → Risk → Ledger
// on a simulated clock. It mirrors one orchestrator cycle per entry bar.
type Engine struct {
	cfg       Config
	timeline  *Timeline
	pairs     []domain.Pair
	analyzer  orchestrator.PairAnalyzer
	qualifier orchestrator.SignalQualifier
	risk      *risk.Manager
	ledger    *ledger.Ledger
	log       *logrus.Entry

	clock   time.Time
	pending string // pair key of the position being opened, for deterministic ids
	first   int
	results *Results
}

func newEngine(cfg Config, tl *Timeline, pairs []domain.Pair, deps *Runner) *Engine {
	e := &Engine{
		cfg:       cfg,
		timeline:  tl,
		pairs:     pairs,
		analyzer:  deps.analyzer,
		qualifier: deps.qualifier,
		risk:      deps.risk,
		log:       deps.log.WithField("run_id", cfg.RunID),
		first:     -1,
		results: &Results{
			RunID:    cfg.RunID,
			Rejected: make(map[string]int),
		},
	}
	e.ledger = ledger.New(memory.NewPositionStore(), deps.exits,
		ledger.WithClock(func() time.Time { return e.clock }),
		ledger.WithIDGenerator(func() string {
			return idhash.ComputePositionID(cfg.RunID, e.pending, e.clock.UnixMilli())
		}),
		ledger.WithLogger(deps.log.WithField("run_id", cfg.RunID)),
	)
	return e
}

// OnBar processes bar i: exit checks on open positions, then an entry scan.
func (e *Engine) OnBar(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.clock = time.UnixMilli(e.timeline.Timestamps[i]).UTC()
	if e.first < 0 {
		e.first = i
		e.results.Start = e.clock
	}
	e.results.End = e.clock
	e.results.Bars++

	if err := e.checkExits(ctx, i); err != nil {
		return err
	}

	if (i-e.first)%e.cfg.EntryEvery != 0 {
		return nil
	}
	if e.ledger.OpenCount() >= e.risk.Config().Limits.MaxConcurrentPositions {
		return nil
	}
	for _, pair := range e.pairs {
		if e.ledger.HasOpen(pair) {
			continue
		}
		if e.evaluate(ctx, pair, i) {
			break
		}
	}
	return nil
}

func (e *Engine) checkExits(ctx context.Context, i int) error {
	for _, p := range e.ledger.OpenPositions() {
		quote := ledger.Quote{
			PriceA: e.timeline.Price(p.Pair.SymbolA, i),
			PriceB: e.timeline.Price(p.Pair.SymbolB, i),
		}
		if result, err := e.analyze(p.Pair, i); err == nil {
			z := result.ZScore
			quote.ZScore = &z
		}

		res, err := e.ledger.CheckExits(ctx, p.ID, quote, e.clock)
		if err != nil {
			return err
		}
		if res.Closed {
			e.results.Closed++
		}
	}
	return nil
}

// evaluate reports whether a position was opened.
func (e *Engine) evaluate(ctx context.Context, pair domain.Pair, i int) bool {
	result, err := e.analyze(pair, i)
	if err != nil {
		e.results.Failures++
		e.log.WithError(err).WithField("pair", pair.Key()).Debug("analysis skipped")
		return false
	}
	e.results.Evaluations++

	decision := e.qualifier.Qualify(result)
	if !decision.Tradeable {
		e.results.Rejected[string(decision.Reason)]++
		return false
	}

	size := e.risk.Size(e.ledger.ClosedPositions(), result.Volatility)
	if err := e.risk.Admit(pair, e.ledger.OpenPositions(), size); err != nil {
		e.results.Rejected[riskReason(err)]++
		return false
	}

	e.pending = pair.Key()
	_, err = e.ledger.Open(ctx, ledger.OpenRequest{
		Pair:         pair,
		Direction:    decision.Direction,
		PriceA:       e.timeline.Price(pair.SymbolA, i),
		PriceB:       e.timeline.Price(pair.SymbolB, i),
		ZScore:       result.ZScore,
		HedgeRatio:   result.HedgeRatio,
		HalfLife:     result.HalfLife,
		SizeFraction: size,
	})
	if err != nil {
		e.results.Failures++
		e.log.WithError(err).WithField("pair", pair.Key()).Warn("open failed")
		return false
	}
	e.results.Opened++
	return true
}

func (e *Engine) analyze(pair domain.Pair, i int) (*domain.AnalysisResult, error) {
	return e.analyzer.Analyze(pair,
		e.timeline.Window(pair.SymbolA, i, e.cfg.Window),
		e.timeline.Window(pair.SymbolB, i, e.cfg.Window),
	)
}

// Results finalizes and returns the backtest results. Open positions stay open.
func (e *Engine) Results() *Results {
	e.results.Positions = e.ledger.All()
	e.results.Report = reporting.Build(e.results.Positions, nil, e.cfg.Leverage, e.results.End)
	return e.results
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
