package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"pair-agent/internal/analysis"
	"pair-agent/internal/domain"
	"pair-agent/internal/idhash"
	"pair-agent/internal/ledger"
	"pair-agent/internal/qualifier"
	"pair-agent/internal/risk"
)

const hourMs = int64(time.Hour / time.Millisecond)

var baseMs = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

func barTs(i int) int64 {
	return baseMs + int64(i)*hourMs
}

type fakeSource struct {
	series map[string]*domain.PriceSeries
}

func (s *fakeSource) GetSeries(_ context.Context, symbol string, _ int) (*domain.PriceSeries, error) {
	if ser, ok := s.series[symbol]; ok {
		return ser, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrClientRejection, symbol)
}

func makeSeries(symbol string, n int, price func(i int) float64) *domain.PriceSeries {
	s := &domain.PriceSeries{Symbol: symbol}
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, domain.PricePoint{TimestampMs: barTs(i), Price: price(i)})
	}
	return s
}

// barAnalyzer returns a z-score scheduled by bar index; unscheduled bars get 1.0,
// which neither qualifies nor triggers a mean-reversion exit.
type barAnalyzer struct {
	z map[int]float64
}

func (a *barAnalyzer) Analyze(pair domain.Pair, seriesA, _ *domain.PriceSeries) (*domain.AnalysisResult, error) {
	last, _ := seriesA.Last()
	bar := int((last.TimestampMs - baseMs) / hourMs)
	z, ok := a.z[bar]
	if !ok {
		z = 1.0
	}
	return &domain.AnalysisResult{
		Pair:        pair,
		SampleSize:  seriesA.Len(),
		ComputedAt:  last.TimestampMs,
		Correlation: 0.9,
		HedgeRatio:  1,
		ZScore:      z,
		Signal:      domain.SignalFromZScore(z, 2.0),
		HalfLife:    10,
	}, nil
}

func newTestRunner(source SeriesSource, analyzer *barAnalyzer) *Runner {
	return NewRunner(source, analyzer, qualifier.New(qualifier.DefaultConfig()),
		risk.NewManager(risk.DefaultConfig()), ledger.DefaultExitConfig(), nil)
}

func TestRunner_ReplaysEntriesAndExits(t *testing.T) {
	source := &fakeSource{series: map[string]*domain.PriceSeries{
		"AAA": makeSeries("AAA", 100, func(i int) float64 {
			if i > 60 {
				return 96
			}
			return 100
		}),
		"BBB": makeSeries("BBB", 100, func(int) float64 { return 50 }),
	}}
	analyzer := &barAnalyzer{z: map[int]float64{30: 2.5, 40: 0.2, 60: -2.5}}

	results, err := newTestRunner(source, analyzer).Run(context.Background(), Config{
		RunID:  "run-1",
		Pairs:  []domain.Pair{domain.NewPair("AAA", "BBB")},
		Window: 20,
		Bars:   80,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if results.Bars != 81 {
		t.Errorf("expected 81 bars, got %d", results.Bars)
	}
	if !results.Start.Equal(time.UnixMilli(barTs(19)).UTC()) || !results.End.Equal(time.UnixMilli(barTs(99)).UTC()) {
		t.Errorf("unexpected range %v - %v", results.Start, results.End)
	}
	if results.Opened != 2 || results.Closed != 2 {
		t.Fatalf("expected 2 opened and 2 closed, got %d/%d", results.Opened, results.Closed)
	}

	byID := make(map[string]*domain.Position)
	for _, p := range results.Positions {
		byID[p.ID] = p
	}

	first := byID[idhash.ComputePositionID("run-1", "AAA/BBB", barTs(30))]
	if first == nil {
		t.Fatal("first position missing or id not deterministic")
	}
	if first.Direction != domain.SignalShort || first.CloseReason != domain.CloseReasonMeanReversion {
		t.Errorf("unexpected first position: %s closed by %q", first.Direction, first.CloseReason)
	}
	if first.CloseTime == nil || first.CloseTime.UnixMilli() != barTs(40) {
		t.Errorf("expected close at bar 40, got %v", first.CloseTime)
	}

	second := byID[idhash.ComputePositionID("run-1", "AAA/BBB", barTs(60))]
	if second == nil {
		t.Fatal("second position missing")
	}
	if second.Direction != domain.SignalLong || second.CloseReason != domain.CloseReasonStopLoss {
		t.Errorf("unexpected second position: %s closed by %q", second.Direction, second.CloseReason)
	}
	if math.Abs(second.ClosePnLPct-(-4)) > 1e-9 {
		t.Errorf("expected -4%% close, got %v", second.ClosePnLPct)
	}

	if results.Report == nil || results.Report.Summary.TotalTrades != 2 {
		t.Errorf("expected report with 2 trades, got %+v", results.Report)
	}
	if results.Rejected[string(qualifier.ReasonZScoreBelowThreshold)] == 0 {
		t.Error("expected z-score rejections on unscheduled bars")
	}
}

func TestRunner_EntryEverySkipsBars(t *testing.T) {
	source := &fakeSource{series: map[string]*domain.PriceSeries{
		"AAA": makeSeries("AAA", 60, func(int) float64 { return 100 }),
		"BBB": makeSeries("BBB", 60, func(int) float64 { return 50 }),
	}}
	// Entry scans run on bars 19, 24, 29, 34, ...; bar 30 is skipped.
	analyzer := &barAnalyzer{z: map[int]float64{30: 2.5}}

	results, err := newTestRunner(source, analyzer).Run(context.Background(), Config{
		Pairs:      []domain.Pair{domain.NewPair("AAA", "BBB")},
		Window:     20,
		Bars:       40,
		EntryEvery: 5,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results.Opened != 0 {
		t.Errorf("expected no entries, got %d", results.Opened)
	}
	if results.Evaluations != 9 {
		t.Errorf("expected 9 entry evaluations, got %d", results.Evaluations)
	}
}

func TestRunner_DropsPairsWithoutHistory(t *testing.T) {
	source := &fakeSource{series: map[string]*domain.PriceSeries{
		"AAA": makeSeries("AAA", 40, func(int) float64 { return 100 }),
		"BBB": makeSeries("BBB", 40, func(int) float64 { return 50 }),
		"DDD": makeSeries("DDD", 40, func(int) float64 { return 10 }),
	}}
	runner := newTestRunner(source, &barAnalyzer{})

	results, err := runner.Run(context.Background(), Config{
		Pairs:  []domain.Pair{domain.NewPair("AAA", "BBB"), domain.NewPair("CCC", "DDD")},
		Window: 20,
		Bars:   20,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results.Bars != 21 {
		t.Errorf("expected 21 bars, got %d", results.Bars)
	}

	_, err = runner.Run(context.Background(), Config{
		Pairs:  []domain.Pair{domain.NewPair("CCC", "DDD")},
		Window: 20,
		Bars:   20,
	})
	if !errors.Is(err, ErrNoPairs) {
		t.Errorf("expected ErrNoPairs, got %v", err)
	}
}

func TestRunner_InsufficientHistory(t *testing.T) {
	source := &fakeSource{series: map[string]*domain.PriceSeries{
		"AAA": makeSeries("AAA", 10, func(int) float64 { return 100 }),
		"BBB": makeSeries("BBB", 10, func(int) float64 { return 50 }),
	}}

	_, err := newTestRunner(source, &barAnalyzer{}).Run(context.Background(), Config{
		Pairs:  []domain.Pair{domain.NewPair("AAA", "BBB")},
		Window: 20,
		Bars:   5,
	})
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	source := &fakeSource{series: map[string]*domain.PriceSeries{
		"AAA": makeSeries("AAA", 40, func(int) float64 { return 100 }),
		"BBB": makeSeries("BBB", 40, func(int) float64 { return 50 }),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(source, &barAnalyzer{}).Run(ctx, Config{
		Pairs:  []domain.Pair{domain.NewPair("AAA", "BBB")},
		Window: 20,
		Bars:   20,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunner_WithAnalyzer(t *testing.T) {
	const n = 300
	source := &fakeSource{series: map[string]*domain.PriceSeries{
		"AAA": makeSeries("AAA", n, func(i int) float64 {
			return 100 + 0.05*float64(i) + 2*math.Sin(float64(i)/6)
		}),
		"BBB": makeSeries("BBB", n, func(i int) float64 {
			return 50 + 0.025*float64(i) + 0.3*math.Cos(float64(i)/4)
		}),
	}}
	runner := NewRunner(source, analysis.New(analysis.DefaultConfig()), qualifier.New(qualifier.DefaultConfig()),
		risk.NewManager(risk.DefaultConfig()), ledger.DefaultExitConfig(), nil)

	results, err := runner.Run(context.Background(), Config{
		Pairs:  []domain.Pair{domain.NewPair("AAA", "BBB")},
		Window: 100,
		Bars:   200,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results.Bars != n-100+1 {
		t.Errorf("expected %d bars, got %d", n-100+1, results.Bars)
	}
	if results.Opened < results.Closed {
		t.Errorf("closed %d exceeds opened %d", results.Closed, results.Opened)
	}
	for _, p := range results.Positions {
		if !p.IsOpen() && p.CloseTime.Before(p.EntryTime) {
			t.Errorf("position %s closed before entry", p.ID)
		}
	}
}

func TestTimeline_IntersectsTimestamps(t *testing.T) {
	a := &domain.PriceSeries{Symbol: "A", Points: []domain.PricePoint{{TimestampMs: 1, Price: 1}, {TimestampMs: 2, Price: 2}, {TimestampMs: 3, Price: 3}, {TimestampMs: 4, Price: 4}}}
	b := &domain.PriceSeries{Symbol: "B", Points: []domain.PricePoint{{TimestampMs: 2, Price: 20}, {TimestampMs: 3, Price: 30}, {TimestampMs: 4, Price: 40}, {TimestampMs: 5, Price: 50}}}

	tl := NewTimeline([]*domain.PriceSeries{a, b, nil})
	if tl.Len() != 3 {
		t.Fatalf("expected 3 aligned bars, got %d", tl.Len())
	}
	if tl.Price("A", 0) != 2 || tl.Price("B", 2) != 40 {
		t.Errorf("unexpected prices: A[0]=%v B[2]=%v", tl.Price("A", 0), tl.Price("B", 2))
	}

	w := tl.Window("B", 2, 2)
	if w.Len() != 2 || w.Points[0].TimestampMs != 3 || w.Points[1].Price != 40 {
		t.Errorf("unexpected window: %+v", w.Points)
	}
	if tl.Window("A", 1, 10).Len() != 2 {
		t.Error("window must clamp at the first bar")
	}
	if tl.Has("C") {
		t.Error("unexpected symbol C")
	}
}
