package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pair-agent/internal/domain"
	"pair-agent/internal/metrics"
	"pair-agent/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	positionStore    storage.PositionStore
	performanceStore storage.PerformanceStore // optional
	leverage         float64
	now              func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. perfStore may be nil.
func NewGenerator(posStore storage.PositionStore, perfStore storage.PerformanceStore, leverage float64) *Generator {
	return &Generator{
		positionStore:    posStore,
		performanceStore: perfStore,
		leverage:         leverage,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete report from every stored position.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	positions, err := g.positionStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	var lastRecorded *domain.PerformanceSnapshot
	if g.performanceStore != nil {
		lastRecorded, err = g.performanceStore.Latest(ctx)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load latest performance snapshot: %w", err)
		}
	}

	return Build(positions, lastRecorded, g.leverage, g.now()), nil
}

// Build assembles a report from an in-memory position set. Used directly by backtests.
func Build(positions []*domain.Position, lastRecorded *domain.PerformanceSnapshot, leverage float64, now time.Time) *Report {
	summary := metrics.Compute(positions, metrics.Options{Leverage: leverage, Now: now})
	p10, p50, p90 := metrics.Percentiles(positions)

	var open, closed []*domain.Position
	for _, p := range positions {
		if p == nil {
			continue
		}
		if p.IsOpen() {
			open = append(open, p)
		} else {
			closed = append(closed, p)
		}
	}

	return &Report{
		GeneratedAt:     now,
		Leverage:        summary.Leverage,
		Summary:         summary,
		LastRecorded:    lastRecorded,
		PnLP10:          p10,
		PnLMedian:       p50,
		PnLP90:          p90,
		IntegrityErrors: checkIntegrity(positions),
		ByCloseReason:   generateCloseReasonRows(closed),
		ByPair:          generatePairRows(closed),
		Open:            generateOpenRows(open, now),
		Trades:          generateTradeRows(closed),
	}
}

// checkIntegrity lists positions whose stored state violates the lifecycle rules.
func checkIntegrity(positions []*domain.Position) []string {
	var errs []string
	for _, p := range positions {
		if p == nil {
			continue
		}
		switch p.Status {
		case domain.PositionOpen:
			if p.CloseTime != nil {
				errs = append(errs, fmt.Sprintf("%s: open position has a close time", p.ID))
			}
		case domain.PositionClosed:
			if p.CloseTime == nil {
				errs = append(errs, fmt.Sprintf("%s: closed position without close time", p.ID))
			} else if p.CloseTime.Before(p.EntryTime) {
				errs = append(errs, fmt.Sprintf("%s: closed before entry", p.ID))
			}
			if p.CloseReason == "" {
				errs = append(errs, fmt.Sprintf("%s: closed position without close reason", p.ID))
			}
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown status %q", p.ID, p.Status))
		}
		if p.EntryLongPrice <= 0 || p.EntryShortPrice <= 0 {
			errs = append(errs, fmt.Sprintf("%s: non-positive entry price", p.ID))
		}
	}
	sort.Strings(errs)
	return errs
}

func generateCloseReasonRows(closed []*domain.Position) []CloseReasonRow {
	groups := make(map[string]*CloseReasonRow)
	for _, p := range closed {
		reason := string(p.CloseReason)
		row := groups[reason]
		if row == nil {
			row = &CloseReasonRow{Reason: reason}
			groups[reason] = row
		}
		row.Trades++
		row.TotalPnLPct += p.ClosePnLPct
		if p.ClosePnLPct > 0 {
			row.Wins++
		}
	}

	rows := make([]CloseReasonRow, 0, len(groups))
	for _, row := range groups {
		row.AvgPnLPct = row.TotalPnLPct / float64(row.Trades)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Reason < rows[j].Reason
	})
	return rows
}

func generatePairRows(closed []*domain.Position) []PairRow {
	type acc struct {
		row   PairRow
		hours float64
	}
	groups := make(map[string]*acc)
	for _, p := range closed {
		key := p.Pair.Key()
		a := groups[key]
		if a == nil {
			a = &acc{row: PairRow{Pair: key}}
			groups[key] = a
		}
		a.row.Trades++
		a.row.TotalPnLPct += p.ClosePnLPct
		if p.ClosePnLPct > 0 {
			a.row.Wins++
		}
		if p.CloseTime != nil {
			a.hours += p.CloseTime.Sub(p.EntryTime).Hours()
		}
	}

	rows := make([]PairRow, 0, len(groups))
	for _, a := range groups {
		a.row.WinRate = float64(a.row.Wins) / float64(a.row.Trades)
		a.row.AvgDurationHours = a.hours / float64(a.row.Trades)
		rows = append(rows, a.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Pair < rows[j].Pair
	})
	return rows
}

func generateOpenRows(open []*domain.Position, now time.Time) []OpenPositionRow {
	rows := make([]OpenPositionRow, 0, len(open))
	for _, p := range open {
		rows = append(rows, OpenPositionRow{
			ID:            p.ID,
			Pair:          p.Pair.Key(),
			Direction:     string(p.Direction),
			EntryTime:     p.EntryTime,
			EntryZScore:   p.EntryZScore,
			CurrentPnLPct: p.CurrentPnLPct,
			LastZScore:    p.LastZScore,
			HeldHours:     p.HoldDuration(now).Hours(),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].EntryTime.Equal(rows[j].EntryTime) {
			return rows[i].EntryTime.Before(rows[j].EntryTime)
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

func generateTradeRows(closed []*domain.Position) []ClosedPositionRow {
	rows := make([]ClosedPositionRow, 0, len(closed))
	for _, p := range closed {
		row := ClosedPositionRow{
			ID:           p.ID,
			Pair:         p.Pair.Key(),
			Direction:    string(p.Direction),
			LongAsset:    p.LongAsset,
			ShortAsset:   p.ShortAsset,
			EntryTime:    p.EntryTime,
			EntryZScore:  p.EntryZScore,
			CloseReason:  string(p.CloseReason),
			CloseTrigger: p.CloseTrigger,
			PnLPct:       p.ClosePnLPct,
		}
		if p.CloseTime != nil {
			row.CloseTime = *p.CloseTime
			row.DurationHours = p.CloseTime.Sub(p.EntryTime).Hours()
		}
		rows = append(rows, row)
	}
	sortTradeRows(rows)
	return rows
}

// sortTradeRows sorts rows by (close_time, id).
func sortTradeRows(rows []ClosedPositionRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CloseTime.Equal(rows[j].CloseTime) {
			return rows[i].CloseTime.Before(rows[j].CloseTime)
		}
		return rows[i].ID < rows[j].ID
	})
}
