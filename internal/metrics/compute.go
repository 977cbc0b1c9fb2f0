package metrics

import (
	"math"
	"sort"
	"time"

	"pair-agent/internal/domain"
)

// DefaultLeverage is the annualized-return leverage assumption when none is configured.
const DefaultLeverage = 1.0

const year = 365 * 24 * time.Hour

// Options controls performance computation.
type Options struct {
	// Leverage scales AnnualizedReturnPct. Non-positive means DefaultLeverage.
	Leverage float64

	// Now stamps ComputedAt. Zero means time.Now().
	Now time.Time
}

// Compute derives a performance snapshot from the full position set.
// Only closed positions contribute to outcome metrics. Closed positions are
// sorted by CloseTime ASC, ID ASC before computing order-dependent metrics
// (MaxDrawdownPct, MaxConsecutiveLosses).
func Compute(positions []*domain.Position, opts Options) *domain.PerformanceSnapshot {
	leverage := opts.Leverage
	if leverage <= 0 {
		leverage = DefaultLeverage
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	snap := &domain.PerformanceSnapshot{
		ComputedAt: now,
		Leverage:   leverage,
	}

	var closed []*domain.Position
	for _, p := range positions {
		if p == nil {
			continue
		}
		if p.IsOpen() {
			snap.OpenPositions++
			continue
		}
		closed = append(closed, p)
	}

	n := len(closed)
	if n == 0 {
		return snap
	}

	sortByClose(closed)

	outcomes := make([]float64, n)
	var winSum, lossSum float64
	var totalDuration time.Duration
	for i, p := range closed {
		outcomes[i] = p.ClosePnLPct
		if p.ClosePnLPct > 0 {
			snap.Wins++
			winSum += p.ClosePnLPct
		} else {
			snap.Losses++
			lossSum += p.ClosePnLPct
		}
		totalDuration += p.HoldDuration(now)
	}

	mean := computeMean(outcomes)

	snap.TotalTrades = n
	snap.WinRate = computeWinRate(snap.Wins, n)
	if snap.Wins > 0 {
		snap.AvgWinPct = winSum / float64(snap.Wins)
	}
	if snap.Losses > 0 {
		snap.AvgLossPct = lossSum / float64(snap.Losses)
	}
	snap.ProfitFactor = computeProfitFactor(winSum, lossSum)
	snap.TotalPnLPct = winSum + lossSum
	snap.AvgPnLPct = mean
	snap.PnLStddev = computeStddev(outcomes, mean)
	snap.MaxDrawdownPct = computeMaxDrawdown(outcomes)
	snap.MaxConsecutiveLosses = computeMaxConsecutiveLosses(outcomes)
	snap.AvgDurationHours = totalDuration.Hours() / float64(n)
	snap.AnnualizedReturnPct = computeAnnualizedReturn(closed, snap.TotalPnLPct, leverage)

	return snap
}

func sortByClose(positions []*domain.Position) {
	closeAt := func(p *domain.Position) time.Time {
		if p.CloseTime != nil {
			return *p.CloseTime
		}
		return p.UpdatedAt
	}
	sort.Slice(positions, func(i, j int) bool {
		ti, tj := closeAt(positions[i]), closeAt(positions[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return positions[i].ID < positions[j].ID
	})
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeProfitFactor returns gross win / |gross loss|, nil when there is no loss.
func computeProfitFactor(winSum, lossSum float64) *float64 {
	if lossSum >= 0 {
		return nil
	}
	pf := winSum / math.Abs(lossSum)
	return &pf
}

// computeMean calculates arithmetic mean of outcomes.
func computeMean(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range outcomes {
		sum += o
	}
	return sum / float64(len(outcomes))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(outcomes []float64, mean float64) float64 {
	n := len(outcomes)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, o := range outcomes {
		diff := o - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative PnL.
// Outcomes must be in close order.
func computeMaxDrawdown(outcomes []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, o := range outcomes {
		cumulative += o
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of outcome <= 0.
func computeMaxConsecutiveLosses(outcomes []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, o := range outcomes {
		if o <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}

// computeAnnualizedReturn scales leveraged total PnL to a 365-day year.
// The span runs from the earliest entry to the latest close; a non-positive span yields 0.
func computeAnnualizedReturn(closed []*domain.Position, totalPnL, leverage float64) float64 {
	var first, last time.Time
	for _, p := range closed {
		if first.IsZero() || p.EntryTime.Before(first) {
			first = p.EntryTime
		}
		if p.CloseTime != nil && p.CloseTime.After(last) {
			last = *p.CloseTime
		}
	}
	span := last.Sub(first)
	if first.IsZero() || last.IsZero() || span <= 0 {
		return 0
	}
	return totalPnL * leverage * (float64(year) / float64(span))
}

// Percentiles returns P10, median and P90 of closed-position PnL.
func Percentiles(positions []*domain.Position) (p10, p50, p90 float64) {
	var outcomes []float64
	for _, p := range positions {
		if p != nil && !p.IsOpen() {
			outcomes = append(outcomes, p.ClosePnLPct)
		}
	}
	sort.Float64s(outcomes)
	return computePercentile(outcomes, 0.10), computePercentile(outcomes, 0.50), computePercentile(outcomes, 0.90)
}
