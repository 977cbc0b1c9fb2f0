package domain

import "math"

// Signal is the directional view on a spread.
type Signal string

// Signal values.
const (
	SignalLong    Signal = "long"    // spread below mean: buy A, sell B
	SignalShort   Signal = "short"   // spread above mean: sell A, buy B
	SignalNeutral Signal = "neutral" // no edge
)

// InfiniteHalfLife marks a spread that shows no mean reversion.
var InfiniteHalfLife = math.Inf(1)

// AnalysisResult holds the statistics of one pair evaluation.
// Values are computed fresh on every evaluation and never mutated afterwards.
// Corresponds to analysis_snapshots table in ClickHouse.
type AnalysisResult struct {
	Pair       Pair
	SampleSize int   // aligned points used
	ComputedAt int64 // timestamp of the last aligned point (ms)

	Correlation float64 // Pearson correlation of simple returns, [-1, 1]
	HedgeRatio  float64 // OLS beta of returnsA on returnsB

	Spread     float64 // last value of priceA - beta*priceB
	SpreadMean float64 // sample mean of the spread series
	SpreadStd  float64 // sample stddev of the spread series (>= 0)
	ZScore     float64 // 0 when SpreadStd == 0

	Signal Signal // base-threshold direction

	HalfLife            float64 // periods; InfiniteHalfLife if not mean reverting
	CointegrationPValue float64 // approximate, (0, 1]
	IsCointegrated      bool    // CointegrationPValue < 0.05

	Sharpe     float64 // annualized Sharpe of spread returns
	Volatility float64 // annualized volatility of spread returns (>= 0)
}

// HalfLifeFinite reports whether the spread has a usable half-life.
func (r *AnalysisResult) HalfLifeFinite() bool {
	return !math.IsInf(r.HalfLife, 0) && !math.IsNaN(r.HalfLife)
}

// AbsZScore returns |ZScore|.
func (r *AnalysisResult) AbsZScore() float64 {
	return math.Abs(r.ZScore)
}

// SignalFromZScore maps a z-score to a direction using a symmetric threshold.
func SignalFromZScore(z, threshold float64) Signal {
	switch {
	case z > threshold:
		return SignalShort
	case z < -threshold:
		return SignalLong
	default:
		return SignalNeutral
	}
}

// DirectionFromZScore derives the spread direction from the sign of the z-score alone.
func DirectionFromZScore(z float64) Signal {
	switch {
	case z > 0:
		return SignalShort
	case z < 0:
		return SignalLong
	default:
		return SignalNeutral
	}
}

// AnalysisSnapshot is a recorded evaluation with its qualifier verdict.
// Corresponds to analysis_snapshots table in ClickHouse.
type AnalysisSnapshot struct {
	SnapshotID string // deterministic: hash(pair_key, computed_at)
	AnalysisResult
	Tradeable  bool
	Reason     string // qualifier reason
	RecordedAt int64  // wall clock (ms)
}
