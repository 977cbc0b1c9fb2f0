// Package qualifier decides whether an analyzed pair is tradeable.
// All gates are pure predicates over a computed domain.AnalysisResult.
package qualifier

import (
	"math"

	"pair-agent/internal/domain"
)

// Reason identifies the gate that accepted or rejected a candidate.
type Reason string

// Decision reasons. Values are used as metric labels.
const (
	ReasonQualified            Reason = "qualified"
	ReasonInfiniteHalfLife     Reason = "infinite_half_life"
	ReasonHalfLifeOutOfRange   Reason = "half_life_out_of_range"
	ReasonZScoreBelowThreshold Reason = "zscore_below_threshold"
	ReasonLowCorrelation       Reason = "low_correlation"
	ReasonLowSharpe            Reason = "low_sharpe"
	ReasonHighVolatility       Reason = "high_volatility"
	ReasonNoDirection          Reason = "no_direction"
)

// AllReasons lists every decision reason.
var AllReasons = []Reason{
	ReasonQualified,
	ReasonInfiniteHalfLife,
	ReasonHalfLifeOutOfRange,
	ReasonZScoreBelowThreshold,
	ReasonLowCorrelation,
	ReasonLowSharpe,
	ReasonHighVolatility,
	ReasonNoDirection,
}

// Config holds qualification thresholds.
type Config struct {
	ZScoreThreshold      float64 // base |z| entry threshold
	CorrelationThreshold float64 // minimum |correlation|

	HalfLifeFilter bool    // enable the half-life gate
	HalfLifeMin    float64 // periods, inclusive
	HalfLifeMax    float64 // periods, inclusive

	// ADFOverridePValue lets an infinite half-life pass when the
	// cointegration p-value is at or below this ceiling. Nil disables.
	ADFOverridePValue *float64

	DynamicThreshold bool // scale ZScoreThreshold by half-life

	MinSharpe     *float64 // nil disables
	MaxVolatility *float64 // nil disables
}

// DefaultConfig returns the default qualification thresholds.
func DefaultConfig() Config {
	return Config{
		ZScoreThreshold:      2.0,
		CorrelationThreshold: 0.7,
		HalfLifeFilter:       true,
		HalfLifeMin:          1,
		HalfLifeMax:          100,
		DynamicThreshold:     true,
	}
}

// Decision is the qualifier verdict for one analysis result.
type Decision struct {
	Tradeable          bool
	Direction          domain.Signal // derived from the sign of the z-score
	EffectiveThreshold float64
	Reason             Reason

	// Overridden is true when Direction differs from the analyzer's base signal,
	// which happens when a dynamic threshold admits a z-score inside the base band.
	Overridden bool
}

// Qualifier applies Config to analysis results.
type Qualifier struct {
	cfg Config
}

// New creates a qualifier.
func New(cfg Config) *Qualifier {
	return &Qualifier{cfg: cfg}
}

// Config returns the qualifier configuration.
func (q *Qualifier) Config() Config {
	return q.cfg
}

// Qualify evaluates gates in order: half-life, dynamic threshold, basic
// z-score/correlation gate, secondary gates, then direction override.
// The result is never modified.
func (q *Qualifier) Qualify(r *domain.AnalysisResult) Decision {
	threshold := q.EffectiveThreshold(r.HalfLife)
	d := Decision{EffectiveThreshold: threshold}

	if q.cfg.HalfLifeFilter {
		if reason, ok := q.halfLifeGate(r); !ok {
			d.Reason = reason
			return d
		}
	}

	if r.AbsZScore() < threshold {
		d.Reason = ReasonZScoreBelowThreshold
		return d
	}
	if math.Abs(r.Correlation) < q.cfg.CorrelationThreshold {
		d.Reason = ReasonLowCorrelation
		return d
	}

	if q.cfg.MinSharpe != nil && r.Sharpe < *q.cfg.MinSharpe {
		d.Reason = ReasonLowSharpe
		return d
	}
	if q.cfg.MaxVolatility != nil && r.Volatility > *q.cfg.MaxVolatility {
		d.Reason = ReasonHighVolatility
		return d
	}

	// Direction override: the sign of z decides, never the base-threshold label.
	d.Direction = domain.DirectionFromZScore(r.ZScore)
	if d.Direction == domain.SignalNeutral {
		d.Reason = ReasonNoDirection
		return d
	}
	d.Overridden = d.Direction != r.Signal
	d.Tradeable = true
	d.Reason = ReasonQualified
	return d
}

// halfLifeGate rejects non-reverting spreads and half-lives outside the band.
func (q *Qualifier) halfLifeGate(r *domain.AnalysisResult) (Reason, bool) {
	if !r.HalfLifeFinite() {
		if q.cfg.ADFOverridePValue != nil && r.CointegrationPValue <= *q.cfg.ADFOverridePValue {
			return "", true
		}
		return ReasonInfiniteHalfLife, false
	}
	if r.HalfLife < q.cfg.HalfLifeMin || r.HalfLife > q.cfg.HalfLifeMax {
		return ReasonHalfLifeOutOfRange, false
	}
	return "", true
}

// EffectiveThreshold returns the |z| entry threshold for a half-life.
// Without the dynamic threshold it is the base threshold.
func (q *Qualifier) EffectiveThreshold(halfLife float64) float64 {
	if !q.cfg.DynamicThreshold {
		return q.cfg.ZScoreThreshold
	}
	return q.cfg.ZScoreThreshold * HalfLifeMultiplier(halfLife)
}

// HalfLifeMultiplier scales the entry threshold: fast-reverting spreads need
// less divergence, slow ones more.
func HalfLifeMultiplier(halfLife float64) float64 {
	switch {
	case math.IsInf(halfLife, 0) || math.IsNaN(halfLife):
		return 1.30
	case halfLife < 8:
		return 0.70
	case halfLife < 24:
		return 0.85
	case halfLife < 48:
		return 1.00
	default:
		return 1.30
	}
}
