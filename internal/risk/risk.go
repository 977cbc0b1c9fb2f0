// Package risk implements admission control and advisory sizing for new positions.
package risk

import (
	"errors"
	"fmt"
	"math"

	"pair-agent/internal/domain"
)

// Admission errors.
var (
	ErrMaxConcurrent = errors.New("max concurrent positions reached")
	ErrMaxCorrelated = errors.New("max correlated positions reached")
	ErrPortfolioRisk = errors.New("portfolio risk cap exceeded")
	ErrAlreadyHeld   = errors.New("pair already held")
)

// Sizing bounds.
const (
	MaxKellyFraction = 0.5
	MinVolScale      = 0.1
	MaxVolScale      = 1.0
)

// Config holds risk limits and sizing parameters.
type Config struct {
	Limits domain.RiskLimits

	BaseSize float64 // advisory fraction used without Kelly sizing

	KellyEnabled  bool
	KellyFraction float64 // fractional Kelly multiplier, e.g. 0.25
	MinTrades     int     // closed trades required before Kelly applies

	TargetVolatility float64 // annualized; 0 disables volatility scaling
}

// DefaultConfig returns the default risk configuration.
func DefaultConfig() Config {
	return Config{
		Limits: domain.RiskLimits{
			MaxConcurrentPositions: 3,
			MaxCorrelatedPositions: 1,
			MaxPortfolioRisk:       0,
			CashReserve:            0.2,
		},
		BaseSize:         0.1,
		KellyFraction:    0.25,
		MinTrades:        20,
		TargetVolatility: 0,
	}
}

// Manager applies Config. It holds no mutable state.
type Manager struct {
	cfg Config
}

// NewManager creates a risk manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Config returns the manager configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Admit checks whether a new position on pair with the given advisory size may open.
// Only open positions in the slice are considered.
func (m *Manager) Admit(pair domain.Pair, positions []*domain.Position, size float64) error {
	limits := m.cfg.Limits

	openCount := 0
	correlated := 0
	exposure := 0.0
	for _, p := range positions {
		if p == nil || !p.IsOpen() {
			continue
		}
		if p.Pair.SameLegs(pair) {
			return fmt.Errorf("%w: %s", ErrAlreadyHeld, pair.Key())
		}
		openCount++
		exposure += p.SizeFraction
		if p.Pair.SharesLeg(pair) {
			correlated++
		}
	}

	if openCount >= limits.MaxConcurrentPositions {
		return fmt.Errorf("%w: %d open, limit %d", ErrMaxConcurrent, openCount, limits.MaxConcurrentPositions)
	}
	if correlated >= limits.MaxCorrelatedPositions {
		return fmt.Errorf("%w: %d share a leg with %s, limit %d",
			ErrMaxCorrelated, correlated, pair.Key(), limits.MaxCorrelatedPositions)
	}
	if limits.MaxPortfolioRisk > 0 && exposure+size > limits.MaxPortfolioRisk+1e-12 {
		return fmt.Errorf("%w: exposure %.4f + %.4f > %.4f",
			ErrPortfolioRisk, exposure, size, limits.MaxPortfolioRisk)
	}
	return nil
}

// Size returns the advisory size fraction for a new position.
// closed is the closed-trade history, currentVol the candidate's annualized volatility.
func (m *Manager) Size(closed []*domain.Position, currentVol float64) float64 {
	size := m.cfg.BaseSize

	if m.cfg.KellyEnabled {
		stats := historyStats(closed)
		if stats.trades > 0 && stats.trades >= m.cfg.MinTrades {
			size = KellyFraction(stats.winRate, stats.avgWin, stats.avgLoss, m.cfg.KellyFraction)
		}
	}

	if m.cfg.TargetVolatility > 0 {
		size *= VolatilityScale(m.cfg.TargetVolatility, currentVol)
	}

	ceiling := 1 - m.cfg.Limits.CashReserve
	if size > ceiling {
		size = ceiling
	}
	if size < 0 || math.IsNaN(size) {
		size = 0
	}
	return size
}

// KellyFraction returns f = (p*b - q)/b scaled by fraction and clamped to [0, 0.5],
// where b = avgWin/|avgLoss|. Without loss history f = p before scaling.
// Non-finite inputs yield 0.
func KellyFraction(winRate, avgWin, avgLoss, fraction float64) float64 {
	for _, v := range []float64{winRate, avgWin, avgLoss, fraction} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
	}

	p := math.Max(0, math.Min(1, winRate))
	q := 1 - p

	var f float64
	if avgLoss == 0 {
		f = p
	} else {
		b := avgWin / math.Abs(avgLoss)
		if b <= 0 {
			return 0
		}
		f = (p*b - q) / b
	}

	f *= fraction
	return math.Max(0, math.Min(MaxKellyFraction, f))
}

// VolatilityScale returns target/current clamped to [0.1, 1.0].
// Either input non-positive yields 1.0.
func VolatilityScale(target, current float64) float64 {
	if target <= 0 || current <= 0 || math.IsNaN(target) || math.IsNaN(current) {
		return 1.0
	}
	return math.Max(MinVolScale, math.Min(MaxVolScale, target/current))
}

type tradeStats struct {
	trades  int
	winRate float64
	avgWin  float64
	avgLoss float64
}

func historyStats(positions []*domain.Position) tradeStats {
	var s tradeStats
	wins, losses := 0, 0
	sumWin, sumLoss := 0.0, 0.0
	for _, p := range positions {
		if p == nil || p.IsOpen() {
			continue
		}
		s.trades++
		if p.ClosePnLPct > 0 {
			wins++
			sumWin += p.ClosePnLPct
		} else {
			losses++
			sumLoss += p.ClosePnLPct
		}
	}
	if s.trades == 0 {
		return s
	}
	s.winRate = float64(wins) / float64(s.trades)
	if wins > 0 {
		s.avgWin = sumWin / float64(wins)
	}
	if losses > 0 {
		s.avgLoss = sumLoss / float64(losses)
	}
	return s
}
