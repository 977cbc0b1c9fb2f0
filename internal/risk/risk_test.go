package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pair-agent/internal/domain"
)

func openPos(a, b string, size float64) *domain.Position {
	return &domain.Position{
		Pair:         domain.NewPair(a, b),
		Status:       domain.PositionOpen,
		SizeFraction: size,
	}
}

func closedPos(pnl float64) *domain.Position {
	return &domain.Position{Status: domain.PositionClosed, ClosePnLPct: pnl}
}

func limits(maxOpen, maxCorr int) Config {
	cfg := DefaultConfig()
	cfg.Limits.MaxConcurrentPositions = maxOpen
	cfg.Limits.MaxCorrelatedPositions = maxCorr
	return cfg
}

func TestAdmit_ConcurrencyCap(t *testing.T) {
	m := NewManager(limits(2, 5))
	open := []*domain.Position{openPos("A", "B", 0.1), openPos("C", "D", 0.1)}

	err := m.Admit(domain.NewPair("E", "F"), open, 0.1)
	if !errors.Is(err, ErrMaxConcurrent) {
		t.Fatalf("expected ErrMaxConcurrent, got %v", err)
	}

	// closed positions do not count
	open[1].Status = domain.PositionClosed
	if err := m.Admit(domain.NewPair("E", "F"), open, 0.1); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
}

func TestAdmit_CorrelatedCap(t *testing.T) {
	m := NewManager(limits(10, 1))
	open := []*domain.Position{openPos("BTC", "ETH", 0.1)}

	err := m.Admit(domain.NewPair("ETH", "SOL"), open, 0.1)
	assert.ErrorIs(t, err, ErrMaxCorrelated)

	err = m.Admit(domain.NewPair("SOL", "BTC"), open, 0.1)
	assert.ErrorIs(t, err, ErrMaxCorrelated)

	assert.NoError(t, m.Admit(domain.NewPair("SOL", "ADA"), open, 0.1))
}

func TestAdmit_AlreadyHeld(t *testing.T) {
	m := NewManager(limits(10, 10))
	open := []*domain.Position{openPos("BTC", "ETH", 0.1)}

	assert.ErrorIs(t, m.Admit(domain.NewPair("ETH", "BTC"), open, 0.1), ErrAlreadyHeld)
}

func TestAdmit_PortfolioRisk(t *testing.T) {
	cfg := limits(10, 10)
	cfg.Limits.MaxPortfolioRisk = 0.3
	m := NewManager(cfg)
	open := []*domain.Position{openPos("A", "B", 0.1), openPos("C", "D", 0.1)}

	assert.NoError(t, m.Admit(domain.NewPair("E", "F"), open, 0.1))
	assert.ErrorIs(t, m.Admit(domain.NewPair("E", "F"), open, 0.15), ErrPortfolioRisk)
}

func TestKellyFraction(t *testing.T) {
	tests := []struct {
		name                      string
		winRate, win, loss, fract float64
		want                      float64
	}{
		// b = 2, f = (0.6*2 - 0.4)/2 = 0.4, * 0.25
		{"classic", 0.6, 2, -1, 0.25, 0.1},
		{"full kelly clamped", 0.9, 5, -1, 1, 0.5},
		{"negative edge clamped to zero", 0.2, 1, -1, 1, 0},
		{"no losses uses win rate", 0.8, 3, 0, 0.25, 0.2},
		{"zero payoff", 0.5, 0, -1, 1, 0},
		{"NaN", math.NaN(), 1, -1, 1, 0},
		{"Inf", 0.5, math.Inf(1), -1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KellyFraction(tt.winRate, tt.win, tt.loss, tt.fract)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestKellyFraction_AlwaysBounded(t *testing.T) {
	inputs := []float64{-10, -1, -0.5, 0, 0.01, 0.5, 0.99, 1, 2, 100, 1e9}
	for _, p := range inputs {
		for _, w := range inputs {
			for _, l := range inputs {
				for _, f := range []float64{0, 0.25, 1, 10} {
					k := KellyFraction(p, w, l, f)
					if k < 0 || k > MaxKellyFraction || math.IsNaN(k) {
						t.Fatalf("KellyFraction(%v,%v,%v,%v) = %v out of bounds", p, w, l, f, k)
					}
				}
			}
		}
	}
}

func TestVolatilityScale(t *testing.T) {
	assert.Equal(t, 1.0, VolatilityScale(0, 0.5))
	assert.Equal(t, 1.0, VolatilityScale(0.2, 0))
	assert.Equal(t, 1.0, VolatilityScale(0.4, 0.2))
	assert.InDelta(t, 0.5, VolatilityScale(0.2, 0.4), 1e-12)
	assert.Equal(t, 0.1, VolatilityScale(0.01, 10))
}

func TestSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseSize = 0.2
	cfg.TargetVolatility = 0.2
	m := NewManager(cfg)

	// base * vol scale
	assert.InDelta(t, 0.1, m.Size(nil, 0.4), 1e-12)

	cfg.KellyEnabled = true
	cfg.MinTrades = 4
	cfg.TargetVolatility = 0
	m = NewManager(cfg)

	history := []*domain.Position{closedPos(2), closedPos(2), closedPos(2), closedPos(-1), closedPos(-1)}
	// p = 0.6, b = 2 -> f = 0.4 * 0.25
	assert.InDelta(t, 0.1, m.Size(history, 0), 1e-12)

	// not enough trades falls back to base size
	assert.InDelta(t, 0.2, m.Size(history[:3], 0), 1e-12)
}

func TestSize_CappedByCashReserve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseSize = 0.95
	cfg.Limits.CashReserve = 0.2
	size := NewManager(cfg).Size(nil, 0)
	require.InDelta(t, 0.8, size, 1e-12)
}
