package analysis

import (
	"math"
	"testing"
)

func TestHalfLife(t *testing.T) {
	decay := make([]float64, 12)
	decay[0] = 1024
	for i := 1; i < len(decay); i++ {
		decay[i] = decay[i-1] * 0.5
	}

	growth := make([]float64, 12)
	growth[0] = 1
	for i := 1; i < len(growth); i++ {
		growth[i] = growth[i-1] * 2
	}

	linear := make([]float64, 12)
	for i := range linear {
		linear[i] = float64(i)
	}

	tests := []struct {
		name     string
		spread   []float64
		infinite bool
		want     float64
	}{
		{"halving each period", decay, false, 1.0},
		{"explosive growth", growth, true, 0},
		{"linear trend has zero rho", linear, true, 0},
		{"rho of minus one", []float64{100, 0, 0, 0, 0}, true, 0},
		{"constant", constant(10, 5), true, 0},
		{"too short", []float64{1, 2}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HalfLife(tt.spread)
			if tt.infinite {
				if !math.IsInf(got, 1) {
					t.Errorf("expected infinite half-life, got %v", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHalfLife_SlowReversionClamped(t *testing.T) {
	// rho = -0.0001 implies a half-life near 6931 periods
	spread := make([]float64, 50)
	spread[0] = 1000
	for i := 1; i < len(spread); i++ {
		spread[i] = spread[i-1] * (1 - 0.0001)
	}
	if hl := HalfLife(spread); !math.IsInf(hl, 1) {
		t.Errorf("expected clamp to infinite, got %v", hl)
	}
}
