package analysis

import (
	"math"

	"pair-agent/internal/domain"
)

// maxHalfLifePeriods bounds plausible half-lives; longer fits are treated as non-reverting.
const maxHalfLifePeriods = 1000

// HalfLife fits Δspread[t] = α + ρ·spread[t-1] and returns -ln2/ln(1+ρ).
// Returns domain.InfiniteHalfLife when ρ >= 0, the fit is degenerate, or the
// result is non-finite, non-positive or above 1000 periods. Never errors.
func HalfLife(spread []float64) float64 {
	if len(spread) < 3 {
		return domain.InfiniteHalfLife
	}

	lagged := spread[:len(spread)-1]
	delta := make([]float64, len(spread)-1)
	for i := 1; i < len(spread); i++ {
		delta[i-1] = spread[i] - spread[i-1]
	}

	fit, ok := fitOLS(delta, lagged)
	if !ok || !isFinite(fit.slope) {
		return domain.InfiniteHalfLife
	}

	rho := fit.slope
	if rho >= 0 {
		return domain.InfiniteHalfLife
	}

	hl := -math.Ln2 / math.Log(1+rho)
	if !isFinite(hl) || hl <= 0 || hl > maxHalfLifePeriods {
		return domain.InfiniteHalfLife
	}
	return hl
}
