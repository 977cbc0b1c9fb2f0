package analysis

import "math"

// Breakpoint maps a test statistic upper bound to a p-value.
type Breakpoint struct {
	MaxT   float64 // statistic must be <= MaxT
	PValue float64
}

// PValueTable is an ordered lookup of breakpoints (ascending MaxT, ascending PValue).
// Statistics above the last breakpoint map to Tail.
//
// The default table is an approximation of Dickey-Fuller critical values, not a
// rigorous ADF test. A proper critical-value table can be swapped in through
// Config.PValues without changing callers.
type PValueTable struct {
	Breakpoints []Breakpoint
	Tail        float64
}

// DefaultPValueTable approximates the lagged-regression stationarity test.
var DefaultPValueTable = PValueTable{
	Breakpoints: []Breakpoint{
		{MaxT: -3.43, PValue: 0.01},
		{MaxT: -2.86, PValue: 0.05},
		{MaxT: -2.57, PValue: 0.10},
		{MaxT: -2.20, PValue: 0.20},
		{MaxT: -1.90, PValue: 0.30},
		{MaxT: -1.60, PValue: 0.40},
		{MaxT: -1.20, PValue: 0.55},
		{MaxT: -0.80, PValue: 0.70},
		{MaxT: -0.40, PValue: 0.80},
	},
	Tail: 0.90,
}

// Lookup maps a statistic to its p-value. NaN maps to 1.0.
func (t PValueTable) Lookup(stat float64) float64 {
	if math.IsNaN(stat) {
		return 1.0
	}
	for _, bp := range t.Breakpoints {
		if stat <= bp.MaxT {
			return bp.PValue
		}
	}
	return t.Tail
}

// cointegrationMinPoints is the minimum spread length for the stationarity test.
const cointegrationMinPoints = 10

// CointegrationResult holds the outcome of the stationarity test on a spread.
type CointegrationResult struct {
	TStat  float64 // pseudo t-statistic for H0: slope = 1
	PValue float64 // (0, 1]
}

// Cointegration regresses spread[t] on spread[t-1] and tests H0: slope = 1.
// Fewer than 10 points or a degenerate (constant) spread yields p = 1.0.
// A perfect fit (zero slope standard error) yields 0.01 if the slope is below 1, else 1.0.
func Cointegration(spread []float64, table PValueTable) CointegrationResult {
	if len(spread) < cointegrationMinPoints {
		return CointegrationResult{PValue: 1.0}
	}

	y := spread[1:]
	x := spread[:len(spread)-1]

	fit, ok := fitOLS(y, x)
	if !ok {
		return CointegrationResult{PValue: 1.0}
	}

	se := fit.slopeStdErr()
	if se == 0 || !isFinite(se) {
		if fit.slope < 1 {
			return CointegrationResult{TStat: math.Inf(-1), PValue: 0.01}
		}
		return CointegrationResult{PValue: 1.0}
	}

	t := (fit.slope - 1) / se
	return CointegrationResult{TStat: t, PValue: table.Lookup(t)}
}
