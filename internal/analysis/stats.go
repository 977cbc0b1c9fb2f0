package analysis

import "math"

// mean calculates the arithmetic mean.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStddev calculates sample standard deviation (n-1 denominator).
func sampleStddev(xs []float64, m float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// sampleCovariance calculates cov(x, y) with n-1 denominator.
// x and y must have equal length.
func sampleCovariance(x, y []float64) float64 {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0
	}
	mx, my := mean(x), mean(y)
	sum := 0.0
	for i := range x {
		sum += (x[i] - mx) * (y[i] - my)
	}
	return sum / float64(n-1)
}

// simpleReturns converts prices into period-over-period returns (length n-1).
func simpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}
	return out
}

// correlation returns the Pearson correlation of x and y clamped to [-1, 1].
// Zero variance in either input yields 0.
func correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	sx := sampleStddev(x, mean(x))
	sy := sampleStddev(y, mean(y))
	if sx == 0 || sy == 0 {
		return 0
	}
	c := sampleCovariance(x, y) / (sx * sy)
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(-1, math.Min(1, c))
}

// hedgeRatio is the OLS slope of y on x: cov(x, y) / var(x). Zero variance in x yields 0.
func hedgeRatio(y, x []float64) float64 {
	vx := sampleCovariance(x, x)
	if vx == 0 || math.IsNaN(vx) {
		return 0
	}
	return sampleCovariance(x, y) / vx
}

// olsFit holds a simple linear regression y = intercept + slope*x.
type olsFit struct {
	slope     float64
	intercept float64
	sxx       float64 // sum of squared x deviations
	sse       float64 // residual sum of squares
	n         int
}

// fitOLS regresses y on x with an intercept.
// ok is false when x has no variance or fewer than 3 observations.
func fitOLS(y, x []float64) (olsFit, bool) {
	n := len(x)
	if n < 3 || len(y) != n {
		return olsFit{}, false
	}
	mx, my := mean(x), mean(y)
	sxx, sxy := 0.0, 0.0
	for i := range x {
		dx := x[i] - mx
		sxx += dx * dx
		sxy += dx * (y[i] - my)
	}
	if sxx == 0 {
		return olsFit{}, false
	}
	slope := sxy / sxx
	intercept := my - slope*mx

	sse := 0.0
	for i := range x {
		r := y[i] - (intercept + slope*x[i])
		sse += r * r
	}

	return olsFit{slope: slope, intercept: intercept, sxx: sxx, sse: sse, n: n}, true
}

// slopeStdErr returns the standard error of the fitted slope.
func (f olsFit) slopeStdErr() float64 {
	if f.n <= 2 || f.sxx == 0 {
		return 0
	}
	residualSE := math.Sqrt(f.sse / float64(f.n-2))
	return residualSE / math.Sqrt(f.sxx)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
