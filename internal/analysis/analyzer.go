package analysis

import (
	"errors"
	"fmt"
	"math"

	"pair-agent/internal/domain"
)

// Defaults for Config.
const (
	DefaultPeriodsPerYear = 8760 // hourly bars
	DefaultMinPoints      = 50
	DefaultEntryZ         = 2.0

	minPointsFloor = 3
)

// ErrNilSeries is returned when a series argument is nil.
var ErrNilSeries = errors.New("nil price series")

// Config holds analyzer parameters.
type Config struct {
	// PeriodsPerYear annualizes Sharpe and volatility. Must match the sampling
	// period of the series (8760 for hourly, 365 for daily).
	PeriodsPerYear float64

	// MinPoints is the minimum aligned length required (never below 3).
	MinPoints int

	// EntryZ is the base |z| threshold for the raw signal.
	EntryZ float64

	// PValues maps the cointegration statistic to a p-value.
	PValues PValueTable
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		PeriodsPerYear: DefaultPeriodsPerYear,
		MinPoints:      DefaultMinPoints,
		EntryZ:         DefaultEntryZ,
		PValues:        DefaultPValueTable,
	}
}

// Analyzer turns two aligned price series into spread statistics. It holds no state.
type Analyzer struct {
	cfg Config
}

// New creates an analyzer. Zero-valued fields fall back to defaults.
func New(cfg Config) *Analyzer {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = DefaultMinPoints
	}
	if cfg.MinPoints < minPointsFloor {
		cfg.MinPoints = minPointsFloor
	}
	if cfg.EntryZ <= 0 {
		cfg.EntryZ = DefaultEntryZ
	}
	if len(cfg.PValues.Breakpoints) == 0 {
		cfg.PValues = DefaultPValueTable
	}
	return &Analyzer{cfg: cfg}
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze evaluates a pair. Series are aligned to equal length first.
// Returns an error wrapping domain.ErrDataUnavailable when too few points remain,
// or domain.ErrInvalidPriceData for non-positive or non-finite prices.
func (a *Analyzer) Analyze(pair domain.Pair, seriesA, seriesB *domain.PriceSeries) (*domain.AnalysisResult, error) {
	if seriesA == nil || seriesB == nil {
		return nil, ErrNilSeries
	}

	alignedA, alignedB := domain.AlignSeries(seriesA, seriesB)
	n := alignedA.Len()
	if n < a.cfg.MinPoints {
		return nil, fmt.Errorf("%w: %s has %d aligned points, need %d",
			domain.ErrDataUnavailable, pair.Key(), n, a.cfg.MinPoints)
	}

	pricesA := alignedA.Prices()
	pricesB := alignedB.Prices()
	if err := validatePrices(pair.SymbolA, pricesA); err != nil {
		return nil, err
	}
	if err := validatePrices(pair.SymbolB, pricesB); err != nil {
		return nil, err
	}

	result := a.analyzePrices(pricesA, pricesB)
	result.Pair = pair
	result.SampleSize = n
	if last, ok := alignedA.Last(); ok {
		result.ComputedAt = last.TimestampMs
	}
	return result, nil
}

func (a *Analyzer) analyzePrices(pricesA, pricesB []float64) *domain.AnalysisResult {
	returnsA := simpleReturns(pricesA)
	returnsB := simpleReturns(pricesB)

	corr := correlation(returnsA, returnsB)
	beta := hedgeRatio(returnsA, returnsB)

	spread := make([]float64, len(pricesA))
	for i := range pricesA {
		spread[i] = pricesA[i] - beta*pricesB[i]
	}

	spreadMean := mean(spread)
	spreadStd := sampleStddev(spread, spreadMean)
	last := spread[len(spread)-1]

	z := 0.0
	if spreadStd > 0 {
		z = (last - spreadMean) / spreadStd
	}
	if !isFinite(z) {
		z = 0
	}

	coint := Cointegration(spread, a.cfg.PValues)
	sharpe, vol := spreadSharpe(spread, a.cfg.PeriodsPerYear)

	return &domain.AnalysisResult{
		Correlation:         corr,
		HedgeRatio:          beta,
		Spread:              last,
		SpreadMean:          spreadMean,
		SpreadStd:           spreadStd,
		ZScore:              z,
		Signal:              domain.SignalFromZScore(z, a.cfg.EntryZ),
		HalfLife:            HalfLife(spread),
		CointegrationPValue: coint.PValue,
		IsCointegrated:      coint.PValue < 0.05,
		Sharpe:              sharpe,
		Volatility:          vol,
	}
}

// spreadSharpe computes annualized Sharpe and volatility of spread returns
// Δs/|s[t-1]|. Observations with a zero previous spread are skipped.
func spreadSharpe(spread []float64, periodsPerYear float64) (sharpe, vol float64) {
	returns := make([]float64, 0, len(spread))
	for i := 1; i < len(spread); i++ {
		prev := spread[i-1]
		if prev == 0 {
			continue
		}
		r := (spread[i] - prev) / math.Abs(prev)
		if isFinite(r) {
			returns = append(returns, r)
		}
	}
	if len(returns) < 2 {
		return 0, 0
	}

	m := mean(returns)
	sd := sampleStddev(returns, m)
	annual := math.Sqrt(periodsPerYear)
	vol = sd * annual
	if sd == 0 {
		return 0, vol
	}
	return m / sd * annual, vol
}

func validatePrices(symbol string, prices []float64) error {
	for i, p := range prices {
		if !isFinite(p) || p <= 0 {
			return fmt.Errorf("%w: %s point %d = %v", domain.ErrInvalidPriceData, symbol, i, p)
		}
	}
	return nil
}
