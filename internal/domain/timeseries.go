package domain

// PricePoint is a single sample of an instrument's price.
type PricePoint struct {
	TimestampMs int64   // Unix timestamp in milliseconds (bar open time)
	Price       float64 // close price of the bar
}

// PriceSeries is an ordered price history for one symbol.
// Points are ordered by TimestampMs ASC; duplicate timestamps are not expected.
type PriceSeries struct {
	Symbol string
	Points []PricePoint
}

// Len returns the number of points in the series.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Prices returns the price column of the series.
func (s *PriceSeries) Prices() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Last returns the most recent point and false if the series is empty.
func (s *PriceSeries) Last() (PricePoint, bool) {
	if s.Len() == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Tail returns a copy of the series holding only the last n points.
func (s *PriceSeries) Tail(n int) *PriceSeries {
	if s == nil {
		return nil
	}
	if n < 0 {
		n = 0
	}
	start := 0
	if len(s.Points) > n {
		start = len(s.Points) - n
	}
	points := make([]PricePoint, len(s.Points)-start)
	copy(points, s.Points[start:])
	return &PriceSeries{Symbol: s.Symbol, Points: points}
}

// AlignSeries truncates two series to equal length.
// The longer series loses its oldest points so both end at their latest sample.
func AlignSeries(a, b *PriceSeries) (*PriceSeries, *PriceSeries) {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	return a.Tail(n), b.Tail(n)
}
