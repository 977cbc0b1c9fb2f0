package backtest

import (
	"sort"

	"pair-agent/internal/domain"
)

// Timeline holds series aligned on the timestamps shared by every symbol.
type Timeline struct {
	Timestamps []int64
	prices     map[string][]float64
}

// NewTimeline aligns series on the intersection of their timestamps.
// Nil and empty series are ignored.
func NewTimeline(series []*domain.PriceSeries) *Timeline {
	counts := make(map[int64]int)
	byTs := make(map[string]map[int64]float64)
	n := 0
	for _, s := range series {
		if s.Len() == 0 {
			continue
		}
		n++
		m := make(map[int64]float64, len(s.Points))
		for _, p := range s.Points {
			if _, dup := m[p.TimestampMs]; !dup {
				counts[p.TimestampMs]++
			}
			m[p.TimestampMs] = p.Price
		}
		byTs[s.Symbol] = m
	}

	tl := &Timeline{prices: make(map[string][]float64, len(byTs))}
	for ts, c := range counts {
		if c == n {
			tl.Timestamps = append(tl.Timestamps, ts)
		}
	}
	sort.Slice(tl.Timestamps, func(i, j int) bool { return tl.Timestamps[i] < tl.Timestamps[j] })

	for symbol, m := range byTs {
		prices := make([]float64, len(tl.Timestamps))
		for i, ts := range tl.Timestamps {
			prices[i] = m[ts]
		}
		tl.prices[symbol] = prices
	}
	return tl
}

// Len returns the number of aligned bars.
func (t *Timeline) Len() int {
	return len(t.Timestamps)
}

// Has reports whether symbol is part of the timeline.
func (t *Timeline) Has(symbol string) bool {
	_, ok := t.prices[symbol]
	return ok
}

// Price returns the price of symbol at bar i.
func (t *Timeline) Price(symbol string, i int) float64 {
	return t.prices[symbol][i]
}

// Window returns up to size bars of symbol ending at bar i (inclusive).
func (t *Timeline) Window(symbol string, i, size int) *domain.PriceSeries {
	start := i - size + 1
	if start < 0 {
		start = 0
	}
	prices := t.prices[symbol]
	s := &domain.PriceSeries{Symbol: symbol, Points: make([]domain.PricePoint, 0, i-start+1)}
	for j := start; j <= i; j++ {
		s.Points = append(s.Points, domain.PricePoint{TimestampMs: t.Timestamps[j], Price: prices[j]})
	}
	return s
}
