package orchestrator

import (
	"context"
	"fmt"

	"pair-agent/internal/domain"
)

// seriesCache memoizes series fetches, including failures, for one pass.
type seriesCache struct {
	md       MarketData
	lookback int
	entries  map[string]seriesEntry
}

type seriesEntry struct {
	series *domain.PriceSeries
	err    error
}

func newSeriesCache(md MarketData, lookback int) *seriesCache {
	return &seriesCache{md: md, lookback: lookback, entries: make(map[string]seriesEntry)}
}

func (c *seriesCache) get(ctx context.Context, symbol string) (*domain.PriceSeries, error) {
	if e, ok := c.entries[symbol]; ok {
		return e.series, e.err
	}

	series, err := c.md.GetSeries(ctx, symbol, c.lookback)
	if err != nil {
		err = fmt.Errorf("series %s: %w", symbol, err)
	}
	// Cancellation is not a property of the symbol.
	if ctx.Err() == nil {
		c.entries[symbol] = seriesEntry{series: series, err: err}
	}
	return series, err
}
