package marketdata

import (
	"context"
	"time"

	"pair-agent/internal/domain"
)

// DefaultMaxPriceAge is how old a streamed price may be before REST is used instead.
const DefaultMaxPriceAge = 30 * time.Second

// PriceSource is a live price cache such as TickerStream.
type PriceSource interface {
	Price(symbol string, maxAge time.Duration) (float64, bool)
}

// StreamingProvider serves spot prices from a live stream when fresh and falls back to the REST provider.
type StreamingProvider struct {
	Provider
	stream PriceSource
	maxAge time.Duration
}

// NewStreamingProvider combines a REST provider with a streamed price source.
func NewStreamingProvider(rest Provider, stream PriceSource, maxAge time.Duration) *StreamingProvider {
	if maxAge <= 0 {
		maxAge = DefaultMaxPriceAge
	}
	return &StreamingProvider{Provider: rest, stream: stream, maxAge: maxAge}
}

// GetCurrentPrice prefers a fresh streamed price.
func (p *StreamingProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if p.stream != nil {
		if price, ok := p.stream.Price(symbol, p.maxAge); ok {
			return price, nil
		}
	}
	return p.Provider.GetCurrentPrice(ctx, symbol)
}

// GetSeries delegates to the REST provider.
func (p *StreamingProvider) GetSeries(ctx context.Context, symbol string, lookback int) (*domain.PriceSeries, error) {
	return p.Provider.GetSeries(ctx, symbol, lookback)
}

var _ Provider = (*StreamingProvider)(nil)
