// Package marketdata fetches price series and spot prices from a Binance-compatible exchange API.
package marketdata

import (
	"context"

	"pair-agent/internal/domain"
)

// Provider is the market data port used by the orchestrator and backtests.
type Provider interface {
	// GetSeries returns up to lookback closes for symbol, oldest first.
	GetSeries(ctx context.Context, symbol string, lookback int) (*domain.PriceSeries, error)

	// GetCurrentPrice returns the latest traded price for symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Endpoint labels used for metrics.
const (
	endpointKlines = "klines"
	endpointTicker = "ticker"
)

// errorClass maps an error to a low-cardinality metrics label.
func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case isErr(err, domain.ErrClientRejection):
		return "client_rejection"
	case isErr(err, domain.ErrRateLimited):
		return "rate_limited"
	case isErr(err, domain.ErrInvalidPriceData):
		return "invalid_price"
	default:
		return "unavailable"
	}
}
