package domain

import "errors"

// Error taxonomy shared across components. Match with errors.Is.
var (
	// ErrDataUnavailable covers too few price points or a symbol lookup miss.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrClientRejection is a non-retriable 4xx response from the data provider.
	ErrClientRejection = errors.New("client rejection")

	// ErrRateLimited is returned when the provider keeps rate limiting after retries.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidPriceData is a non-positive or NaN price.
	ErrInvalidPriceData = errors.New("invalid price data")

	// ErrPersistence wraps a failed write to the persistent store.
	ErrPersistence = errors.New("persistence failure")
)
