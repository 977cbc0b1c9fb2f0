package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"pair-agent/internal/domain"
	"pair-agent/internal/logging"
	"pair-agent/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.binance.com"
	DefaultInterval    = "1h"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultRPS         = 10.0
	DefaultBurst       = 5

	// maxKlines is the exchange's per-request kline limit.
	maxKlines = 1000
)

// HTTPClient implements Provider over the exchange REST API.
type HTTPClient struct {
	baseURL     string
	interval    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	limiter     *rate.Limiter
	breakerCfg  gobreaker.Settings
	breaker     *gobreaker.CircuitBreaker
	log         *logrus.Entry
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithInterval sets the kline interval (e.g. "1h", "15m").
func WithInterval(interval string) ClientOption {
	return func(c *HTTPClient) {
		c.interval = interval
	}
}

// WithRateLimit sets the token bucket. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker replaces the circuit breaker settings.
func WithBreaker(st gobreaker.Settings) ClientOption {
	return func(c *HTTPClient) {
		c.breakerCfg = st
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) ClientOption {
	return func(c *HTTPClient) {
		c.log = logging.Component(logger, "marketdata")
	}
}

// NewHTTPClient creates a new exchange REST client.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL:     baseURL,
		interval:    DefaultInterval,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
		log:         logging.Component(nil, "marketdata"),
		breakerCfg: gobreaker.Settings{
			Name:        "marketdata",
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.breakerCfg.IsSuccessful == nil {
		c.breakerCfg.IsSuccessful = breakerSuccess
	}
	if c.breakerCfg.OnStateChange == nil {
		log := c.log
		c.breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state change")
		}
	}
	c.breaker = gobreaker.NewCircuitBreaker(c.breakerCfg)
	return c
}

// breakerSuccess keeps client rejections and cancellations from tripping the breaker.
func breakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrClientRejection) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// statusError is a non-2xx response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// get performs a GET with rate limiting, retries and exponential backoff, all behind the breaker.
func (c *HTTPClient) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	start := time.Now()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(ctx, path, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s circuit open: %v", domain.ErrDataUnavailable, endpoint, err)
	}

	observability.RecordMarketDataRequest(endpoint, time.Since(start).Seconds(), errorClass(err))
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *HTTPClient) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
			// 418 is the exchange's escalated rate limit ban.
			lastErr = fmt.Errorf("%w: status %d", domain.ErrRateLimited, resp.StatusCode)
			c.log.WithField("attempt", attempt+1).Warn("rate limited by market data provider")
		case resp.StatusCode >= 500:
			lastErr = &statusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrClientRejection, &statusError{Code: resp.StatusCode, Body: truncate(string(body), 200)})
		}
	}

	if errors.Is(lastErr, domain.ErrRateLimited) {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, fmt.Errorf("%w: max retries exceeded: %v", domain.ErrDataUnavailable, lastErr)
}

// GetSeries fetches the last lookback kline closes for symbol.
func (c *HTTPClient) GetSeries(ctx context.Context, symbol string, lookback int) (*domain.PriceSeries, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("%w: lookback must be positive", domain.ErrDataUnavailable)
	}
	if lookback > maxKlines {
		lookback = maxKlines
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", c.interval)
	query.Set("limit", strconv.Itoa(lookback))

	body, err := c.get(ctx, endpointKlines, "/api/v3/klines", query)
	if err != nil {
		return nil, fmt.Errorf("get klines %s: %w", symbol, err)
	}

	series, err := parseKlines(symbol, body)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: no klines for %s", domain.ErrDataUnavailable, symbol)
	}
	return series, nil
}

// GetCurrentPrice fetches the ticker price for symbol.
func (c *HTTPClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	body, err := c.get(ctx, endpointTicker, "/api/v3/ticker/price", query)
	if err != nil {
		return 0, fmt.Errorf("get ticker %s: %w", symbol, err)
	}

	var ticker tickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("%w: decode ticker %s: %v", domain.ErrDataUnavailable, symbol, err)
	}
	price, err := parsePrice(ticker.Price)
	if err != nil {
		return 0, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	return price, nil
}

// tickerResponse is the raw /api/v3/ticker/price payload.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// parseKlines decodes the kline array format:
// [openTime, open, high, low, close, volume, closeTime, ...]
func parseKlines(symbol string, body []byte) (*domain.PriceSeries, error) {
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode klines %s: %v", domain.ErrDataUnavailable, symbol, err)
	}

	series := &domain.PriceSeries{Symbol: symbol, Points: make([]domain.PricePoint, 0, len(raw))}
	for i, k := range raw {
		if len(k) < 7 {
			return nil, fmt.Errorf("%w: kline %d for %s has %d fields", domain.ErrDataUnavailable, i, symbol, len(k))
		}

		var closeTime int64
		if err := json.Unmarshal(k[6], &closeTime); err != nil {
			return nil, fmt.Errorf("%w: kline %d close time: %v", domain.ErrDataUnavailable, i, err)
		}
		var closeStr string
		if err := json.Unmarshal(k[4], &closeStr); err != nil {
			return nil, fmt.Errorf("%w: kline %d close: %v", domain.ErrDataUnavailable, i, err)
		}
		price, err := parsePrice(closeStr)
		if err != nil {
			return nil, fmt.Errorf("kline %d for %s: %w", i, symbol, err)
		}

		series.Points = append(series.Points, domain.PricePoint{TimestampMs: closeTime, Price: price})
	}
	return series, nil
}

// parsePrice parses an exchange decimal string and rejects non-positive values.
func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %q: %v", domain.ErrInvalidPriceData, s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: non-positive price %s", domain.ErrInvalidPriceData, s)
	}
	return d.InexactFloat64(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func isErr(err, target error) bool {
	return errors.Is(err, target)
}

var _ Provider = (*HTTPClient)(nil)
