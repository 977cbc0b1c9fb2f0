package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pair-agent/internal/logging"
	"pair-agent/internal/observability"
)

// DefaultStreamURL is the all-market mini ticker stream.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws/!miniTicker@arr"

// StreamConfig configures TickerStream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// tick is the last streamed price of a symbol.
type tick struct {
	price float64
	at    time.Time
}

// miniTicker is one element of the !miniTicker@arr payload.
type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// TickerStream keeps the latest price per symbol from a websocket mini ticker feed.
type TickerStream struct {
	url    string
	config StreamConfig
	log    *logrus.Entry
	now    func() time.Time

	mu     sync.RWMutex
	prices map[string]tick

	connected chan struct{}
	once      sync.Once
}

// NewTickerStream creates a stream. Call Run to connect.
func NewTickerStream(url string, config *StreamConfig, logger logrus.FieldLogger) *TickerStream {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if url == "" {
		url = DefaultStreamURL
	}
	return &TickerStream{
		url:       url,
		config:    cfg,
		log:       logging.Component(logger, "ticker_stream"),
		now:       time.Now,
		prices:    make(map[string]tick),
		connected: make(chan struct{}),
	}
}

// Run connects and reads until ctx is done, reconnecting with exponential backoff.
func (s *TickerStream) Run(ctx context.Context) {
	delay := s.config.ReconnectDelay

	for ctx.Err() == nil {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}

		observability.RecordStreamReconnect()
		s.log.WithError(err).WithField("retry_in", delay.String()).Warn("ticker stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// session runs one connection until a read error or ctx cancellation.
func (s *TickerStream) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.config.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	s.once.Do(func() { close(s.connected) })
	s.log.Info("ticker stream connected")

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.handleMessage(message)
	}
}

// handleMessage accepts either a ticker array or a single ticker object.
func (s *TickerStream) handleMessage(message []byte) {
	var batch []miniTicker
	if err := json.Unmarshal(message, &batch); err != nil {
		var single miniTicker
		if err := json.Unmarshal(message, &single); err != nil || single.Symbol == "" {
			s.log.WithField("bytes", len(message)).Debug("ignoring unrecognized stream message")
			return
		}
		batch = []miniTicker{single}
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range batch {
		price, err := parsePrice(t.Close)
		if err != nil || t.Symbol == "" {
			continue
		}
		s.prices[t.Symbol] = tick{price: price, at: now}
	}
}

// Price returns the last streamed price if it is no older than maxAge.
func (s *TickerStream) Price(symbol string, maxAge time.Duration) (float64, bool) {
	s.mu.RLock()
	t, ok := s.prices[symbol]
	s.mu.RUnlock()

	if !ok || s.now().Sub(t.at) > maxAge {
		return 0, false
	}
	return t.price, true
}

// Symbols returns the number of symbols with a streamed price.
func (s *TickerStream) Symbols() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices)
}

// Connected is closed after the first successful dial.
func (s *TickerStream) Connected() <-chan struct{} {
	return s.connected
}
