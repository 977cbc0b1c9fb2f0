package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pair-agent/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func fastStreamConfig() *StreamConfig {
	return &StreamConfig{
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 20 * time.Millisecond,
		ReadTimeout:       time.Second,
		HandshakeTimeout:  time.Second,
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestTickerStream_ReceivesPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`[
			{"e":"24hrMiniTicker","E":1,"s":"BTCUSDT","c":"97000.50"},
			{"e":"24hrMiniTicker","E":1,"s":"ETHUSDT","c":"3200.25"},
			{"e":"24hrMiniTicker","E":1,"s":"BADUSDT","c":"-1"}
		]`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream := NewTickerStream(wsURL(server), fastStreamConfig(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		stream.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return stream.Symbols() == 2 }, 2*time.Second, 10*time.Millisecond)

	price, ok := stream.Price("BTCUSDT", time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 97000.5, price)

	_, ok = stream.Price("BADUSDT", time.Minute)
	assert.False(t, ok)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTickerStream_Reconnects(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		if n == 1 {
			// Drop the first connection immediately.
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"24hrMiniTicker","E":1,"s":"SOLUSDT","c":"180.1"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream := NewTickerStream(wsURL(server), fastStreamConfig(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := stream.Price("SOLUSDT", time.Minute)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.GreaterOrEqual(t, connections, 2)
	mu.Unlock()
}

func TestTickerStream_StalePrice(t *testing.T) {
	stream := NewTickerStream("ws://unused", nil, logging.Discard())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stream.now = func() time.Time { return base }

	stream.handleMessage([]byte(`{"e":"24hrMiniTicker","E":1,"s":"BTCUSDT","c":"100"}`))

	stream.now = func() time.Time { return base.Add(time.Minute) }
	_, ok := stream.Price("BTCUSDT", 30*time.Second)
	assert.False(t, ok)

	p, ok := stream.Price("BTCUSDT", 2*time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 100.0, p)
}

func TestTickerStream_IgnoresGarbage(t *testing.T) {
	stream := NewTickerStream("ws://unused", nil, logging.Discard())
	stream.handleMessage([]byte(`not json`))
	stream.handleMessage([]byte(`{"result":null,"id":1}`))
	assert.Equal(t, 0, stream.Symbols())
}

// staticSource is a PriceSource with fixed prices.
type staticSource map[string]float64

func (s staticSource) Price(symbol string, _ time.Duration) (float64, bool) {
	p, ok := s[symbol]
	return p, ok
}

func TestStreamingProvider_PrefersStream(t *testing.T) {
	rest := newFake()
	provider := NewStreamingProvider(rest, staticSource{"BTCUSDT": 99.9}, 0)
	ctx := context.Background()

	p, err := provider.GetCurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 99.9, p)
	assert.Equal(t, 0, rest.priceHits)

	rest.prices["ETHUSDT"] = 3000
	p, err = provider.GetCurrentPrice(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, p)
	assert.Equal(t, 1, rest.priceHits)

	_, err = provider.GetSeries(ctx, "BTCUSDT", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rest.seriesHits)
}

func TestStreamingProvider_NilStream(t *testing.T) {
	rest := newFake()
	provider := NewStreamingProvider(rest, nil, time.Second)

	p, err := provider.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 101.5, p)
}
