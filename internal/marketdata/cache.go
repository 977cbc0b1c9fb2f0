package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"pair-agent/internal/domain"
	"pair-agent/internal/logging"
	"pair-agent/internal/observability"
)

// DefaultCacheTTL bounds how stale a cached series may be.
const DefaultCacheTTL = 5 * time.Minute

// CachedProvider caches price series in Redis in front of another Provider.
// Spot prices are never cached. Redis failures fall through to the upstream.
type CachedProvider struct {
	upstream Provider
	rdb      redis.Cmdable
	ttl      time.Duration
	prefix   string
	log      *logrus.Entry
}

// NewCachedProvider wraps upstream with a Redis series cache.
func NewCachedProvider(upstream Provider, rdb redis.Cmdable, ttl time.Duration, logger logrus.FieldLogger) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{
		upstream: upstream,
		rdb:      rdb,
		ttl:      ttl,
		prefix:   "pairagent:series:",
		log:      logging.Component(logger, "series_cache"),
	}
}

func (p *CachedProvider) key(symbol string, lookback int) string {
	return fmt.Sprintf("%s%s:%d", p.prefix, symbol, lookback)
}

// GetSeries returns the cached series or fetches and caches it.
func (p *CachedProvider) GetSeries(ctx context.Context, symbol string, lookback int) (*domain.PriceSeries, error) {
	key := p.key(symbol, lookback)

	raw, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var series domain.PriceSeries
		if jsonErr := json.Unmarshal(raw, &series); jsonErr == nil {
			observability.RecordCacheLookup(true)
			return &series, nil
		}
		p.log.WithField("key", key).Warn("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		p.log.WithError(err).Warn("series cache read failed")
	}
	observability.RecordCacheLookup(false)

	series, err := p.upstream.GetSeries(ctx, symbol, lookback)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(series); err == nil {
		if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
			p.log.WithError(err).Warn("series cache write failed")
		}
	}
	return series, nil
}

// GetCurrentPrice delegates to the upstream provider.
func (p *CachedProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return p.upstream.GetCurrentPrice(ctx, symbol)
}

var _ Provider = (*CachedProvider)(nil)
