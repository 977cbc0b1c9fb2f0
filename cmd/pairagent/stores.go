package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"pair-agent/internal/config"
	"pair-agent/internal/marketdata"
	"pair-agent/internal/orchestrator"
	"pair-agent/internal/selector"
	"pair-agent/internal/storage"
	chstore "pair-agent/internal/storage/clickhouse"
	"pair-agent/internal/storage/memory"
	"pair-agent/internal/storage/migrations"
	pgstore "pair-agent/internal/storage/postgres"
)

// stores holds the storage backends selected by config.
type stores struct {
	positions   storage.PositionStore
	performance storage.PerformanceStore
	analyses    storage.AnalysisStore // nil disables analysis recording
	closers     []func()
}

// Close releases database connections in reverse order of opening.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the configured backends. With migrate set the embedded
// migrations are applied first; they are idempotent.
func openStores(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, migrate bool) (*stores, error) {
	if cfg.Storage.UseMemory {
		logger.WithField("storage", "memory").Info("positions are kept in memory only")
		return &stores{
			positions:   memory.NewPositionStore(),
			performance: memory.NewPerformanceStore(),
			analyses:    memory.NewAnalysisStore(),
		}, nil
	}

	st := &stores{}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, pool.Close)

	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			st.Close()
			return nil, err
		}
	}
	st.positions = pgstore.NewPositionStore(pool)
	st.performance = pgstore.NewPerformanceStore(pool)

	if cfg.Storage.ClickhouseDSN != "" {
		var conn *chstore.Conn
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN, logger)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		}
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = conn.Close() })
		st.analyses = chstore.NewAnalysisStore(conn)
	}

	return st, nil
}

// newMarketData builds the REST client, optionally behind the Redis series cache.
// The returned cleanup closes the Redis client.
func newMarketData(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (marketdata.Provider, func(), error) {
	md := cfg.MarketData
	var provider marketdata.Provider = marketdata.NewHTTPClient(md.BaseURL,
		marketdata.WithInterval(md.Interval),
		marketdata.WithTimeout(md.Timeout),
		marketdata.WithMaxRetries(md.MaxRetries),
		marketdata.WithRetryDelay(md.RetryDelay),
		marketdata.WithRateLimit(md.RequestsPerSec, md.Burst),
		marketdata.WithLogger(logger),
	)

	if cfg.Storage.RedisURL == "" {
		return provider, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Storage.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	cleanup := func() { _ = rdb.Close() }
	return marketdata.NewCachedProvider(provider, rdb, md.CacheTTL, logger), cleanup, nil
}

// newSelector builds the candidate selector named in the scan section.
// A zero seed is replaced with the clock.
func newSelector(cfg *config.Config) (orchestrator.PairSelector, error) {
	seed := cfg.Scan.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	switch cfg.Scan.Selector {
	case config.SelectorCategory:
		return selector.NewCategorySelector(cfg.Scan.Categories, seed), nil
	case config.SelectorRandom, "":
		return selector.NewRandomSelector(cfg.Scan.Symbols, seed), nil
	default:
		return nil, fmt.Errorf("unknown selector %q", cfg.Scan.Selector)
	}
}
