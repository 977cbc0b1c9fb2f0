package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/sirupsen/logrus"

	"pair-agent/internal/domain"
	"pair-agent/internal/logging"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.Strategy
	check(s.ZScoreThreshold > 0, "strategy.z_score_threshold must be positive, got %v", s.ZScoreThreshold)
	check(s.CorrelationThreshold >= 0 && s.CorrelationThreshold <= 1,
		"strategy.correlation_threshold must be in [0, 1], got %v", s.CorrelationThreshold)
	check(s.HalfLifeMin >= 0 && s.HalfLifeMin <= s.HalfLifeMax,
		"strategy.half_life_min/max must satisfy 0 <= min <= max, got %v/%v", s.HalfLifeMin, s.HalfLifeMax)
	check(s.MinPoints >= 3, "strategy.min_points must be at least 3, got %d", s.MinPoints)
	check(s.PeriodsPerYear > 0, "strategy.periods_per_year must be positive, got %v", s.PeriodsPerYear)
	if s.ADFOverridePValue != nil {
		check(*s.ADFOverridePValue > 0 && *s.ADFOverridePValue <= 1,
			"strategy.adf_override_p_value must be in (0, 1], got %v", *s.ADFOverridePValue)
	}
	if s.MaxVolatility != nil {
		check(*s.MaxVolatility > 0, "strategy.max_volatility must be positive, got %v", *s.MaxVolatility)
	}

	e := c.Exits
	check(e.StopLossPct <= 0, "exits.stop_loss_pct must be negative or 0, got %v", e.StopLossPct)
	check(e.TakeProfitPct >= 0, "exits.take_profit_pct must be positive or 0, got %v", e.TakeProfitPct)
	check(e.MeanReversionZ >= 0, "exits.mean_reversion_z must not be negative, got %v", e.MeanReversionZ)
	check(e.MaxHolding >= 0, "exits.max_holding must not be negative, got %v", e.MaxHolding)

	r := c.Risk
	check(r.MaxConcurrentPositions >= 1, "risk.max_concurrent_positions must be at least 1, got %d", r.MaxConcurrentPositions)
	check(r.MaxCorrelatedPositions >= 1, "risk.max_correlated_positions must be at least 1, got %d", r.MaxCorrelatedPositions)
	check(r.MaxPortfolioRisk >= 0, "risk.max_portfolio_risk must not be negative, got %v", r.MaxPortfolioRisk)
	check(r.CashReserve >= 0 && r.CashReserve < 1, "risk.cash_reserve must be in [0, 1), got %v", r.CashReserve)
	check(r.BaseSize > 0 && r.BaseSize <= 1, "risk.base_size must be in (0, 1], got %v", r.BaseSize)
	check(r.KellyFraction > 0 && r.KellyFraction <= 1, "risk.kelly_fraction must be in (0, 1], got %v", r.KellyFraction)
	check(r.MinTrades >= 0, "risk.min_trades must not be negative, got %d", r.MinTrades)
	check(r.TargetVolatility >= 0, "risk.target_volatility must not be negative, got %v", r.TargetVolatility)

	sc := c.Scan
	check(sc.Budget >= 1, "scan.budget must be at least 1, got %d", sc.Budget)
	check(sc.BatchSize >= 1, "scan.batch_size must be at least 1, got %d", sc.BatchSize)
	check(sc.InterScanDelay >= 0, "scan.inter_scan_delay must not be negative, got %v", sc.InterScanDelay)
	check(sc.Lookback >= s.MinPoints, "scan.lookback %d is below strategy.min_points %d", sc.Lookback, s.MinPoints)
	check(sc.CycleInterval > 0, "scan.cycle_interval must be positive, got %v", sc.CycleInterval)
	check(sc.ExitInterval >= 0, "scan.exit_interval must not be negative, got %v", sc.ExitInterval)
	check(sc.Leverage > 0, "scan.leverage must be positive, got %v", sc.Leverage)
	if _, err := c.FallbackPairs(); err != nil {
		errs = append(errs, err)
	}
	switch sc.Selector {
	case SelectorRandom:
		check(len(sc.Symbols) >= 2, "scan.symbols needs at least 2 symbols, got %d", len(sc.Symbols))
	case SelectorCategory:
		usable := 0
		for _, symbols := range sc.Categories {
			if len(symbols) >= 2 {
				usable++
			}
		}
		check(usable > 0, "scan.categories needs a category with at least 2 symbols")
	default:
		errs = append(errs, fmt.Errorf("scan.selector must be %q or %q, got %q", SelectorRandom, SelectorCategory, sc.Selector))
	}

	m := c.MarketData
	check(validURL(m.BaseURL, "http", "https"), "market_data.base_url is not an http(s) URL: %q", m.BaseURL)
	check(m.Interval != "", "market_data.interval is required")
	check(m.Burst >= 1 || m.RequestsPerSec <= 0, "market_data.burst must be at least 1 when rate limiting, got %d", m.Burst)
	check(m.MaxRetries >= 0, "market_data.max_retries must not be negative, got %d", m.MaxRetries)
	check(m.Timeout > 0, "market_data.timeout must be positive, got %v", m.Timeout)
	check(m.CacheTTL >= 0, "market_data.cache_ttl must not be negative, got %v", m.CacheTTL)
	if m.StreamEnabled {
		check(validURL(m.StreamURL, "ws", "wss"), "market_data.stream_url is not a ws(s) URL: %q", m.StreamURL)
		check(m.MaxPriceAge > 0, "market_data.max_price_age must be positive, got %v", m.MaxPriceAge)
	}

	if !c.Storage.UseMemory {
		check(c.Storage.PostgresDSN != "", "storage.postgres_dsn is required unless storage.use_memory is set")
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout)

	if _, err := logging.NewWithWriter(io.Discard, c.Log.Level, c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// FallbackPairs parses scan.fallback_pairs.
func (c *Config) FallbackPairs() ([]domain.Pair, error) {
	pairs := make([]domain.Pair, 0, len(c.Scan.FallbackPairs))
	for _, s := range c.Scan.FallbackPairs {
		p, ok := domain.ParsePair(s)
		if !ok {
			return nil, fmt.Errorf("scan.fallback_pairs: invalid pair %q, want A/B", s)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func validURL(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

// Fields returns a redacted summary for the startup log line.
func (c *Config) Fields() logrus.Fields {
	return logrus.Fields{
		"selector":        c.Scan.Selector,
		"scan_budget":     c.Scan.Budget,
		"cycle_interval":  c.Scan.CycleInterval.String(),
		"exit_interval":   c.Scan.ExitInterval.String(),
		"max_positions":   c.Risk.MaxConcurrentPositions,
		"use_memory":      c.Storage.UseMemory,
		"clickhouse":      c.Storage.ClickhouseDSN != "",
		"redis":           c.Storage.RedisURL != "",
		"stream":          c.MarketData.StreamEnabled,
		"market_data_url": c.MarketData.BaseURL,
	}
}
