package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pair-agent/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2.0, cfg.Strategy.ZScoreThreshold)
	assert.Equal(t, 72*time.Hour, cfg.Exits.MaxHolding)
	assert.Equal(t, 60*time.Minute, cfg.Scan.CycleInterval)
	assert.Equal(t, 5*time.Minute, cfg.Scan.ExitInterval)
	assert.Equal(t, 1.0, cfg.Scan.Leverage)
	assert.True(t, cfg.Storage.UseMemory)
	assert.Nil(t, cfg.Strategy.MinSharpe)
	assert.Nil(t, cfg.Strategy.ADFOverridePValue)
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agent.yaml", `
strategy:
  z_score_threshold: 2.5
  min_sharpe: 0.8
exits:
  stop_loss_pct: -4
  max_holding: 48h
scan:
  budget: 12
  fallback_pairs: ["BTCUSDT/ETHUSDT"]
`)

	t.Setenv("PAIRAGENT_SCAN_BUDGET", "20")
	t.Setenv("PAIRAGENT_STRATEGY_MAX_VOLATILITY", "1.5")
	t.Setenv("PAIRAGENT_SCAN_SYMBOLS", "AAAUSDT, BBBUSDT,CCCUSDT")

	cfg, err := Load(New(), path, "")
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.Strategy.ZScoreThreshold)
	assert.Equal(t, -4.0, cfg.Exits.StopLossPct)
	assert.Equal(t, 48*time.Hour, cfg.Exits.MaxHolding)
	assert.Equal(t, 20, cfg.Scan.Budget, "env overrides file")
	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"}, cfg.Scan.Symbols)

	require.NotNil(t, cfg.Strategy.MinSharpe)
	assert.Equal(t, 0.8, *cfg.Strategy.MinSharpe)
	require.NotNil(t, cfg.Strategy.MaxVolatility)
	assert.Equal(t, 1.5, *cfg.Strategy.MaxVolatility)

	pairs, err := cfg.FallbackPairs()
	require.NoError(t, err)
	assert.Equal(t, []domain.Pair{domain.NewPair("BTCUSDT", "ETHUSDT")}, pairs)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "PAIRAGENT_RISK_MAX_CONCURRENT_POSITIONS=5\n")
	t.Cleanup(func() { os.Unsetenv("PAIRAGENT_RISK_MAX_CONCURRENT_POSITIONS") })

	cfg, err := Load(New(), "", envFile)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Risk.MaxConcurrentPositions)
}

func TestLoad_EnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "PAIRAGENT_SCAN_BATCH_SIZE=9\n")
	t.Setenv("PAIRAGENT_SCAN_BATCH_SIZE", "3")

	cfg, err := Load(New(), "", envFile)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scan.BatchSize)
}

func TestLoad_MissingOptionalFiles(t *testing.T) {
	cfg, err := Load(New(), "", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Scan.Budget)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.Error(t, err)
}

func TestLoad_InvalidConfig(t *testing.T) {
	t.Setenv("PAIRAGENT_STRATEGY_CORRELATION_THRESHOLD", "1.5")
	t.Setenv("PAIRAGENT_SCAN_LEVERAGE", "0")

	_, err := Load(New(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy.correlation_threshold")
	assert.Contains(t, err.Error(), "scan.leverage")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"half-life band inverted", func(c *Config) { c.Strategy.HalfLifeMin = 50; c.Strategy.HalfLifeMax = 10 }, "half_life_min"},
		{"positive stop-loss", func(c *Config) { c.Exits.StopLossPct = 3 }, "stop_loss_pct"},
		{"zero concurrency", func(c *Config) { c.Risk.MaxConcurrentPositions = 0 }, "max_concurrent_positions"},
		{"cash reserve of one", func(c *Config) { c.Risk.CashReserve = 1 }, "cash_reserve"},
		{"lookback below min points", func(c *Config) { c.Scan.Lookback = 10 }, "scan.lookback"},
		{"bad fallback pair", func(c *Config) { c.Scan.FallbackPairs = []string{"BTCUSDT"} }, "fallback_pairs"},
		{"unknown selector", func(c *Config) { c.Scan.Selector = "smart" }, "scan.selector"},
		{"category without usable category", func(c *Config) {
			c.Scan.Selector = SelectorCategory
			c.Scan.Categories = map[string][]string{"l1": {"BTCUSDT"}}
		}, "scan.categories"},
		{"postgres required", func(c *Config) { c.Storage.UseMemory = false }, "postgres_dsn"},
		{"bad base url", func(c *Config) { c.MarketData.BaseURL = "ftp://example.com" }, "base_url"},
		{"bad stream url", func(c *Config) {
			c.MarketData.StreamEnabled = true
			c.MarketData.StreamURL = "https://example.com"
		}, "stream_url"},
		{"adf override out of range", func(c *Config) { c.Strategy.ADFOverridePValue = ptr(0.0) }, "adf_override_p_value"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log"},
		{"disabled rules are valid", func(c *Config) {
			c.Exits = ExitsConfig{}
			c.Scan.ExitInterval = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Strategy.ADFOverridePValue = ptr(0.01)
	cfg.Risk.KellyEnabled = true
	cfg.Scan.FallbackPairs = []string{"SOLUSDT/AVAXUSDT"}

	q := cfg.QualifierConfig()
	assert.Equal(t, cfg.Strategy.ZScoreThreshold, q.ZScoreThreshold)
	require.NotNil(t, q.ADFOverridePValue)
	assert.Equal(t, 0.01, *q.ADFOverridePValue)

	r := cfg.RiskConfig()
	assert.True(t, r.KellyEnabled)
	assert.Equal(t, cfg.Risk.MaxConcurrentPositions, r.Limits.MaxConcurrentPositions)

	e := cfg.ExitConfig()
	assert.Equal(t, -3.0, e.StopLossPct)
	assert.Equal(t, 0.5, e.MeanReversionZ)

	o := cfg.OrchestratorConfig()
	assert.Equal(t, []domain.Pair{domain.NewPair("SOLUSDT", "AVAXUSDT")}, o.FallbackPairs)
	assert.Equal(t, cfg.Scan.Budget, o.ScanBudget)

	a := cfg.AnalyzerConfig()
	assert.Equal(t, cfg.Strategy.PeriodsPerYear, a.PeriodsPerYear)

	s := cfg.SchedulerConfig()
	assert.Equal(t, cfg.Scan.CycleInterval, s.CycleInterval)
}

func TestLoadFromFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=debug", "--env-file="}))

	cfg, err := LoadFromFlags(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset flag keeps the default")
	assert.True(t, cfg.Storage.UseMemory)
}

func ptr[T any](v T) *T {
	return &v
}
