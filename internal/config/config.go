// Package config loads agent configuration from a YAML file, a .env file and
// PAIRAGENT_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PAIRAGENT_SCAN_BUDGET.
const EnvPrefix = "PAIRAGENT"

type Config struct {
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Exits      ExitsConfig      `mapstructure:"exits"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Scan       ScanConfig       `mapstructure:"scan"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

// StrategyConfig holds analyzer and qualifier thresholds.
type StrategyConfig struct {
	ZScoreThreshold      float64 `mapstructure:"z_score_threshold"`
	CorrelationThreshold float64 `mapstructure:"correlation_threshold"`
	HalfLifeFilter       bool    `mapstructure:"half_life_filter"`
	HalfLifeMin          float64 `mapstructure:"half_life_min"`
	HalfLifeMax          float64 `mapstructure:"half_life_max"`
	DynamicThreshold     bool    `mapstructure:"dynamic_threshold"`
	MinPoints            int     `mapstructure:"min_points"`
	PeriodsPerYear       float64 `mapstructure:"periods_per_year"`

	// Optional gates; unset means disabled.
	ADFOverridePValue *float64 `mapstructure:"adf_override_p_value"`
	MinSharpe         *float64 `mapstructure:"min_sharpe"`
	MaxVolatility     *float64 `mapstructure:"max_volatility"`
}

// ExitsConfig holds the exit rules. Zero disables a rule.
type ExitsConfig struct {
	StopLossPct    float64       `mapstructure:"stop_loss_pct"`
	TakeProfitPct  float64       `mapstructure:"take_profit_pct"`
	MeanReversionZ float64       `mapstructure:"mean_reversion_z"`
	MaxHolding     time.Duration `mapstructure:"max_holding"`
}

type RiskConfig struct {
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	MaxCorrelatedPositions int     `mapstructure:"max_correlated_positions"`
	MaxPortfolioRisk       float64 `mapstructure:"max_portfolio_risk"`
	CashReserve            float64 `mapstructure:"cash_reserve"`
	BaseSize               float64 `mapstructure:"base_size"`
	KellyEnabled           bool    `mapstructure:"kelly_enabled"`
	KellyFraction          float64 `mapstructure:"kelly_fraction"`
	MinTrades              int     `mapstructure:"min_trades"`
	TargetVolatility       float64 `mapstructure:"target_volatility"`
}

type ScanConfig struct {
	Budget         int           `mapstructure:"budget"`
	BatchSize      int           `mapstructure:"batch_size"`
	InterScanDelay time.Duration `mapstructure:"inter_scan_delay"`
	Lookback       int           `mapstructure:"lookback"`
	FallbackPairs  []string      `mapstructure:"fallback_pairs"` // "A/B"
	CycleInterval  time.Duration `mapstructure:"cycle_interval"`
	ExitInterval   time.Duration `mapstructure:"exit_interval"`
	RunOnStart     bool          `mapstructure:"run_on_start"`
	Leverage       float64       `mapstructure:"leverage"`

	// Candidate universe.
	Selector   string              `mapstructure:"selector"` // random | category
	Symbols    []string            `mapstructure:"symbols"`
	Categories map[string][]string `mapstructure:"categories"`
	Seed       int64               `mapstructure:"seed"` // 0 seeds from the clock
}

type MarketDataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Interval       string        `mapstructure:"interval"`
	RequestsPerSec float64       `mapstructure:"requests_per_second"`
	Burst          int           `mapstructure:"burst"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	StreamEnabled  bool          `mapstructure:"stream_enabled"`
	StreamURL      string        `mapstructure:"stream_url"`
	MaxPriceAge    time.Duration `mapstructure:"max_price_age"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// StorageConfig selects backends. With UseMemory set the DSNs are ignored;
// an empty ClickHouse DSN disables analysis recording and an empty Redis URL disables caching.
type StorageConfig struct {
	UseMemory     bool   `mapstructure:"use_memory"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	RedisURL      string `mapstructure:"redis_url"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// optionalKeys have no default and are only read when set.
var optionalKeys = []string{
	"strategy.adf_override_p_value",
	"strategy.min_sharpe",
	"strategy.max_volatility",
}

// New returns a viper instance with defaults and environment overrides configured.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range optionalKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads configuration into a validated Config.
// configFile may be empty, in which case config.yaml is searched in ./configs and the
// working directory and its absence is not an error. envFile is loaded when present.
func Load(v *viper.Viper, configFile, envFile string) (*Config, error) {
	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the defaults without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	cfg.normalize()
	return &cfg
}

// normalize trims list entries; env overrides arrive as comma-separated strings.
func (c *Config) normalize() {
	c.Scan.Symbols = trimAll(c.Scan.Symbols)
	c.Scan.FallbackPairs = trimAll(c.Scan.FallbackPairs)
	c.Scan.Selector = strings.ToLower(strings.TrimSpace(c.Scan.Selector))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	// Strategy
	v.SetDefault("strategy.z_score_threshold", 2.0)
	v.SetDefault("strategy.correlation_threshold", 0.7)
	v.SetDefault("strategy.half_life_filter", true)
	v.SetDefault("strategy.half_life_min", 1.0)
	v.SetDefault("strategy.half_life_max", 100.0)
	v.SetDefault("strategy.dynamic_threshold", true)
	v.SetDefault("strategy.min_points", 50)
	v.SetDefault("strategy.periods_per_year", 8760.0)

	// Exits
	v.SetDefault("exits.stop_loss_pct", -3.0)
	v.SetDefault("exits.take_profit_pct", 5.0)
	v.SetDefault("exits.mean_reversion_z", 0.5)
	v.SetDefault("exits.max_holding", "72h")

	// Risk
	v.SetDefault("risk.max_concurrent_positions", 3)
	v.SetDefault("risk.max_correlated_positions", 1)
	v.SetDefault("risk.max_portfolio_risk", 0.0)
	v.SetDefault("risk.cash_reserve", 0.2)
	v.SetDefault("risk.base_size", 0.1)
	v.SetDefault("risk.kelly_enabled", false)
	v.SetDefault("risk.kelly_fraction", 0.25)
	v.SetDefault("risk.min_trades", 20)
	v.SetDefault("risk.target_volatility", 0.0)

	// Scan
	v.SetDefault("scan.budget", 30)
	v.SetDefault("scan.batch_size", 5)
	v.SetDefault("scan.inter_scan_delay", "2s")
	v.SetDefault("scan.lookback", 200)
	v.SetDefault("scan.fallback_pairs", []string{"BTCUSDT/ETHUSDT", "SOLUSDT/AVAXUSDT"})
	v.SetDefault("scan.cycle_interval", "60m")
	v.SetDefault("scan.exit_interval", "5m")
	v.SetDefault("scan.run_on_start", true)
	v.SetDefault("scan.leverage", 1.0)
	v.SetDefault("scan.selector", "random")
	v.SetDefault("scan.symbols", []string{
		"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT",
		"AVAXUSDT", "DOTUSDT", "LINKUSDT", "LTCUSDT", "ATOMUSDT", "NEARUSDT",
	})
	v.SetDefault("scan.seed", 0)

	// Market data
	v.SetDefault("market_data.base_url", "https://api.binance.com")
	v.SetDefault("market_data.interval", "1h")
	v.SetDefault("market_data.requests_per_second", 10.0)
	v.SetDefault("market_data.burst", 5)
	v.SetDefault("market_data.max_retries", 3)
	v.SetDefault("market_data.retry_delay", "500ms")
	v.SetDefault("market_data.timeout", "10s")
	v.SetDefault("market_data.stream_enabled", false)
	v.SetDefault("market_data.stream_url", "wss://stream.binance.com:9443/ws/!miniTicker@arr")
	v.SetDefault("market_data.max_price_age", "30s")
	v.SetDefault("market_data.cache_ttl", "5m")

	// Storage
	v.SetDefault("storage.use_memory", true)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.redis_url", "")

	// Server
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// envFileDefault is the .env path used by the CLI when none is given.
const envFileDefault = ".env"

// DefaultEnvFile returns the .env path, overridable by PAIRAGENT_ENV_FILE.
func DefaultEnvFile() string {
	if p := os.Getenv(EnvPrefix + "_ENV_FILE"); p != "" {
		return p
	}
	return envFileDefault
}
