package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps persistent CLI flags onto config keys.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-format":     "log.format",
	"use-memory":     "storage.use_memory",
	"postgres-dsn":   "storage.postgres_dsn",
	"clickhouse-dsn": "storage.clickhouse_dsn",
	"redis-url":      "storage.redis_url",
}

// RegisterFlags adds the config-backed flags to fs. Defaults are left to viper.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: ./configs/config.yaml or ./config.yaml)")
	fs.String("env-file", DefaultEnvFile(), "dotenv file loaded before the environment is read")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, text)")
	fs.Bool("use-memory", false, "keep positions in memory instead of PostgreSQL")
	fs.String("postgres-dsn", "", "PostgreSQL DSN")
	fs.String("clickhouse-dsn", "", "ClickHouse DSN for analysis snapshots")
	fs.String("redis-url", "", "Redis URL for the series cache")
}

// BindFlags binds flags registered by RegisterFlags. A flag only overrides the
// file and environment when it was set on the command line.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// LoadFromFlags builds a viper instance bound to fs and loads the config.
func LoadFromFlags(fs *pflag.FlagSet) (*Config, error) {
	v := New()
	if err := BindFlags(v, fs); err != nil {
		return nil, err
	}
	configFile, _ := fs.GetString("config")
	envFile, _ := fs.GetString("env-file")
	return Load(v, configFile, envFile)
}
