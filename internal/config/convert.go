package config

import (
	"pair-agent/internal/analysis"
	"pair-agent/internal/domain"
	"pair-agent/internal/ledger"
	"pair-agent/internal/orchestrator"
	"pair-agent/internal/qualifier"
	"pair-agent/internal/risk"
)

// Selector kinds.
const (
	SelectorRandom   = "random"
	SelectorCategory = "category"
)

// AnalyzerConfig maps the strategy section onto analysis.Config.
func (c *Config) AnalyzerConfig() analysis.Config {
	cfg := analysis.DefaultConfig()
	cfg.PeriodsPerYear = c.Strategy.PeriodsPerYear
	cfg.MinPoints = c.Strategy.MinPoints
	cfg.EntryZ = c.Strategy.ZScoreThreshold
	return cfg
}

// QualifierConfig maps the strategy section onto qualifier.Config.
func (c *Config) QualifierConfig() qualifier.Config {
	s := c.Strategy
	return qualifier.Config{
		ZScoreThreshold:      s.ZScoreThreshold,
		CorrelationThreshold: s.CorrelationThreshold,
		HalfLifeFilter:       s.HalfLifeFilter,
		HalfLifeMin:          s.HalfLifeMin,
		HalfLifeMax:          s.HalfLifeMax,
		ADFOverridePValue:    s.ADFOverridePValue,
		DynamicThreshold:     s.DynamicThreshold,
		MinSharpe:            s.MinSharpe,
		MaxVolatility:        s.MaxVolatility,
	}
}

// RiskConfig maps the risk section onto risk.Config.
func (c *Config) RiskConfig() risk.Config {
	r := c.Risk
	return risk.Config{
		Limits: domain.RiskLimits{
			MaxConcurrentPositions: r.MaxConcurrentPositions,
			MaxCorrelatedPositions: r.MaxCorrelatedPositions,
			MaxPortfolioRisk:       r.MaxPortfolioRisk,
			CashReserve:            r.CashReserve,
		},
		BaseSize:         r.BaseSize,
		KellyEnabled:     r.KellyEnabled,
		KellyFraction:    r.KellyFraction,
		MinTrades:        r.MinTrades,
		TargetVolatility: r.TargetVolatility,
	}
}

// ExitConfig maps the exits section onto ledger.ExitConfig.
func (c *Config) ExitConfig() ledger.ExitConfig {
	return ledger.ExitConfig{
		StopLossPct:    c.Exits.StopLossPct,
		TakeProfitPct:  c.Exits.TakeProfitPct,
		MaxHolding:     c.Exits.MaxHolding,
		MeanReversionZ: c.Exits.MeanReversionZ,
	}
}

// OrchestratorConfig maps the scan section onto orchestrator.Config.
// Fallback pairs were checked by Validate; invalid entries are dropped here.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	var fallback []domain.Pair
	for _, s := range c.Scan.FallbackPairs {
		if p, ok := domain.ParsePair(s); ok {
			fallback = append(fallback, p)
		}
	}
	return orchestrator.Config{
		ScanBudget:     c.Scan.Budget,
		BatchSize:      c.Scan.BatchSize,
		InterScanDelay: c.Scan.InterScanDelay,
		Lookback:       c.Scan.Lookback,
		FallbackPairs:  fallback,
	}
}

// SchedulerConfig maps the scan intervals onto orchestrator.SchedulerConfig.
func (c *Config) SchedulerConfig() orchestrator.SchedulerConfig {
	return orchestrator.SchedulerConfig{
		ExitInterval:  c.Scan.ExitInterval,
		CycleInterval: c.Scan.CycleInterval,
		RunOnStart:    c.Scan.RunOnStart,
	}
}
