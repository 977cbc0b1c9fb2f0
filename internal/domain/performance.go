package domain

import "time"

// PerformanceSnapshot summarizes the closed-position history.
// Corresponds to performance_snapshots table in PostgreSQL.
type PerformanceSnapshot struct {
	ID         string
	ComputedAt time.Time

	// Counts
	TotalTrades   int // closed positions
	OpenPositions int
	Wins          int
	Losses        int
	WinRate       float64 // wins / total_trades

	// Outcome distribution (percent)
	AvgWinPct    float64
	AvgLossPct   float64
	ProfitFactor *float64 // gross win / |gross loss|, nil without losing trades
	TotalPnLPct  float64
	AvgPnLPct    float64
	PnLStddev    float64

	// Drawdown
	MaxDrawdownPct       float64
	MaxConsecutiveLosses int

	// Time
	AvgDurationHours    float64
	AnnualizedReturnPct float64
	Leverage            float64 // assumption used for AnnualizedReturnPct
}
