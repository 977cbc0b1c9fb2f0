package reporting

import (
	"time"

	"pair-agent/internal/domain"
)

// Report is the performance report for one position history.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Leverage    float64

	// Summary is computed from the positions at generation time.
	Summary *domain.PerformanceSnapshot

	// LastRecorded is the most recent stored snapshot, nil if none.
	LastRecorded *domain.PerformanceSnapshot

	// Outcome distribution of closed positions (percent)
	PnLP10    float64
	PnLMedian float64
	PnLP90    float64

	// Data Quality
	IntegrityErrors []string

	// Breakdowns (sorted by key)
	ByCloseReason []CloseReasonRow
	ByPair        []PairRow

	// Positions
	Open   []OpenPositionRow   // sorted by entry_time, id
	Trades []ClosedPositionRow // sorted by close_time, id
}

// CloseReasonRow aggregates closed positions by exit rule.
type CloseReasonRow struct {
	Reason      string
	Trades      int
	Wins        int
	TotalPnLPct float64
	AvgPnLPct   float64
}

// PairRow aggregates closed positions by pair.
type PairRow struct {
	Pair             string
	Trades           int
	Wins             int
	WinRate          float64
	TotalPnLPct      float64
	AvgDurationHours float64
}

// OpenPositionRow describes one open position.
type OpenPositionRow struct {
	ID            string
	Pair          string
	Direction     string
	EntryTime     time.Time
	EntryZScore   float64
	CurrentPnLPct float64
	LastZScore    *float64
	HeldHours     float64
}

// ClosedPositionRow describes one closed position.
type ClosedPositionRow struct {
	ID            string
	Pair          string
	Direction     string
	LongAsset     string
	ShortAsset    string
	EntryTime     time.Time
	CloseTime     time.Time
	DurationHours float64
	EntryZScore   float64
	CloseReason   string
	CloseTrigger  float64
	PnLPct        float64
}
