package api

import (
	"math"
	"time"

	"pair-agent/internal/domain"
	"pair-agent/internal/orchestrator"
)

// StatusResponse is the JSON body of /status.
type StatusResponse struct {
	Status        string     `json:"status"`
	Uptime        string     `json:"uptime"`
	Running       bool       `json:"running"`
	CurrentKind   string     `json:"current_kind,omitempty"`
	Cycles        int        `json:"cycles"`
	ExitPasses    int        `json:"exit_passes"`
	LastCycleAt   *time.Time `json:"last_cycle_at,omitempty"`
	LastExitAt    *time.Time `json:"last_exit_at,omitempty"`
	LastCycleErr  string     `json:"last_cycle_error,omitempty"`
	OpenPositions int        `json:"open_positions"`

	LastCycle *CycleView `json:"last_cycle,omitempty"`
	LastExit  *ExitView  `json:"last_exit,omitempty"`
}

// ExitView is the JSON form of an exit pass report.
type ExitView struct {
	Checked int `json:"checked"`
	Closed  int `json:"closed"`
	Failed  int `json:"failed"`
}

func exitView(r orchestrator.ExitReport) ExitView {
	return ExitView{Checked: r.Checked, Closed: r.Closed, Failed: r.Failed}
}

// CycleView is the JSON form of a cycle report.
type CycleView struct {
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Exits        ExitView       `json:"exits"`
	Scanned      int            `json:"scanned"`
	Rejected     map[string]int `json:"rejected,omitempty"`
	Failures     int            `json:"failures"`
	CapReached   bool           `json:"cap_reached"`
	UsedFallback bool           `json:"used_fallback"`
	OpenedID     string         `json:"opened_id,omitempty"`
}

func newCycleView(r *orchestrator.CycleReport) *CycleView {
	if r == nil {
		return nil
	}
	v := &CycleView{
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Exits:        exitView(r.Exits),
		Scanned:      r.Scanned,
		Rejected:     r.Rejected,
		Failures:     r.Failures,
		CapReached:   r.CapReached,
		UsedFallback: r.UsedFallback,
	}
	if r.Opened != nil {
		v.OpenedID = r.Opened.ID
	}
	return v
}

// PositionView is the JSON form of a position.
type PositionView struct {
	ID              string    `json:"id"`
	Pair            string    `json:"pair"`
	Direction       string    `json:"direction"`
	LongAsset       string    `json:"long_asset"`
	ShortAsset      string    `json:"short_asset"`
	EntryLongPrice  float64   `json:"entry_long_price"`
	EntryShortPrice float64   `json:"entry_short_price"`
	EntryTime       time.Time `json:"entry_time"`
	EntryZScore     float64   `json:"entry_z_score"`
	HedgeRatio      float64   `json:"hedge_ratio"`
	HalfLife        *float64  `json:"half_life"` // null when infinite
	SizeFraction    float64   `json:"size_fraction"`

	Status        string    `json:"status"`
	CurrentPnLPct float64   `json:"current_pnl_pct"`
	LastZScore    *float64  `json:"last_z_score"`
	UpdatedAt     time.Time `json:"updated_at"`

	CloseTime    *time.Time `json:"close_time,omitempty"`
	CloseReason  string     `json:"close_reason,omitempty"`
	CloseTrigger *float64   `json:"close_trigger,omitempty"`
	ClosePnLPct  *float64   `json:"close_pnl_pct,omitempty"`
}

// NewPositionView converts a position for JSON output.
func NewPositionView(p *domain.Position) PositionView {
	v := PositionView{
		ID:              p.ID,
		Pair:            p.Pair.Key(),
		Direction:       string(p.Direction),
		LongAsset:       p.LongAsset,
		ShortAsset:      p.ShortAsset,
		EntryLongPrice:  p.EntryLongPrice,
		EntryShortPrice: p.EntryShortPrice,
		EntryTime:       p.EntryTime,
		EntryZScore:     p.EntryZScore,
		HedgeRatio:      p.HedgeRatio,
		HalfLife:        finite(p.HalfLife),
		SizeFraction:    p.SizeFraction,
		Status:          string(p.Status),
		CurrentPnLPct:   p.CurrentPnLPct,
		LastZScore:      p.LastZScore,
		UpdatedAt:       p.UpdatedAt,
	}
	if !p.IsOpen() {
		v.CloseTime = p.CloseTime
		v.CloseReason = string(p.CloseReason)
		v.CloseTrigger = finite(p.CloseTrigger)
		v.ClosePnLPct = finite(p.ClosePnLPct)
	}
	return v
}

// PerformanceView is the JSON form of a performance snapshot.
type PerformanceView struct {
	ComputedAt           time.Time `json:"computed_at"`
	TotalTrades          int       `json:"total_trades"`
	OpenPositions        int       `json:"open_positions"`
	Wins                 int       `json:"wins"`
	Losses               int       `json:"losses"`
	WinRate              float64   `json:"win_rate"`
	AvgWinPct            float64   `json:"avg_win_pct"`
	AvgLossPct           float64   `json:"avg_loss_pct"`
	ProfitFactor         *float64  `json:"profit_factor"`
	TotalPnLPct          float64   `json:"total_pnl_pct"`
	AvgPnLPct            float64   `json:"avg_pnl_pct"`
	PnLStddev            float64   `json:"pnl_stddev"`
	MaxDrawdownPct       float64   `json:"max_drawdown_pct"`
	MaxConsecutiveLosses int       `json:"max_consecutive_losses"`
	AvgDurationHours     float64   `json:"avg_duration_hours"`
	AnnualizedReturnPct  *float64  `json:"annualized_return_pct"`
	Leverage             float64   `json:"leverage"`
}

// NewPerformanceView converts a snapshot for JSON output.
func NewPerformanceView(s *domain.PerformanceSnapshot) PerformanceView {
	v := PerformanceView{
		ComputedAt:           s.ComputedAt,
		TotalTrades:          s.TotalTrades,
		OpenPositions:        s.OpenPositions,
		Wins:                 s.Wins,
		Losses:               s.Losses,
		WinRate:              s.WinRate,
		AvgWinPct:            s.AvgWinPct,
		AvgLossPct:           s.AvgLossPct,
		TotalPnLPct:          s.TotalPnLPct,
		AvgPnLPct:            s.AvgPnLPct,
		PnLStddev:            s.PnLStddev,
		MaxDrawdownPct:       s.MaxDrawdownPct,
		MaxConsecutiveLosses: s.MaxConsecutiveLosses,
		AvgDurationHours:     s.AvgDurationHours,
		AnnualizedReturnPct:  finite(s.AnnualizedReturnPct),
		Leverage:             s.Leverage,
	}
	if s.ProfitFactor != nil {
		v.ProfitFactor = finite(*s.ProfitFactor)
	}
	return v
}

// finite returns nil for values JSON cannot encode.
func finite(f float64) *float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}
