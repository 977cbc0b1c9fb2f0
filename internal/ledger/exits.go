package ledger

import (
	"math"
	"time"

	"pair-agent/internal/domain"
)

// ExitConfig holds the four exit rules. A zero value disables a rule.
type ExitConfig struct {
	StopLossPct    float64       // negative percent, e.g. -3; closes when PnL <= StopLossPct
	TakeProfitPct  float64       // positive percent, e.g. 5; closes when PnL >= TakeProfitPct
	MaxHolding     time.Duration // closes when now - entry >= MaxHolding
	MeanReversionZ float64       // closes when |z| <= MeanReversionZ
}

// DefaultExitConfig returns the default exit rules.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		StopLossPct:    -3,
		TakeProfitPct:  5,
		MaxHolding:     72 * time.Hour,
		MeanReversionZ: 0.5,
	}
}

// exitDecision is the first exit rule that fired.
type exitDecision struct {
	reason  domain.CloseReason
	trigger float64
}

// evaluateExit checks rules in fixed order: stop-loss, take-profit,
// max holding period, mean reversion. zScore is nil when no fresh analysis exists.
func (c ExitConfig) evaluateExit(p *domain.Position, zScore *float64, now time.Time) (exitDecision, bool) {
	pnl := p.CurrentPnLPct

	if c.StopLossPct < 0 && pnl <= c.StopLossPct {
		return exitDecision{reason: domain.CloseReasonStopLoss, trigger: pnl}, true
	}
	if c.TakeProfitPct > 0 && pnl >= c.TakeProfitPct {
		return exitDecision{reason: domain.CloseReasonTakeProfit, trigger: pnl}, true
	}
	if c.MaxHolding > 0 {
		held := now.Sub(p.EntryTime)
		if held >= c.MaxHolding {
			return exitDecision{reason: domain.CloseReasonMaxHolding, trigger: held.Hours()}, true
		}
	}
	if c.MeanReversionZ > 0 && zScore != nil && !math.IsNaN(*zScore) {
		if math.Abs(*zScore) <= c.MeanReversionZ {
			return exitDecision{reason: domain.CloseReasonMeanReversion, trigger: *zScore}, true
		}
	}
	return exitDecision{}, false
}
