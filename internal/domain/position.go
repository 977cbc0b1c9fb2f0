package domain

import "time"

// PositionStatus is the lifecycle state of a position. Transitions are open -> closed only.
type PositionStatus string

// Position status values.
const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason identifies which exit rule closed a position.
type CloseReason string

// Close reason codes.
const (
	CloseReasonStopLoss      CloseReason = "stop-loss"
	CloseReasonTakeProfit    CloseReason = "take-profit"
	CloseReasonMaxHolding    CloseReason = "max holding period"
	CloseReasonMeanReversion CloseReason = "mean reversion"
)

// Position is a synthetic long/short spread position.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	ID        string // uuid
	Pair      Pair
	Direction Signal // long or short spread

	// Legs
	LongAsset       string
	ShortAsset      string
	EntryLongPrice  float64
	EntryShortPrice float64

	// Entry context
	EntryTime    time.Time
	EntryZScore  float64
	HedgeRatio   float64
	HalfLife     float64
	SizeFraction float64 // advisory sizing, no capital is moved

	// Live state
	Status        PositionStatus
	CurrentPnLPct float64
	LastZScore    *float64 // nil until a fresh analysis is seen
	UpdatedAt     time.Time

	// Close (frozen once Status == closed)
	CloseTime    *time.Time
	CloseReason  CloseReason
	CloseTrigger float64 // value that triggered the exit rule
	ClosePnLPct  float64
}

// IsOpen reports whether the position is still open.
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	if p.LastZScore != nil {
		z := *p.LastZScore
		c.LastZScore = &z
	}
	if p.CloseTime != nil {
		t := *p.CloseTime
		c.CloseTime = &t
	}
	return &c
}

// HoldDuration returns time held until close, or until now for open positions.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	end := now
	if p.CloseTime != nil {
		end = *p.CloseTime
	}
	return end.Sub(p.EntryTime)
}

// LegsFor returns (long, short) assets for a spread direction on the pair.
// Long spread buys A and sells B; short spread sells A and buys B.
func LegsFor(pair Pair, direction Signal) (longAsset, shortAsset string, ok bool) {
	switch direction {
	case SignalLong:
		return pair.SymbolA, pair.SymbolB, true
	case SignalShort:
		return pair.SymbolB, pair.SymbolA, true
	default:
		return "", "", false
	}
}
