package domain

// RiskLimits is static admission configuration for new positions.
type RiskLimits struct {
	MaxConcurrentPositions int     // open positions cap
	MaxCorrelatedPositions int     // open positions sharing a leg with the candidate
	MaxPortfolioRisk       float64 // cap on summed SizeFraction of open positions, 0 disables
	CashReserve            float64 // fraction of capital never allocated, [0, 1)
}
