package postgres

import (
	"context"
	"fmt"
	"time"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

// PerformanceStore implements storage.PerformanceStore using PostgreSQL.
type PerformanceStore struct {
	db DB
}

// NewPerformanceStore creates a new PerformanceStore.
func NewPerformanceStore(db DB) *PerformanceStore {
	return &PerformanceStore{db: db}
}

// Compile-time interface check.
var _ storage.PerformanceStore = (*PerformanceStore)(nil)

// Save appends a snapshot. Returns ErrDuplicateKey if id exists.
func (s *PerformanceStore) Save(ctx context.Context, snap *domain.PerformanceSnapshot) (err error) {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_performance", start, err) }(time.Now())

	query := `
		INSERT INTO performance_snapshots (
			id, computed_at,
			total_trades, open_positions, wins, losses, win_rate,
			avg_win_pct, avg_loss_pct, profit_factor, total_pnl_pct, avg_pnl_pct, pnl_stddev,
			max_drawdown_pct, max_consecutive_losses,
			avg_duration_hours, annualized_return_pct, leverage
		) VALUES (
			$1, $2,
			$3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15,
			$16, $17, $18
		)
	`

	_, err = s.db.Exec(ctx, query,
		snap.ID, snap.ComputedAt,
		snap.TotalTrades, snap.OpenPositions, snap.Wins, snap.Losses, snap.WinRate,
		snap.AvgWinPct, snap.AvgLossPct, snap.ProfitFactor, snap.TotalPnLPct, snap.AvgPnLPct, snap.PnLStddev,
		snap.MaxDrawdownPct, snap.MaxConsecutiveLosses,
		snap.AvgDurationHours, snap.AnnualizedReturnPct, snap.Leverage,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert performance snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot. Returns ErrNotFound if empty.
func (s *PerformanceStore) Latest(ctx context.Context) (*domain.PerformanceSnapshot, error) {
	query := `
		SELECT
			id, computed_at,
			total_trades, open_positions, wins, losses, win_rate,
			avg_win_pct, avg_loss_pct, profit_factor, total_pnl_pct, avg_pnl_pct, pnl_stddev,
			max_drawdown_pct, max_consecutive_losses,
			avg_duration_hours, annualized_return_pct, leverage
		FROM performance_snapshots
		ORDER BY computed_at DESC, id DESC
		LIMIT 1
	`

	var snap domain.PerformanceSnapshot
	err := s.db.QueryRow(ctx, query).Scan(
		&snap.ID, &snap.ComputedAt,
		&snap.TotalTrades, &snap.OpenPositions, &snap.Wins, &snap.Losses, &snap.WinRate,
		&snap.AvgWinPct, &snap.AvgLossPct, &snap.ProfitFactor, &snap.TotalPnLPct, &snap.AvgPnLPct, &snap.PnLStddev,
		&snap.MaxDrawdownPct, &snap.MaxConsecutiveLosses,
		&snap.AvgDurationHours, &snap.AnnualizedReturnPct, &snap.Leverage,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest performance snapshot: %w", err)
	}
	return &snap, nil
}
