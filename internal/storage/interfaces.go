package storage

import (
	"context"

	"pair-agent/internal/domain"
)

// PositionStore provides access to positions storage.
// It is the persistence port behind the position ledger; the ledger keeps the
// authoritative in-memory copy and only writes through.
type PositionStore interface {
	// Create adds a new position. Returns ErrDuplicateKey if id exists.
	Create(ctx context.Context, p *domain.Position) error

	// Update overwrites mark-to-market state of an existing position.
	// Returns ErrNotFound if id does not exist.
	Update(ctx context.Context, p *domain.Position) error

	// Close records the close fields of a position. Returns ErrNotFound if id does not exist.
	Close(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Position, error)

	// GetOpen retrieves open positions ordered by entry_time ASC.
	GetOpen(ctx context.Context) ([]*domain.Position, error)

	// GetAll retrieves all positions ordered by entry_time ASC.
	GetAll(ctx context.Context) ([]*domain.Position, error)
}

// PerformanceStore provides access to performance_snapshots storage.
type PerformanceStore interface {
	// Save appends a snapshot. Returns ErrDuplicateKey if id exists.
	Save(ctx context.Context, s *domain.PerformanceSnapshot) error

	// Latest returns the most recent snapshot by computed_at. Returns ErrNotFound if empty.
	Latest(ctx context.Context) (*domain.PerformanceSnapshot, error)
}

// AnalysisStore provides access to analysis_snapshots storage.
type AnalysisStore interface {
	// InsertBulk appends snapshots. Snapshots with an existing id are rejected with ErrDuplicateKey.
	InsertBulk(ctx context.Context, snapshots []*domain.AnalysisSnapshot) error

	// GetByPair retrieves snapshots for a pair key within [start, end] computed_at (inclusive),
	// ordered by computed_at ASC.
	GetByPair(ctx context.Context, pairKey string, start, end int64) ([]*domain.AnalysisSnapshot, error)
}
