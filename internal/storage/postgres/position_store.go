package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
// Entry prices are stored as NUMERIC.
type PositionStore struct {
	db DB
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(db DB) *PositionStore {
	return &PositionStore{db: db}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, symbol_a, symbol_b, direction, long_asset, short_asset,
	entry_long_price, entry_short_price, entry_time, entry_z_score,
	hedge_ratio, half_life, size_fraction,
	status, current_pnl_pct, last_z_score, updated_at,
	close_time, close_reason, close_trigger, close_pnl_pct
`

// Create adds a new position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Create(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_position", start, err) }(time.Now())

	query := `
		INSERT INTO positions (` + positionColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21
		)
	`

	_, err = s.db.Exec(ctx, query,
		p.ID, p.Pair.SymbolA, p.Pair.SymbolB, string(p.Direction), p.LongAsset, p.ShortAsset,
		decimal.NewFromFloat(p.EntryLongPrice), decimal.NewFromFloat(p.EntryShortPrice), p.EntryTime, p.EntryZScore,
		p.HedgeRatio, p.HalfLife, p.SizeFraction,
		string(p.Status), p.CurrentPnLPct, p.LastZScore, p.UpdatedAt,
		p.CloseTime, string(p.CloseReason), p.CloseTrigger, p.ClosePnLPct,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update overwrites mark-to-market state. Returns ErrNotFound if id does not exist.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("update_position", start, err) }(time.Now())

	query := `
		UPDATE positions
		SET current_pnl_pct = $2, last_z_score = $3, updated_at = $4
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, p.ID, p.CurrentPnLPct, p.LastZScore, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close records the close fields. Returns ErrNotFound if id does not exist.
// A position already closed in the store keeps its first close.
func (s *PositionStore) Close(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.ID == "" || p.Status != domain.PositionClosed {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("close_position", start, err) }(time.Now())

	query := `
		UPDATE positions
		SET status = $2, current_pnl_pct = $3, last_z_score = $4, updated_at = $5,
			close_time = $6, close_reason = $7, close_trigger = $8, close_pnl_pct = $9
		WHERE id = $1 AND status = 'open'
	`

	tag, err := s.db.Exec(ctx, query,
		p.ID, string(p.Status), p.CurrentPnLPct, p.LastZScore, p.UpdatedAt,
		p.CloseTime, string(p.CloseReason), p.CloseTrigger, p.ClosePnLPct,
	)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetByID(ctx, p.ID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// GetByID retrieves a position by id. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetOpen retrieves open positions ordered by entry_time ASC.
func (s *PositionStore) GetOpen(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status = 'open'
		ORDER BY entry_time ASC, id ASC
	`
	return s.queryPositions(ctx, "get open positions", query)
}

// GetAll retrieves all positions ordered by entry_time ASC.
func (s *PositionStore) GetAll(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		ORDER BY entry_time ASC, id ASC
	`
	return s.queryPositions(ctx, "get all positions", query)
}

func (s *PositionStore) queryPositions(ctx context.Context, op, query string) ([]*domain.Position, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return positions, nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p                     domain.Position
		direction, status     string
		closeReason           string
		entryLong, entryShort decimal.Decimal
	)

	err := row.Scan(
		&p.ID, &p.Pair.SymbolA, &p.Pair.SymbolB, &direction, &p.LongAsset, &p.ShortAsset,
		&entryLong, &entryShort, &p.EntryTime, &p.EntryZScore,
		&p.HedgeRatio, &p.HalfLife, &p.SizeFraction,
		&status, &p.CurrentPnLPct, &p.LastZScore, &p.UpdatedAt,
		&p.CloseTime, &closeReason, &p.CloseTrigger, &p.ClosePnLPct,
	)
	if err != nil {
		return nil, err
	}

	p.Direction = domain.Signal(direction)
	p.Status = domain.PositionStatus(status)
	p.CloseReason = domain.CloseReason(closeReason)
	p.EntryLongPrice = entryLong.InexactFloat64()
	p.EntryShortPrice = entryShort.InexactFloat64()
	return &p, nil
}
