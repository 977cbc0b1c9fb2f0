package clickhouse

import (
	"context"
	"fmt"
	"time"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

// AnalysisStore implements storage.AnalysisStore using ClickHouse.
type AnalysisStore struct {
	conn *Conn
}

// NewAnalysisStore creates a new AnalysisStore.
func NewAnalysisStore(conn *Conn) *AnalysisStore {
	return &AnalysisStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AnalysisStore = (*AnalysisStore)(nil)

const analysisColumns = `
	snapshot_id, pair_key, symbol_a, symbol_b, computed_at, recorded_at, sample_size,
	correlation, hedge_ratio, spread, spread_mean, spread_std, z_score, signal,
	half_life, cointegration_p_value, is_cointegrated, sharpe, volatility,
	tradeable, reason
`

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate snapshot_id.
func (s *AnalysisStore) InsertBulk(ctx context.Context, snapshots []*domain.AnalysisSnapshot) (err error) {
	if len(snapshots) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_analysis_snapshots", start, err) }(time.Now())

	seen := make(map[string]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.SnapshotID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[snap.SnapshotID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[snap.SnapshotID] = struct{}{}
	}

	for _, snap := range snapshots {
		exists, err := s.exists(ctx, snap.SnapshotID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO analysis_snapshots (`+analysisColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			snap.SnapshotID, snap.Pair.Key(), snap.Pair.SymbolA, snap.Pair.SymbolB,
			snap.ComputedAt, snap.RecordedAt, uint32(snap.SampleSize),
			snap.Correlation, snap.HedgeRatio, snap.Spread, snap.SpreadMean, snap.SpreadStd, snap.ZScore, string(snap.Signal),
			snap.HalfLife, snap.CointegrationPValue, boolToUInt8(snap.IsCointegrated), snap.Sharpe, snap.Volatility,
			boolToUInt8(snap.Tradeable), snap.Reason,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPair retrieves snapshots for a pair within [start, end] (inclusive), ordered by computed_at ASC.
func (s *AnalysisStore) GetByPair(ctx context.Context, pairKey string, start, end int64) ([]*domain.AnalysisSnapshot, error) {
	query := `SELECT ` + analysisColumns + `
		FROM analysis_snapshots FINAL
		WHERE pair_key = ? AND computed_at >= ? AND computed_at <= ?
		ORDER BY computed_at ASC, snapshot_id ASC
	`

	rows, err := s.conn.Query(ctx, query, pairKey, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by pair: %w", err)
	}
	defer rows.Close()

	return scanAnalysisSnapshots(rows)
}

// exists checks if a snapshot with the given id exists.
func (s *AnalysisStore) exists(ctx context.Context, snapshotID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM analysis_snapshots WHERE snapshot_id = ?`, snapshotID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanAnalysisSnapshots(rows chRows) ([]*domain.AnalysisSnapshot, error) {
	var snapshots []*domain.AnalysisSnapshot

	for rows.Next() {
		var (
			snap                    domain.AnalysisSnapshot
			pairKey, signal         string
			sampleSize              uint32
			cointegrated, tradeable uint8
		)
		err := rows.Scan(
			&snap.SnapshotID, &pairKey, &snap.Pair.SymbolA, &snap.Pair.SymbolB,
			&snap.ComputedAt, &snap.RecordedAt, &sampleSize,
			&snap.Correlation, &snap.HedgeRatio, &snap.Spread, &snap.SpreadMean, &snap.SpreadStd, &snap.ZScore, &signal,
			&snap.HalfLife, &snap.CointegrationPValue, &cointegrated, &snap.Sharpe, &snap.Volatility,
			&tradeable, &snap.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan analysis snapshot row: %w", err)
		}

		snap.SampleSize = int(sampleSize)
		snap.Signal = domain.Signal(signal)
		snap.IsCointegrated = cointegrated == 1
		snap.Tradeable = tradeable == 1
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis snapshot rows: %w", err)
	}

	return snapshots, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
