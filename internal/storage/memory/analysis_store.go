package memory

import (
	"context"
	"sort"
	"sync"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

// AnalysisStore is an in-memory implementation of storage.AnalysisStore.
type AnalysisStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AnalysisSnapshot // keyed by snapshot_id
}

// NewAnalysisStore creates a new in-memory analysis store.
func NewAnalysisStore() *AnalysisStore {
	return &AnalysisStore{
		data: make(map[string]*domain.AnalysisSnapshot),
	}
}

// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
func (s *AnalysisStore) InsertBulk(_ context.Context, snapshots []*domain.AnalysisSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.SnapshotID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[snap.SnapshotID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[snap.SnapshotID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[snap.SnapshotID] = struct{}{}
	}

	for _, snap := range snapshots {
		copy := *snap
		s.data[snap.SnapshotID] = &copy
	}
	return nil
}

// GetByPair retrieves snapshots for a pair within [start, end] ordered by computed_at ASC.
func (s *AnalysisStore) GetByPair(_ context.Context, pairKey string, start, end int64) ([]*domain.AnalysisSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AnalysisSnapshot
	for _, snap := range s.data {
		if snap.Pair.Key() == pairKey && snap.ComputedAt >= start && snap.ComputedAt <= end {
			copy := *snap
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ComputedAt < result[j].ComputedAt
	})
	return result, nil
}

var _ storage.AnalysisStore = (*AnalysisStore)(nil)
