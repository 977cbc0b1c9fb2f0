package memory

import (
	"context"
	"sync"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

// PerformanceStore is an in-memory implementation of storage.PerformanceStore.
type PerformanceStore struct {
	mu        sync.RWMutex
	snapshots []*domain.PerformanceSnapshot
	ids       map[string]struct{}
}

// NewPerformanceStore creates a new in-memory performance store.
func NewPerformanceStore() *PerformanceStore {
	return &PerformanceStore{
		ids: make(map[string]struct{}),
	}
}

// Save appends a snapshot. Returns ErrDuplicateKey if id exists.
func (s *PerformanceStore) Save(_ context.Context, snap *domain.PerformanceSnapshot) error {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[snap.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.ids[snap.ID] = struct{}{}
	s.snapshots = append(s.snapshots, cloneSnapshot(snap))
	return nil
}

// Latest returns the most recent snapshot by computed_at. Returns ErrNotFound if empty.
func (s *PerformanceStore) Latest(_ context.Context) (*domain.PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.PerformanceSnapshot
	for _, snap := range s.snapshots {
		if latest == nil || !snap.ComputedAt.Before(latest.ComputedAt) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return cloneSnapshot(latest), nil
}

func cloneSnapshot(s *domain.PerformanceSnapshot) *domain.PerformanceSnapshot {
	c := *s
	if s.ProfitFactor != nil {
		pf := *s.ProfitFactor
		c.ProfitFactor = &pf
	}
	return &c
}

var _ storage.PerformanceStore = (*PerformanceStore)(nil)
