package memory

import (
	"context"
	"sort"
	"sync"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Create adds a new position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Create(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[p.ID] = p.Clone()
	return nil
}

// Update overwrites an existing position. Returns ErrNotFound if id does not exist.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	return s.replace(p)
}

// Close records a closed position. Returns ErrNotFound if id does not exist.
func (s *PositionStore) Close(_ context.Context, p *domain.Position) error {
	if p != nil && p.Status != domain.PositionClosed {
		return storage.ErrInvalidInput
	}
	return s.replace(p)
}

func (s *PositionStore) replace(p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; !exists {
		return storage.ErrNotFound
	}
	s.data[p.ID] = p.Clone()
	return nil
}

// GetByID retrieves a position by id. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// GetOpen retrieves open positions ordered by entry_time ASC.
func (s *PositionStore) GetOpen(_ context.Context) ([]*domain.Position, error) {
	return s.collect(func(p *domain.Position) bool { return p.IsOpen() }), nil
}

// GetAll retrieves all positions ordered by entry_time ASC.
func (s *PositionStore) GetAll(_ context.Context) ([]*domain.Position, error) {
	return s.collect(func(*domain.Position) bool { return true }), nil
}

func (s *PositionStore) collect(keep func(*domain.Position) bool) []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if keep(p) {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EntryTime.Equal(result[j].EntryTime) {
			return result[i].EntryTime.Before(result[j].EntryTime)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var _ storage.PositionStore = (*PositionStore)(nil)
