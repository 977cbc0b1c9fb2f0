package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

// ErrNoTrades is returned when no closed positions are available.
var ErrNoTrades = errors.New("no closed positions available for aggregation")

// PositionSource provides the current position set.
type PositionSource interface {
	All() []*domain.Position
}

// Aggregator computes performance snapshots and persists them.
type Aggregator struct {
	source   PositionSource
	store    storage.PerformanceStore
	leverage float64
	now      func() time.Time
}

// NewAggregator creates a new performance aggregator.
// store may be nil, in which case snapshots are computed but not persisted.
func NewAggregator(source PositionSource, store storage.PerformanceStore, leverage float64) *Aggregator {
	return &Aggregator{
		source:   source,
		store:    store,
		leverage: leverage,
		now:      time.Now,
	}
}

// SetClock overrides the clock used for ComputedAt.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// Compute returns a snapshot of the current position set without persisting it.
func (a *Aggregator) Compute() *domain.PerformanceSnapshot {
	return Compute(a.source.All(), Options{Leverage: a.leverage, Now: a.now()})
}

// ComputeAndStore computes a snapshot and saves it.
// The snapshot is returned even when the save fails.
func (a *Aggregator) ComputeAndStore(ctx context.Context) (*domain.PerformanceSnapshot, error) {
	snap := a.Compute()
	snap.ID = uuid.NewString()

	if a.store == nil {
		return snap, nil
	}
	if err := a.store.Save(ctx, snap); err != nil {
		return snap, fmt.Errorf("%w: save performance snapshot: %w", domain.ErrPersistence, err)
	}
	return snap, nil
}

// ClosedOnly filters positions to closed ones. Returns ErrNoTrades if none.
func ClosedOnly(positions []*domain.Position) ([]*domain.Position, error) {
	var closed []*domain.Position
	for _, p := range positions {
		if p != nil && !p.IsOpen() {
			closed = append(closed, p)
		}
	}
	if len(closed) == 0 {
		return nil, ErrNoTrades
	}
	return closed, nil
}
