package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

func TestPositionStore_Integration(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)

	p := testPosition("int-1")
	require.NoError(t, store.Create(ctx, p))
	assert.ErrorIs(t, store.Create(ctx, p), storage.ErrDuplicateKey)

	p.CurrentPnLPct = -1.25
	p.LastZScore = ptr(1.4)
	p.UpdatedAt = p.EntryTime.Add(time.Hour)
	require.NoError(t, store.Update(ctx, p))

	open, err := store.GetOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, -1.25, open[0].CurrentPnLPct, 1e-9)
	assert.InDelta(t, 3200.5, open[0].EntryLongPrice, 1e-9)

	closeTime := p.EntryTime.Add(2 * time.Hour)
	p.Status = domain.PositionClosed
	p.CloseTime = &closeTime
	p.CloseReason = domain.CloseReasonStopLoss
	p.CloseTrigger = -3
	p.ClosePnLPct = -3
	require.NoError(t, store.Close(ctx, p))

	open, err = store.GetOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	got, err := store.GetByID(ctx, "int-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, got.Status)
	assert.Equal(t, domain.CloseReasonStopLoss, got.CloseReason)
	require.NotNil(t, got.CloseTime)
	assert.True(t, closeTime.Equal(*got.CloseTime))

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPerformanceStore_Integration(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPerformanceStore(pool)

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	older := &domain.PerformanceSnapshot{ID: "a", ComputedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), TotalTrades: 3, Leverage: 1}
	newer := &domain.PerformanceSnapshot{ID: "b", ComputedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), TotalTrades: 5, ProfitFactor: ptr(1.8), Leverage: 1}
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)
	assert.Equal(t, 5, latest.TotalTrades)
	require.NotNil(t, latest.ProfitFactor)
	assert.Equal(t, 1.8, *latest.ProfitFactor)
}
