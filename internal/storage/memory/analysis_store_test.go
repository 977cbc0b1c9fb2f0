package memory

import (
	"context"
	"errors"
	"testing"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

func snapshot(id string, pair domain.Pair, computedAt int64) *domain.AnalysisSnapshot {
	return &domain.AnalysisSnapshot{
		SnapshotID: id,
		AnalysisResult: domain.AnalysisResult{
			Pair:       pair,
			ComputedAt: computedAt,
			ZScore:     1.2,
		},
	}
}

func TestAnalysisStore_InsertBulkAndGetByPair(t *testing.T) {
	store := NewAnalysisStore()
	ctx := context.Background()
	ab := domain.NewPair("A", "B")
	cd := domain.NewPair("C", "D")

	err := store.InsertBulk(ctx, []*domain.AnalysisSnapshot{
		snapshot("s3", ab, 3000),
		snapshot("s1", ab, 1000),
		snapshot("s2", cd, 2000),
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByPair(ctx, "A/B", 0, 5000)
	if err != nil {
		t.Fatalf("GetByPair failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(got))
	}
	if got[0].SnapshotID != "s1" || got[1].SnapshotID != "s3" {
		t.Errorf("unexpected order: %s, %s", got[0].SnapshotID, got[1].SnapshotID)
	}

	got, _ = store.GetByPair(ctx, "A/B", 2000, 3000)
	if len(got) != 1 {
		t.Errorf("expected 1 snapshot in range, got %d", len(got))
	}
}

func TestAnalysisStore_BatchDuplicateRejected(t *testing.T) {
	store := NewAnalysisStore()
	ctx := context.Background()
	ab := domain.NewPair("A", "B")

	err := store.InsertBulk(ctx, []*domain.AnalysisSnapshot{snapshot("s1", ab, 1), snapshot("s1", ab, 2)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByPair(ctx, "A/B", 0, 10)
	if len(got) != 0 {
		t.Errorf("expected failed batch to insert nothing, got %d", len(got))
	}
}
