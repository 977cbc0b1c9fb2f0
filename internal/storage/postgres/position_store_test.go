package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pair-agent/internal/domain"
	"pair-agent/internal/storage"
)

var positionColumnNames = []string{
	"id", "symbol_a", "symbol_b", "direction", "long_asset", "short_asset",
	"entry_long_price", "entry_short_price", "entry_time", "entry_z_score",
	"hedge_ratio", "half_life", "size_fraction",
	"status", "current_pnl_pct", "last_z_score", "updated_at",
	"close_time", "close_reason", "close_trigger", "close_pnl_pct",
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func testPosition(id string) *domain.Position {
	entry := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Position{
		ID:              id,
		Pair:            domain.NewPair("BTCUSDT", "ETHUSDT"),
		Direction:       domain.SignalShort,
		LongAsset:       "ETHUSDT",
		ShortAsset:      "BTCUSDT",
		EntryLongPrice:  3200.5,
		EntryShortPrice: 97000,
		EntryTime:       entry,
		EntryZScore:     2.3,
		HedgeRatio:      1.1,
		HalfLife:        12,
		SizeFraction:    0.1,
		Status:          domain.PositionOpen,
		UpdatedAt:       entry,
	}
}

func TestPositionStore_Create(t *testing.T) {
	mock := newMock(t)
	store := NewPositionStore(mock)

	mock.ExpectExec("INSERT INTO positions").
		WithArgs(anyArgs(21)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), testPosition("p1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionStore_CreateDuplicate(t *testing.T) {
	mock := newMock(t)
	store := NewPositionStore(mock)

	mock.ExpectExec("INSERT INTO positions").
		WithArgs(anyArgs(21)...).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Create(context.Background(), testPosition("p1"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPositionStore_CreateInvalid(t *testing.T) {
	store := NewPositionStore(newMock(t))
	assert.ErrorIs(t, store.Create(context.Background(), &domain.Position{}), storage.ErrInvalidInput)
}

func TestPositionStore_UpdateNotFound(t *testing.T) {
	mock := newMock(t)
	store := NewPositionStore(mock)

	p := testPosition("missing")
	mock.ExpectExec("UPDATE positions").
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, store.Update(context.Background(), p), storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionStore_Close(t *testing.T) {
	mock := newMock(t)
	store := NewPositionStore(mock)

	p := testPosition("p1")
	closeTime := p.EntryTime.Add(6 * time.Hour)
	p.Status = domain.PositionClosed
	p.CloseTime = &closeTime
	p.CloseReason = domain.CloseReasonMeanReversion
	p.CloseTrigger = 0.3
	p.ClosePnLPct = 1.2

	mock.ExpectExec("UPDATE positions").
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Close(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionStore_CloseRejectsOpenPosition(t *testing.T) {
	store := NewPositionStore(newMock(t))
	assert.ErrorIs(t, store.Close(context.Background(), testPosition("p1")), storage.ErrInvalidInput)
}

func TestPositionStore_GetByID(t *testing.T) {
	mock := newMock(t)
	store := NewPositionStore(mock)

	p := testPosition("p1")
	z := 1.7
	rows := pgxmock.NewRows(positionColumnNames).AddRow(
		p.ID, p.Pair.SymbolA, p.Pair.SymbolB, string(p.Direction), p.LongAsset, p.ShortAsset,
		decimal.NewFromFloat(p.EntryLongPrice), decimal.NewFromFloat(p.EntryShortPrice), p.EntryTime, p.EntryZScore,
		p.HedgeRatio, p.HalfLife, p.SizeFraction,
		string(p.Status), 0.8, &z, p.UpdatedAt,
		nil, "", 0.0, 0.0,
	)
	mock.ExpectQuery("SELECT (.+) FROM positions WHERE id").
		WithArgs("p1").
		WillReturnRows(rows)

	got, err := store.GetByID(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, domain.SignalShort, got.Direction)
	assert.Equal(t, "ETHUSDT", got.LongAsset)
	assert.InDelta(t, 3200.5, got.EntryLongPrice, 1e-9)
	assert.InDelta(t, 97000.0, got.EntryShortPrice, 1e-9)
	assert.Equal(t, domain.PositionOpen, got.Status)
	require.NotNil(t, got.LastZScore)
	assert.Equal(t, 1.7, *got.LastZScore)
	assert.Nil(t, got.CloseTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionStore_GetByIDNotFound(t *testing.T) {
	mock := newMock(t)
	store := NewPositionStore(mock)

	mock.ExpectQuery("SELECT (.+) FROM positions WHERE id").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPositionStore_GetOpenQueryError(t *testing.T) {
	mock := newMock(t)
	store := NewPositionStore(mock)

	mock.ExpectQuery("SELECT (.+) FROM positions").
		WillReturnError(errors.New("connection reset"))

	_, err := store.GetOpen(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}
