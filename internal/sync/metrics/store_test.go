package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saludcampo/offlinesync/internal/db"
	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func attempt(collection string, success bool, n int, ms int64) *models.SyncAttempt {
	rec := &models.SyncAttempt{
		RunID:         "run-1",
		Timestamp:     time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		Collection:    collection,
		Success:       success,
		AttemptNumber: n,
		DurationMs:    ms,
	}
	if !success {
		rec.ErrorMessage = "connection refused"
	}
	return rec
}

func TestStore_AppendAssignsIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := attempt("tbl_citas", true, 1, 120)
	second := attempt("tbl_citas", false, 1, 300)
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, second))

	assert.Greater(t, first.ID, int64(0))
	assert.Greater(t, second.ID, first.ID)
}

func TestStore_ListAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	in := attempt("tbl_controles_nutricionales", false, 2, 1500)
	in.PendingWriteID = 9
	require.NoError(t, s.Append(ctx, in))
	require.NoError(t, s.Append(ctx, attempt("tbl_citas", true, 1, 80)))

	records, err = s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	got := records[0]
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(9), got.PendingWriteID)
	assert.True(t, in.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, "tbl_controles_nutricionales", got.Collection)
	assert.False(t, got.Success)
	assert.Equal(t, 2, got.AttemptNumber)
	assert.Equal(t, int64(1500), got.DurationMs)
	assert.Equal(t, "connection refused", got.ErrorMessage)

	assert.True(t, records[1].Success)
	assert.Empty(t, records[1].ErrorMessage)
}

func TestStore_SuccessDropsErrorMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := attempt("tbl_citas", true, 1, 10)
	rec.ErrorMessage = "stale"
	require.NoError(t, s.Append(ctx, rec))

	records, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].ErrorMessage)
}

func TestStore_AppendInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.True(t, apperrors.Is(s.Append(ctx, nil), apperrors.ErrInvalid))
	assert.True(t, apperrors.Is(s.Append(ctx, attempt("", true, 1, 1)), apperrors.ErrInvalid))
	assert.True(t, apperrors.Is(s.Append(ctx, attempt("tbl_citas", true, 0, 1)), apperrors.ErrInvalid))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ListForWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for n := 1; n <= 3; n++ {
		rec := attempt("tbl_citas", n == 3, n, 10)
		rec.PendingWriteID = 42
		require.NoError(t, s.Append(ctx, rec))
	}
	other := attempt("tbl_citas", true, 1, 10)
	other.PendingWriteID = 43
	require.NoError(t, s.Append(ctx, other))

	records, err := s.ListForWrite(ctx, 42)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, i+1, r.AttemptNumber)
	}
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, attempt("tbl_citas", true, 1, 10)))
	require.NoError(t, s.Clear(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, attempt("tbl_citas", false, 1, 700)))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(700), records[0].DurationMs)
}
