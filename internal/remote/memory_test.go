package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/models"
)

func TestMemoryStore_Insert(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	rec := models.Payload{"nino_id": "n-1"}
	require.NoError(t, m.Insert(ctx, "tbl_citas", rec))
	rec["nino_id"] = "mutated"

	got := m.Records("tbl_citas")
	require.Len(t, got, 1)
	assert.Equal(t, "n-1", got[0]["nino_id"])
	assert.Equal(t, 1, m.Total())
	assert.Equal(t, 1, m.Calls())
}

func TestMemoryStore_FailNext(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.FailNext(2, nil)
	err := m.Insert(ctx, "tbl_citas", models.Payload{"a": 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteWrite))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Error(t, m.Insert(ctx, "tbl_citas", models.Payload{"a": 1}))
	assert.NoError(t, m.Insert(ctx, "tbl_citas", models.Payload{"a": 1}))
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, 1, m.Total())
}

func TestMemoryStore_FailAlways(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailAlways(boom)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, m.Insert(ctx, "tbl_citas", models.Payload{"a": i}), boom)
	}
	m.Recover()
	assert.NoError(t, m.Insert(ctx, "tbl_citas", models.Payload{"a": 1}))
}

func TestMemoryStore_Reachability(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.Ping(ctx))
	m.SetReachable(false)
	assert.True(t, apperrors.Is(m.Ping(ctx), apperrors.ErrRemoteUnreachable))
	assert.Error(t, m.Insert(ctx, "tbl_citas", models.Payload{"a": 1}))

	m.SetReachable(true)
	assert.NoError(t, m.Ping(ctx))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	m := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Insert(ctx, "tbl_citas", models.Payload{"a": 1}), context.Canceled)
	assert.ErrorIs(t, m.Ping(ctx), context.Canceled)
	assert.Zero(t, m.Calls())
}
