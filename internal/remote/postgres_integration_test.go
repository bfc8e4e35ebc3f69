package remote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/models"
)

// startPostgres runs a throwaway Postgres and returns its DSN. The test is
// skipped when Docker is not available.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres contract test skipped in -short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "salud"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://postgres:secret@%s:%s/salud?sslmode=disable", host, port.Port())
}

func TestPostgresStore_Contract(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, MigrateUp(ctx, dsn))
	require.NoError(t, MigrateUp(ctx, dsn), "second run is a no-op")

	store, err := Connect(ctx, dsn, 5*time.Second)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	payload, err := models.ParsePayload(`{"nino_id":"n-17","fecha_control":"2025-03-14","peso":12.5,"talla":88.2,"hemoglobina":10.9,"lote_mmn_id":9007199254740993,"cantidad_mmn":30}`)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, "tbl_controles_nutricionales", payload))

	var (
		peso  float64
		lote  int64
		notes *string
	)
	row := store.pool.QueryRow(ctx,
		`SELECT peso::float8, lote_mmn_id, observaciones FROM tbl_controles_nutricionales WHERE nino_id = $1`, "n-17")
	require.NoError(t, row.Scan(&peso, &lote, &notes))
	assert.InDelta(t, 12.5, peso, 1e-9)
	assert.Equal(t, int64(9007199254740993), lote)
	assert.Nil(t, notes)

	require.NoError(t, store.Insert(ctx, "tbl_citas", models.Payload{
		"nino_id":    "n-17",
		"fecha_hora": "2025-03-20T10:00:00Z",
		"motivo":     "control",
	}))
	var estado string
	require.NoError(t, store.pool.QueryRow(ctx, `SELECT estado FROM tbl_citas WHERE nino_id = $1`, "n-17").Scan(&estado))
	assert.Equal(t, "PROGRAMADA", estado, "omitted columns keep their defaults")

	err = store.Insert(ctx, "tbl_controles_nutricionales", models.Payload{"nino_id": "n-18", "fecha_control": "2025-03-14", "peso": -1})
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteWrite), "check violation: %v", err)

	err = store.Insert(ctx, "tbl_missing", models.Payload{"a": 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteWrite), "unknown table: %v", err)

	require.NoError(t, store.Insert(ctx, "tbl_eventos_sync", models.Payload{
		"tabla":        "tbl_citas",
		"accion":       "CREATE",
		"descripcion":  "New record created in tbl_citas",
		"timestamp":    "2025-03-20T10:00:01.5Z",
		"datos_nuevos": map[string]any{"nino_id": "n-17"},
	}))
	var nino string
	require.NoError(t, store.pool.QueryRow(ctx,
		`SELECT datos_nuevos->>'nino_id' FROM tbl_eventos_sync WHERE tabla = $1`, "tbl_citas").Scan(&nino))
	assert.Equal(t, "n-17", nino)

	err = store.Insert(ctx, "tbl_eventos_sync", models.Payload{"tabla": "tbl_citas", "accion": "RENAME", "descripcion": "x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteWrite), "unknown audit action: %v", err)

	// An empty payload is a valid statement; the table's NOT NULL columns reject it.
	err = store.Insert(ctx, "tbl_alertas", models.Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nino_id")
}

func TestPostgresStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Connect(ctx, "postgres://u:p@127.0.0.1:1/none?sslmode=disable", time.Second)
	require.NoError(t, err, "pool creation is lazy")
	defer store.Close()

	assert.True(t, apperrors.Is(store.Ping(ctx), apperrors.ErrRemoteUnreachable))
	assert.True(t, apperrors.Is(store.Insert(ctx, "tbl_citas", models.Payload{"a": 1}), apperrors.ErrRemoteWrite))
}

func TestConnect_badDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", time.Second)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig), "got %v", err)
}
