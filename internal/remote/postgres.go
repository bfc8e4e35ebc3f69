// Package remote writes records to the dashboard's remote relational store.
package remote

import (
	"context"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/models"
)

// PostgresStore inserts payloads into Postgres tables named by collection.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore backed by the provided pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect creates a pool for dsn. Connections are opened lazily, so an
// unreachable server does not fail Connect; it shows up in Ping and Insert.
func Connect(ctx context.Context, dsn string, connectTimeout time.Duration) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "parse remote dsn", err)
	}
	if connectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = connectTimeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteUnreachable, "create remote pool", err)
	}
	return NewPostgresStore(pool), nil
}

// Insert writes record as one row of collection. Column types are resolved
// by the server from the table definition; columns absent from record keep
// their defaults.
func (s *PostgresStore) Insert(ctx context.Context, collection string, record models.Payload) error {
	if err := record.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid record", err)
	}
	query, err := buildInsert(collection, record.Keys())
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any(record))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "encode record", err)
	}
	var args []any
	if len(record) > 0 {
		args = append(args, string(body))
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteWrite, "insert into "+collection, err)
	}
	return nil
}

// Ping checks that the server is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteUnreachable, "ping remote store", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// buildInsert renders the INSERT statement for collection and columns. The
// single parameter is the record encoded as a JSON object. Without columns
// the statement takes no parameter.
func buildInsert(collection string, columns []string) (string, error) {
	table, err := tableIdentifier(collection)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "INSERT INTO " + table + " DEFAULT VALUES", nil
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		if strings.TrimSpace(c) == "" {
			return "", apperrors.New(apperrors.ErrInvalid, "empty column name")
		}
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	cols := strings.Join(quoted, ", ")

	return "INSERT INTO " + table + " (" + cols + ") SELECT " + cols +
		" FROM jsonb_populate_record(NULL::" + table + ", $1::jsonb)", nil
}

// tableIdentifier accepts "table" or "schema.table".
func tableIdentifier(collection string) (string, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return "", apperrors.New(apperrors.ErrInvalid, "collection is required")
	}
	parts := strings.Split(collection, ".")
	if len(parts) > 2 {
		return "", apperrors.Newf(apperrors.ErrInvalid, "collection %q has too many parts", collection)
	}
	for _, p := range parts {
		if p == "" {
			return "", apperrors.Newf(apperrors.ErrInvalid, "collection %q is malformed", collection)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}
