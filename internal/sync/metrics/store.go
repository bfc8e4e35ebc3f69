// Package metrics records the outcome of every synchronization attempt and
// derives summaries and CSV exports from them.
package metrics

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/saludcampo/offlinesync/internal/db"
	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/logging"
	"github.com/saludcampo/offlinesync/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations holds the schema of the metrics database.
var Migrations fs.FS

func init() {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("metrics: migrations: %v", err))
	}
	Migrations = sub
}

// FileName is the database file created under the data directory.
const FileName = "metrics.db"

const selectColumns = `id, run_id, pending_write_id, timestamp, collection, success, attempt_number, duration_ms, COALESCE(error_message, '')`

// Store is the append-only log of synchronization attempts. It lives in its
// own database file so clearing it never touches the queue.
type Store struct {
	db *db.DB
}

// NewStore wraps an already migrated database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Open opens the metrics database in dataDir, creating and migrating it if needed.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "create data directory", err)
	}
	return OpenPath(filepath.Join(dataDir, FileName))
}

// OpenPath opens the metrics database at path.
func OpenPath(path string) (*Store, error) {
	database, err := db.OpenMigrated(path, Migrations)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "open metrics store", err)
	}
	return NewStore(database), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a record and sets its ID. Records are never modified afterwards.
func (s *Store) Append(ctx context.Context, rec *models.SyncAttempt) error {
	if rec == nil {
		return apperrors.New(apperrors.ErrInvalid, "attempt record is required")
	}
	if strings.TrimSpace(rec.Collection) == "" {
		return apperrors.New(apperrors.ErrInvalid, "attempt collection is required")
	}
	if rec.AttemptNumber < 1 {
		return apperrors.Newf(apperrors.ErrInvalid, "attempt number %d must be at least 1", rec.AttemptNumber)
	}
	if rec.DurationMs < 0 {
		rec.DurationMs = 0
	}

	var errMsg sql.NullString
	if !rec.Success {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_attempts (run_id, pending_write_id, timestamp, collection, success, attempt_number, duration_ms, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.PendingWriteID, rec.Timestamp.UTC().UnixMilli(), rec.Collection,
		rec.Success, rec.AttemptNumber, rec.DurationMs, errMsg)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "append attempt record", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "append attempt record", err)
	}
	rec.ID = id
	if rec.Success {
		rec.ErrorMessage = ""
	}
	return nil
}

// ListAll returns every record in insertion order.
func (s *Store) ListAll(ctx context.Context) ([]*models.SyncAttempt, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM sync_attempts ORDER BY id ASC`)
}

// ListForWrite returns the attempts made for one queue entry, oldest first.
func (s *Store) ListForWrite(ctx context.Context, pendingWriteID int64) ([]*models.SyncAttempt, error) {
	return s.query(ctx,
		`SELECT `+selectColumns+` FROM sync_attempts WHERE pending_write_id = ? ORDER BY id ASC`, pendingWriteID)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_attempts`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrLocalStorage, "count attempt records", err)
	}
	return n, nil
}

// Clear irreversibly deletes every record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_attempts`); err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "clear attempt records", err)
	}
	logging.Info("Synchronization metrics cleared")
	return nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*models.SyncAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "list attempt records", err)
	}
	defer rows.Close()

	var records []*models.SyncAttempt
	for rows.Next() {
		var (
			rec models.SyncAttempt
			ts  int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.PendingWriteID,
			&ts,
			&rec.Collection,
			&rec.Success,
			&rec.AttemptNumber,
			&rec.DurationMs,
			&rec.ErrorMessage,
		); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "scan attempt record", err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "iterate attempt records", err)
	}
	return records, nil
}
