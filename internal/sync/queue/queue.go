// Package queue provides the durable queue of writes captured while offline.
package queue

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

// Migrations holds the schema of the queue database.
var Migrations fs.FS

func init() {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("queue: migrations: %v", err))
	}
	Migrations = sub
}

// FileName is the database file created under the data directory.
const FileName = "queue.db"

const selectColumns = `id, collection, payload, enqueued_at, updated_at, status, attempt_count, COALESCE(last_error, '')`

// SyncQueue persists pending writes in SQLite so they survive restarts.
type SyncQueue struct {
	db    *db.DB
	clock func() time.Time
}

// Option configures a SyncQueue.
type Option func(*SyncQueue)

// WithClock overrides the timestamp source, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(q *SyncQueue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// New wraps an already migrated database.
func New(database *db.DB, opts ...Option) *SyncQueue {
	q := &SyncQueue{db: database, clock: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Open opens the queue database in dataDir, creating and migrating it if needed.
func Open(dataDir string, opts ...Option) (*SyncQueue, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "create data directory", err)
	}
	return OpenPath(filepath.Join(dataDir, FileName), opts...)
}

// OpenPath opens the queue database at path; db.MemoryPath gives a throwaway queue.
func OpenPath(path string, opts ...Option) (*SyncQueue, error) {
	database, err := db.OpenMigrated(path, Migrations)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "open queue store", err)
	}
	return New(database, opts...), nil
}

// Close closes the underlying database.
func (q *SyncQueue) Close() error {
	return q.db.Close()
}

// Enqueue persists a new pending write with attempt count 0.
func (q *SyncQueue) Enqueue(ctx context.Context, collection string, payload models.Payload) (*models.PendingWrite, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "collection is required")
	}
	if err := payload.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid payload", err)
	}

	now := q.clock().UTC()
	item := &models.PendingWrite{
		Collection:   collection,
		Payload:      payload.Clone(),
		EnqueuedAt:   now,
		UpdatedAt:    now,
		Status:       models.PendingWriteStatusPending,
		AttemptCount: 0,
	}

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO pending_writes (collection, payload, enqueued_at, updated_at, status, attempt_count)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		item.Collection, item.Payload, now.UnixMilli(), now.UnixMilli(), string(item.Status))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "enqueue pending write", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "enqueue pending write", err)
	}
	item.ID = id

	logging.Debug("[SyncQueue] Enqueued pending write", map[string]interface{}{
		"id":         item.ID,
		"collection": item.Collection,
	})

	return item, nil
}

// ListPending returns every PENDING entry in insertion order.
func (q *SyncQueue) ListPending(ctx context.Context) ([]*models.PendingWrite, error) {
	return q.list(ctx, models.PendingWriteStatusPending)
}

// ListFailed returns every entry that reached the attempt ceiling.
func (q *SyncQueue) ListFailed(ctx context.Context) ([]*models.PendingWrite, error) {
	return q.list(ctx, models.PendingWriteStatusFailed)
}

func (q *SyncQueue) list(ctx context.Context, status models.PendingWriteStatus) ([]*models.PendingWrite, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM pending_writes WHERE status = ? ORDER BY id ASC`, string(status))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "list pending writes", err)
	}
	defer rows.Close()

	var items []*models.PendingWrite
	for rows.Next() {
		item, err := scanPendingWrite(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "scan pending write", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "iterate pending writes", err)
	}
	return items, nil
}

// Get returns a single entry regardless of status.
func (q *SyncQueue) Get(ctx context.Context, id int64) (*models.PendingWrite, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM pending_writes WHERE id = ?`, id)
	item, err := scanPendingWrite(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "pending write %d not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "get pending write", err)
	}
	return item, nil
}

// Update applies patch to an existing entry. It returns a NOT_FOUND error
// when the entry has already been removed, e.g. by a concurrent drain.
func (q *SyncQueue) Update(ctx context.Context, id int64, patch models.PendingWritePatch) error {
	if patch.IsEmpty() {
		return apperrors.Newf(apperrors.ErrInvalid, "patch for pending write %d changes nothing", id)
	}
	sets := []string{"updated_at = ?"}
	args := []any{q.clock().UTC().UnixMilli()}

	if patch.AttemptCount != nil {
		if *patch.AttemptCount < 0 {
			return apperrors.Newf(apperrors.ErrInvalid, "attempt count %d must not be negative", *patch.AttemptCount)
		}
		sets = append(sets, "attempt_count = ?")
		args = append(args, *patch.AttemptCount)
	}
	if patch.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *patch.LastError)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	args = append(args, id)

	res, err := q.db.ExecContext(ctx,
		`UPDATE pending_writes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "update pending write", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "update pending write", err)
	}
	if n == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "pending write %d not found", id)
	}
	return nil
}

// Remove deletes an entry. Removing an absent id is not an error.
func (q *SyncQueue) Remove(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_writes WHERE id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "remove pending write", err)
	}
	return nil
}

// Count returns the number of PENDING entries.
func (q *SyncQueue) Count(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_writes WHERE status = ?`, string(models.PendingWriteStatusPending)).Scan(&n)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrLocalStorage, "count pending writes", err)
	}
	return n, nil
}

// Clear removes every entry.
func (q *SyncQueue) Clear(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_writes`); err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "clear queue", err)
	}
	logging.Info("[SyncQueue] Queue cleared")
	return nil
}

// RequeueFailed resets FAILED entries to PENDING with a fresh attempt count.
func (q *SyncQueue) RequeueFailed(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE pending_writes SET status = ?, attempt_count = 0, last_error = NULL, updated_at = ? WHERE status = ?`,
		string(models.PendingWriteStatusPending), q.clock().UTC().UnixMilli(), string(models.PendingWriteStatusFailed))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrLocalStorage, "requeue failed writes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrLocalStorage, "requeue failed writes", err)
	}
	if n > 0 {
		logging.Info("[SyncQueue] Reset failed items for retry", map[string]interface{}{"count": n})
	}
	return int(n), nil
}

// GetStats returns entry counts by status.
func (q *SyncQueue) GetStats(ctx context.Context) (map[string]int, error) {
	stats := map[string]int{
		"total":   0,
		"pending": 0,
		"failed":  0,
	}

	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pending_writes GROUP BY status`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "queue stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "queue stats", err)
		}
		stats["total"] += n
		switch models.PendingWriteStatus(status) {
		case models.PendingWriteStatusPending:
			stats["pending"] += n
		case models.PendingWriteStatusFailed:
			stats["failed"] += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLocalStorage, "queue stats", err)
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPendingWrite(row scanner) (*models.PendingWrite, error) {
	var (
		item       models.PendingWrite
		status     string
		enqueuedAt int64
		updatedAt  int64
	)
	if err := row.Scan(
		&item.ID,
		&item.Collection,
		&item.Payload,
		&enqueuedAt,
		&updatedAt,
		&status,
		&item.AttemptCount,
		&item.LastError,
	); err != nil {
		return nil, err
	}
	item.Status = models.PendingWriteStatus(status)
	item.EnqueuedAt = time.UnixMilli(enqueuedAt).UTC()
	item.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &item, nil
}
