// Package sync drains the durable queue of offline writes into the remote store.
package sync

import (
	"context"
	"time"

	"github.com/saludcampo/offlinesync/internal/models"
)

// RemoteStore is the remote relational store the queue drains into.
type RemoteStore interface {
	// Insert writes record into collection. Any error is treated as a
	// failed attempt; the entry stays queued.
	Insert(ctx context.Context, collection string, record models.Payload) error
}

// PendingQueue is the durable queue of writes waiting for the remote store.
type PendingQueue interface {
	Enqueue(ctx context.Context, collection string, payload models.Payload) (*models.PendingWrite, error)
	ListPending(ctx context.Context) ([]*models.PendingWrite, error)
	Update(ctx context.Context, id int64, patch models.PendingWritePatch) error
	Remove(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// AttemptRecorder receives one record per synchronization attempt.
type AttemptRecorder interface {
	Append(ctx context.Context, rec *models.SyncAttempt) error
}

// OnlineChecker reports the current connectivity state.
type OnlineChecker interface {
	IsOnline() bool
}

// SynchronizerInterface defines the drain operations used by the scheduler.
// This interface allows for mocking in tests.
type SynchronizerInterface interface {
	// Drain runs one pass over the pending entries and returns how many
	// were written to the remote store.
	Drain(ctx context.Context) (int, error)

	// Trigger starts a drain in the background, coalescing with one that
	// is already running. The follow-up pass runs under the ctx of the
	// latest Trigger call. Returns true if a new drain goroutine was started.
	Trigger(ctx context.Context) bool

	// Status returns the current sync status.
	Status() SyncStatus

	// LastSync returns the end time of the last drain that completed without error.
	LastSync() *time.Time

	// LastError returns the error of the last drain, if any.
	LastError() error
}
