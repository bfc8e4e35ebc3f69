package sync

import (
	"context"
	"strings"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/logging"
	"github.com/saludcampo/offlinesync/internal/models"
	"github.com/saludcampo/offlinesync/internal/telemetry"
)

// WriteResult tells the caller which path a write took.
type WriteResult struct {
	// Queued is true when the write was captured locally instead of reaching
	// the remote store.
	Queued bool
	// Pending is the queue entry when Queued is true.
	Pending *models.PendingWrite
	// Err is the direct-write failure that caused the write to be queued.
	// It is nil when the write was queued because the device was offline.
	Err error
}

// Writer is the write path used by the dashboard forms: straight to the
// remote store while online, into the durable queue otherwise.
type Writer struct {
	queue       PendingQueue
	remote      RemoteStore
	online      OnlineChecker
	instruments *telemetry.Instruments
	auditor     *Auditor
}

// NewWriter creates a Writer. inst may be nil.
func NewWriter(queue PendingQueue, remote RemoteStore, online OnlineChecker, inst *telemetry.Instruments) *Writer {
	return &Writer{queue: queue, remote: remote, online: online, instruments: inst}
}

// Write stores payload in collection. Remote failures never reach the
// caller; they turn into an enqueue reported through WriteResult. Only
// invalid input and local storage failures are returned as errors.
func (w *Writer) Write(ctx context.Context, collection string, payload models.Payload) (WriteResult, error) {
	if strings.TrimSpace(collection) == "" {
		return WriteResult{}, apperrors.New(apperrors.ErrInvalid, "collection is required")
	}
	if err := payload.Validate(); err != nil {
		return WriteResult{}, apperrors.Wrap(apperrors.ErrInvalid, "invalid payload", err)
	}

	var directErr error
	if w.online.IsOnline() {
		directErr = w.remote.Insert(ctx, collection, payload)
		if directErr == nil {
			w.auditor.Created(ctx, collection, payload)
			return WriteResult{}, nil
		}
		logging.Warn("Direct write failed, saving offline", map[string]interface{}{
			"collection": collection,
			"cause":      directErr.Error(),
		})
	}

	pending, err := w.Enqueue(ctx, collection, payload)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Queued: true, Pending: pending, Err: directErr}, nil
}

// Enqueue captures a write for later synchronization. It does not retry.
func (w *Writer) Enqueue(ctx context.Context, collection string, payload models.Payload) (*models.PendingWrite, error) {
	pending, err := w.queue.Enqueue(ctx, collection, payload)
	if err != nil {
		return nil, err
	}
	w.instruments.RecordPending(ctx, 1)
	logging.Info("Write saved offline", map[string]interface{}{
		"id":         pending.ID,
		"collection": pending.Collection,
	})
	return pending, nil
}
