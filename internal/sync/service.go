package sync

import (
	"context"

	"github.com/saludcampo/offlinesync/internal/logging"
	"github.com/saludcampo/offlinesync/internal/models"
	"github.com/saludcampo/offlinesync/internal/sync/metrics"
	"github.com/saludcampo/offlinesync/internal/sync/queue"
)

// Service exposes the offline sync operations the dashboard calls.
type Service struct {
	queue      *queue.SyncQueue
	metrics    *metrics.Store
	aggregator *metrics.Aggregator
	sync       *Synchronizer
	writer     *Writer
}

// NewService wires the stores, the remote store and the connectivity state
// into a Service. opts configure the Synchronizer; an auditor given with
// WithAuditor also audits direct writes.
func NewService(q *queue.SyncQueue, m *metrics.Store, remote RemoteStore, online OnlineChecker, opts ...Option) *Service {
	s := NewSynchronizer(q, remote, m, opts...)
	w := NewWriter(q, remote, online, s.instruments)
	w.auditor = s.auditor
	return &Service{
		queue:      q,
		metrics:    m,
		aggregator: metrics.NewAggregator(m),
		sync:       s,
		writer:     w,
	}
}

// Synchronizer returns the Synchronizer used by Drain.
func (s *Service) Synchronizer() *Synchronizer {
	return s.sync
}

// Write sends a record to the remote store or queues it.
func (s *Service) Write(ctx context.Context, collection string, payload models.Payload) (WriteResult, error) {
	return s.writer.Write(ctx, collection, payload)
}

// EnqueueWrite queues a record without trying the remote store.
func (s *Service) EnqueueWrite(ctx context.Context, collection string, payload models.Payload) (*models.PendingWrite, error) {
	return s.writer.Enqueue(ctx, collection, payload)
}

// Drain runs one synchronous drain pass.
func (s *Service) Drain(ctx context.Context) (int, error) {
	return s.sync.Drain(ctx)
}

// CountPending returns the number of writes waiting to be synchronized.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	return s.queue.Count(ctx)
}

// ListPending returns the writes waiting to be synchronized.
func (s *Service) ListPending(ctx context.Context) ([]*models.PendingWrite, error) {
	return s.queue.ListPending(ctx)
}

// ListFailed returns the writes that reached the attempt ceiling.
func (s *Service) ListFailed(ctx context.Context) ([]*models.PendingWrite, error) {
	return s.queue.ListFailed(ctx)
}

// QueueStats returns entry counts by status: total, pending and failed.
func (s *Service) QueueStats(ctx context.Context) (map[string]int, error) {
	return s.queue.GetStats(ctx)
}

// PendingWrite returns one queued write. It is NOT_FOUND once the write has
// been synchronized or cleared.
func (s *Service) PendingWrite(ctx context.Context, id int64) (*models.PendingWrite, error) {
	return s.queue.Get(ctx, id)
}

// RequeueFailed moves FAILED writes back to PENDING.
func (s *Service) RequeueFailed(ctx context.Context) (int, error) {
	n, err := s.queue.RequeueFailed(ctx)
	if err != nil {
		return 0, err
	}
	s.sync.instruments.RecordPending(ctx, int64(n))
	return n, nil
}

// ClearQueue discards every queued write. Unsynchronized data is lost.
func (s *Service) ClearQueue(ctx context.Context) error {
	pending, err := s.queue.Count(ctx)
	if err != nil {
		return err
	}
	if err := s.queue.Clear(ctx); err != nil {
		return err
	}
	s.sync.instruments.RecordPending(ctx, -int64(pending))
	logging.Warn("Offline queue cleared", map[string]interface{}{"discarded": pending})
	return nil
}

// Attempts returns every recorded synchronization attempt.
func (s *Service) Attempts(ctx context.Context) ([]*models.SyncAttempt, error) {
	return s.metrics.ListAll(ctx)
}

// AttemptsForWrite returns the attempts recorded for one queued write,
// including those made before it left the queue.
func (s *Service) AttemptsForWrite(ctx context.Context, pendingWriteID int64) ([]*models.SyncAttempt, error) {
	return s.metrics.ListForWrite(ctx, pendingWriteID)
}

// Summarize aggregates the recorded attempts.
func (s *Service) Summarize(ctx context.Context) (metrics.Summary, error) {
	return s.aggregator.Summarize(ctx)
}

// ExportCSV renders the recorded attempts as CSV.
func (s *Service) ExportCSV(ctx context.Context) (string, error) {
	return s.aggregator.ExportCSV(ctx)
}

// ClearMetrics deletes every recorded attempt.
func (s *Service) ClearMetrics(ctx context.Context) error {
	n, err := s.metrics.Count(ctx)
	if err != nil {
		return err
	}
	if err := s.metrics.Clear(ctx); err != nil {
		return err
	}
	logging.Info("Sync metrics cleared", map[string]interface{}{"discarded": n})
	return nil
}
