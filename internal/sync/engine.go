package sync

import (
	"context"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/logging"
	"github.com/saludcampo/offlinesync/internal/models"
	"github.com/saludcampo/offlinesync/internal/telemetry"
)

// SyncStatus represents the current drain status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusFailed  SyncStatus = "failed"
)

// Synchronizer drains the pending queue into the remote store, one attempt
// per entry per pass, recording every attempt.
type Synchronizer struct {
	queue       PendingQueue
	remote      RemoteStore
	recorder    AttemptRecorder
	clock       func() time.Time
	maxAttempts int
	instruments *telemetry.Instruments
	auditor     *Auditor

	// drainMu serializes passes.
	drainMu gosync.Mutex

	// triggerMu is held by the single background drain goroutine.
	triggerMu gosync.Mutex
	rerun     atomic.Bool
	wg        conc.WaitGroup

	// triggerCtx is the ctx of the latest Trigger call.
	triggerCtxMu gosync.Mutex
	triggerCtx   context.Context

	mu       gosync.RWMutex
	status   SyncStatus
	lastSync *time.Time
	lastErr  error
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock overrides the time source used for timestamps and durations.
func WithClock(clock func() time.Time) Option {
	return func(s *Synchronizer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMaxAttempts marks entries FAILED once a failed attempt reaches n.
// n <= 0 retries forever.
func WithMaxAttempts(n int) Option {
	return func(s *Synchronizer) {
		if n < 0 {
			n = 0
		}
		s.maxAttempts = n
	}
}

// WithInstruments records attempts on OpenTelemetry instruments.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(s *Synchronizer) {
		s.instruments = inst
	}
}

// WithAuditor records a CREATE audit event for every synchronized write.
func WithAuditor(a *Auditor) Option {
	return func(s *Synchronizer) {
		s.auditor = a
	}
}

// NewSynchronizer creates a new Synchronizer.
func NewSynchronizer(queue PendingQueue, remote RemoteStore, recorder AttemptRecorder, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		queue:    queue,
		remote:   remote,
		recorder: recorder,
		clock:    time.Now,
		status:   SyncStatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current sync status.
func (s *Synchronizer) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastSync returns the end time of the last drain that completed without error.
func (s *Synchronizer) LastSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// LastError returns the error of the last drain.
func (s *Synchronizer) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Drain snapshots the pending entries and tries each one once, in order.
//
// Remote failures are recorded on the entry and in the attempt log and never
// returned. Local storage failures abort the pass and are returned together
// with the number of entries synchronized so far. A cancelled ctx stops the
// pass before the next entry. Concurrent calls run one after another.
func (s *Synchronizer) Drain(ctx context.Context) (int, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.setStatus(SyncStatusSyncing)
	count, err := s.drain(ctx)
	s.finish(err)
	return count, err
}

func (s *Synchronizer) drain(ctx context.Context) (int, error) {
	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	runID := uuid.NewString()
	logging.Info("[Synchronizer] Draining pending writes", map[string]interface{}{
		"run_id":  runID,
		"pending": len(pending),
	})

	synced := 0
	failed := 0
	for _, item := range pending {
		select {
		case <-ctx.Done():
			logging.Warn("[Synchronizer] Drain interrupted", map[string]interface{}{
				"run_id":       runID,
				"synchronized": synced,
			})
			return synced, ctx.Err()
		default:
		}

		ok, err := s.attempt(ctx, runID, item)
		if err != nil {
			logging.ErrorWithCode("[Synchronizer] Drain aborted", string(apperrors.CodeOf(err)), err,
				map[string]interface{}{"run_id": runID, "id": item.ID})
			return synced, err
		}
		if ok {
			synced++
		} else {
			failed++
		}
	}

	logging.Info("[Synchronizer] Drain completed", map[string]interface{}{
		"run_id":       runID,
		"synchronized": synced,
		"failed":       failed,
	})
	return synced, nil
}

// attempt sends one entry to the remote store. It reports whether the
// entry was synchronized; a non-nil error is a local storage failure.
func (s *Synchronizer) attempt(ctx context.Context, runID string, item *models.PendingWrite) (bool, error) {
	attemptNumber := item.NextAttempt()
	start := s.clock()
	remoteErr := s.remote.Insert(ctx, item.Collection, item.Payload)
	elapsed := s.clock().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	// Bookkeeping must complete once the remote call has returned, or a
	// cancelled pass would leave a written entry queued.
	local := context.WithoutCancel(ctx)

	rec := &models.SyncAttempt{
		RunID:          runID,
		PendingWriteID: item.ID,
		Timestamp:      start,
		Collection:     item.Collection,
		Success:        remoteErr == nil,
		AttemptNumber:  attemptNumber,
		DurationMs:     elapsed.Milliseconds(),
	}
	s.instruments.RecordAttempt(ctx, item.Collection, rec.Success, elapsed)

	if remoteErr == nil {
		if err := s.queue.Remove(local, item.ID); err != nil {
			return false, err
		}
		s.instruments.RecordPending(ctx, -1)
		if err := s.recorder.Append(local, rec); err != nil {
			return false, err
		}
		logging.Debug("[Synchronizer] Write synchronized", map[string]interface{}{
			"id":          item.ID,
			"collection":  item.Collection,
			"attempt":     attemptNumber,
			"duration_ms": rec.DurationMs,
		})
		s.auditor.Created(ctx, item.Collection, item.Payload)
		return true, nil
	}

	rec.ErrorMessage = remoteErr.Error()
	patch := models.FailedAttemptPatch(attemptNumber, rec.ErrorMessage)
	exhausted := s.maxAttempts > 0 && attemptNumber >= s.maxAttempts
	if exhausted {
		patch = patch.WithStatus(models.PendingWriteStatusFailed)
	}

	if err := s.queue.Update(local, item.ID, patch); err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return false, err
		}
		logging.Warn("[Synchronizer] Entry vanished before its failure was recorded", map[string]interface{}{
			"id": item.ID,
		})
	} else if exhausted {
		s.instruments.RecordPending(ctx, -1)
		logging.Warn("[Synchronizer] Write marked FAILED after reaching max attempts", map[string]interface{}{
			"id":           item.ID,
			"collection":   item.Collection,
			"attempt":      attemptNumber,
			"max_attempts": s.maxAttempts,
		})
	}

	if err := s.recorder.Append(local, rec); err != nil {
		return false, err
	}
	logging.Warn("[Synchronizer] Remote write failed", map[string]interface{}{
		"id":         item.ID,
		"collection": item.Collection,
		"attempt":    attemptNumber,
		"last_error": rec.ErrorMessage,
	})
	return false, nil
}

// Trigger requests a background drain. At most one background drain runs at
// a time; triggers that arrive while it runs are folded into exactly one
// follow-up pass.
//
// Each pass runs under the ctx of the most recent Trigger call, so a caller
// whose ctx is cancelled cannot swallow a later caller's request. A pass
// whose ctx is already cancelled is skipped. Returns true if this call
// started the background drain.
func (s *Synchronizer) Trigger(ctx context.Context) bool {
	s.triggerCtxMu.Lock()
	s.triggerCtx = ctx
	s.triggerCtxMu.Unlock()
	// rerun is published after triggerCtx so a pass that consumes it sees
	// this ctx or a newer one.
	s.rerun.Store(true)
	if !s.triggerMu.TryLock() {
		return false
	}
	s.wg.Go(s.runTriggered)
	return true
}

func (s *Synchronizer) latestTriggerCtx() context.Context {
	s.triggerCtxMu.Lock()
	defer s.triggerCtxMu.Unlock()
	return s.triggerCtx
}

func (s *Synchronizer) runTriggered() {
	for {
		for s.rerun.Swap(false) {
			ctx := s.latestTriggerCtx()
			if ctx.Err() != nil {
				continue
			}
			if _, err := s.Drain(ctx); err != nil {
				logging.Error("[Synchronizer] Triggered drain failed", err)
			}
		}
		s.triggerMu.Unlock()
		// A trigger that lost the TryLock race after our last Swap left
		// rerun set; pick it up unless a new goroutine already did.
		if !s.rerun.Load() || !s.triggerMu.TryLock() {
			return
		}
	}
}

// Wait blocks until background drains started by Trigger have finished.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

func (s *Synchronizer) setStatus(status SyncStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Synchronizer) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		s.status = SyncStatusFailed
		return
	}
	now := s.clock()
	s.lastSync = &now
	s.status = SyncStatusIdle
}
