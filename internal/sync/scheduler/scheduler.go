// Package scheduler starts queue drains when connectivity returns and keeps
// retrying pending writes while online.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/logging"
	syncpkg "github.com/saludcampo/offlinesync/internal/sync"
	"github.com/saludcampo/offlinesync/internal/sync/connectivity"
)

// PendingCounter reports how many writes are waiting in the queue.
type PendingCounter interface {
	Count(ctx context.Context) (int, error)
}

// Connectivity is the part of connectivity.Monitor the scheduler uses.
type Connectivity interface {
	IsOnline() bool
	Subscribe(l connectivity.Listener) (unsubscribe func())
}

// Scheduler triggers background drains.
type Scheduler struct {
	engine        syncpkg.SynchronizerInterface
	queue         PendingCounter
	monitor       Connectivity
	queueInterval time.Duration

	wg conc.WaitGroup

	mu           sync.RWMutex
	isRunning    bool
	cancel       context.CancelFunc
	unsubscribe  func()
	lastSyncTime time.Time
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	QueueInterval time.Duration // How often to retry pending writes while online (default: 1 minute)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		QueueInterval: 1 * time.Minute,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(engine syncpkg.SynchronizerInterface, queue PendingCounter, monitor Connectivity, config *SchedulerConfig) *Scheduler {
	if config == nil || config.QueueInterval <= 0 {
		config = DefaultSchedulerConfig()
	}

	return &Scheduler{
		engine:        engine,
		queue:         queue,
		monitor:       monitor,
		queueInterval: config.QueueInterval,
	}
}

// Start subscribes to connectivity changes and starts the retry loop.
// Writes left over from a previous run are drained right away when online.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.isRunning = true
	s.cancel = cancel
	s.unsubscribe = s.monitor.Subscribe(func(online bool) {
		s.onConnectivityChange(runCtx, online)
	})
	s.mu.Unlock()

	s.wg.Go(func() {
		s.queueLoop(runCtx)
	})

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"queue_interval": s.queueInterval.String(),
	})
	s.triggerIfPending(runCtx, "startup")
}

// Stop unsubscribes, cancels in-flight drains between entries and waits for
// the retry loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	unsubscribe, cancel := s.unsubscribe, s.cancel
	s.unsubscribe, s.cancel = nil, nil
	s.mu.Unlock()

	unsubscribe()
	cancel()
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped")
}

func (s *Scheduler) onConnectivityChange(ctx context.Context, online bool) {
	if !online {
		logging.Info("Offline, writes will be queued")
		return
	}
	if s.engine.Trigger(ctx) {
		logging.Info("Back online, draining pending writes")
	} else {
		logging.Debug("Back online, drain already in progress")
	}
}

// queueLoop retries pending writes while online so they do not wait for the
// next reconnect.
func (s *Scheduler) queueLoop(ctx context.Context) {
	ticker := time.NewTicker(s.queueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.triggerIfPending(ctx, "interval")
		}
	}
}

func (s *Scheduler) triggerIfPending(ctx context.Context, reason string) {
	if !s.monitor.IsOnline() {
		return
	}
	pending, err := s.queue.Count(ctx)
	if err != nil {
		logging.ErrorWithCode("Failed to count pending writes", string(errors.CodeOf(err)), err)
		return
	}
	if pending == 0 {
		return
	}
	if s.engine.Trigger(ctx) {
		logging.Debug("Draining pending writes", map[string]interface{}{
			"pending": pending,
			"reason":  reason,
		})
	}
}

// SchedulerStatus is a snapshot of the scheduler state.
type SchedulerStatus struct {
	IsRunning    bool
	IsOnline     bool
	SyncStatus   syncpkg.SyncStatus
	LastSyncTime *time.Time
	LastError    error
	PendingItems int
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus(ctx context.Context) (SchedulerStatus, error) {
	pending, err := s.queue.Count(ctx)
	if err != nil {
		return SchedulerStatus{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	status := SchedulerStatus{
		IsRunning:    s.isRunning,
		IsOnline:     s.monitor.IsOnline(),
		SyncStatus:   s.engine.Status(),
		LastSyncTime: s.engine.LastSync(),
		LastError:    s.engine.LastError(),
		PendingItems: pending,
	}
	if !s.lastSyncTime.IsZero() {
		manual := s.lastSyncTime
		if status.LastSyncTime == nil || manual.After(*status.LastSyncTime) {
			status.LastSyncTime = &manual
		}
	}
	return status, nil
}

// SyncNow drains the queue and waits for completion. It refuses to run
// while offline so the attempt log is not filled with certain failures.
func (s *Scheduler) SyncNow(ctx context.Context) (int, error) {
	if !s.monitor.IsOnline() {
		return 0, errors.New(errors.ErrRemoteUnreachable, "cannot sync while offline")
	}

	synced, err := s.engine.Drain(ctx)
	if err != nil {
		return synced, errors.Wrap(errors.ErrSyncFailed, "manual sync failed", err)
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	logging.Info("Manual sync completed", map[string]interface{}{"synchronized": synced})
	return synced, nil
}

// IsOnline returns the connectivity state the scheduler follows.
func (s *Scheduler) IsOnline() bool {
	return s.monitor.IsOnline()
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
