// Package connectivity tracks whether the remote store is reachable and
// notifies subscribers when that changes.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/logging"
)

const (
	DefaultCheckInterval   = 15 * time.Second
	DefaultMaxCheckBackoff = 2 * time.Minute

	watchBuffer = 4
)

// Listener is called with the new state after every transition.
type Listener func(online bool)

// Checker checks reachability of the remote store.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

// Check calls f(ctx).
func (f CheckFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Monitor holds the current connectivity state.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64

	// notifyMu keeps deliveries in transition order.
	notifyMu sync.Mutex

	checker         Checker
	checkInterval   time.Duration
	maxCheckBackoff time.Duration
	stillOffline    rate.Sometimes
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithChecker sets the reachability check used by Run.
func WithChecker(p Checker) Option {
	return func(m *Monitor) {
		m.checker = p
	}
}

// WithCheckInterval sets how often Run checks while online.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

// WithMaxCheckBackoff caps the delay between checks while offline.
func WithMaxCheckBackoff(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.maxCheckBackoff = d
		}
	}
}

// NewMonitor creates a Monitor in the given initial state.
func NewMonitor(online bool, opts ...Option) *Monitor {
	m := &Monitor{
		online:          online,
		listeners:       make(map[uint64]Listener),
		checkInterval:   DefaultCheckInterval,
		maxCheckBackoff: DefaultMaxCheckBackoff,
		stillOffline:    rate.Sometimes{Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxCheckBackoff < m.checkInterval {
		m.maxCheckBackoff = m.checkInterval
	}
	return m
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the state reported by an external signal. Listeners run
// synchronously, in subscription order, only when the state changes. They
// must not call SetOnline themselves.
func (m *Monitor) SetOnline(online bool) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]Listener, 0, len(m.order))
	for _, id := range m.order {
		listeners = append(listeners, m.listeners[id])
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{"online": online})
	for _, l := range listeners {
		l(online)
	}
}

// Subscribe registers l for future transitions. The returned function
// removes it and may be called more than once.
func (m *Monitor) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.order = append(m.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.listeners, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Watch returns a channel receiving the new state after each transition
// until ctx is done, when the channel is closed. A slow reader loses older
// states, never the latest one.
func (m *Monitor) Watch(ctx context.Context) <-chan bool {
	ch := make(chan bool, watchBuffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsubscribe := m.Subscribe(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		for {
			select {
			case ch <- online:
				return
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

// Run checks the remote store until ctx is done, updating the state from
// the result. While online it checks every check interval; while offline it
// backs off exponentially up to the configured maximum.
func (m *Monitor) Run(ctx context.Context) error {
	if m.checker == nil {
		return apperrors.New(apperrors.ErrConfig, "connectivity monitor has no checker")
	}

	bo := m.newBackoff()
	for {
		wait := m.checkOnce(ctx, bo)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *Monitor) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.checkInterval
	bo.MaxInterval = m.maxCheckBackoff
	bo.Reset()
	return bo
}

// checkOnce runs one check and returns the delay before the next.
func (m *Monitor) checkOnce(ctx context.Context, bo *backoff.ExponentialBackOff) time.Duration {
	checkCtx, cancel := context.WithTimeout(ctx, m.checkInterval)
	err := m.checker.Check(checkCtx)
	cancel()
	if ctx.Err() != nil {
		return 0
	}

	if err == nil {
		bo.Reset()
		m.SetOnline(true)
		return m.checkInterval
	}

	if m.IsOnline() {
		logging.Warn("Remote store unreachable, switching to offline mode", map[string]interface{}{
			"cause": err.Error(),
		})
		m.SetOnline(false)
	} else {
		m.stillOffline.Do(func() {
			logging.Info("Still offline", map[string]interface{}{"cause": err.Error()})
		})
	}

	wait := bo.NextBackOff()
	if wait == backoff.Stop || wait > m.maxCheckBackoff {
		wait = m.maxCheckBackoff
	}
	return wait
}
