package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *recorder) listen(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, online)
}

func (r *recorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func TestMonitor_InitialState(t *testing.T) {
	assert.True(t, NewMonitor(true).IsOnline())
	assert.False(t, NewMonitor(false).IsOnline())
}

func TestMonitor_NotifiesOncePerTransition(t *testing.T) {
	m := NewMonitor(false)
	r := &recorder{}
	m.Subscribe(r.listen)

	m.SetOnline(false)
	m.SetOnline(true)
	m.SetOnline(true)
	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(false)
	m.SetOnline(true)

	assert.Equal(t, []bool{true, false, true}, r.get())
	assert.True(t, m.IsOnline())
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(false)
	first, second := &recorder{}, &recorder{}
	unsubscribe := m.Subscribe(first.listen)
	m.Subscribe(second.listen)

	m.SetOnline(true)
	unsubscribe()
	unsubscribe()
	m.SetOnline(false)

	assert.Equal(t, []bool{true}, first.get())
	assert.Equal(t, []bool{true, false}, second.get())
}

func TestMonitor_SubscriptionOrder(t *testing.T) {
	m := NewMonitor(false)
	var order []int
	m.Subscribe(func(bool) { order = append(order, 1) })
	m.Subscribe(func(bool) { order = append(order, 2) })
	m.Subscribe(func(bool) { order = append(order, 3) })

	m.SetOnline(true)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestMonitor_ConcurrentSetOnline(t *testing.T) {
	m := NewMonitor(false)
	r := &recorder{}
	m.Subscribe(r.listen)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.SetOnline(i%2 == 0)
		}(i)
	}
	wg.Wait()

	events := r.get()
	for i := 1; i < len(events); i++ {
		assert.NotEqual(t, events[i-1], events[i], "consecutive notifications must alternate")
	}
	if len(events) > 0 {
		assert.Equal(t, m.IsOnline(), events[len(events)-1])
	}
}

func TestMonitor_Watch(t *testing.T) {
	m := NewMonitor(false)
	ctx, cancel := context.WithCancel(context.Background())
	ch := m.Watch(ctx)

	m.SetOnline(true)
	m.SetOnline(false)

	assert.True(t, <-ch)
	assert.False(t, <-ch)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	m.SetOnline(true) // no panic on the closed channel
}

func TestMonitor_WatchKeepsLatest(t *testing.T) {
	m := NewMonitor(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := m.Watch(ctx)

	for i := 0; i < 3*watchBuffer+1; i++ {
		m.SetOnline(!m.IsOnline())
	}

	var last bool
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, m.IsOnline(), last)
}

func TestMonitor_RunRequiresChecker(t *testing.T) {
	err := NewMonitor(true).Run(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig))
}

func TestMonitor_RunTracksCheck(t *testing.T) {
	var reachable atomic.Bool
	var checks atomic.Int32
	checker := CheckFunc(func(context.Context) error {
		checks.Add(1)
		if reachable.Load() {
			return nil
		}
		return errors.New("dial tcp: connection refused")
	})

	m := NewMonitor(true,
		WithChecker(checker),
		WithCheckInterval(5*time.Millisecond),
		WithMaxCheckBackoff(20*time.Millisecond),
	)
	r := &recorder{}
	m.Subscribe(r.listen)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return checks.Load() >= 3 }, time.Second, time.Millisecond,
		"keeps checking while offline")

	reachable.Store(true)
	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []bool{false, true}, r.get())
}

func TestMonitor_CheckBackoffCapped(t *testing.T) {
	m := NewMonitor(false,
		WithChecker(CheckFunc(func(context.Context) error { return errors.New("down") })),
		WithCheckInterval(10*time.Millisecond),
		WithMaxCheckBackoff(40*time.Millisecond),
	)

	bo := m.newBackoff()
	bo.RandomizationFactor = 0
	var prev time.Duration
	for i := 0; i < 20; i++ {
		wait := m.checkOnce(context.Background(), bo)
		assert.LessOrEqual(t, wait, 40*time.Millisecond)
		assert.Greater(t, wait, time.Duration(0))
		prev = wait
	}
	assert.Equal(t, 40*time.Millisecond, prev, "reaches the cap")
}

func TestMonitor_MaxBackoffNotBelowInterval(t *testing.T) {
	m := NewMonitor(true, WithCheckInterval(time.Minute), WithMaxCheckBackoff(time.Second))
	assert.Equal(t, time.Minute, m.maxCheckBackoff)
}
