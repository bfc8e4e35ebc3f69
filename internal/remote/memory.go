package remote

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/models"
)

// ErrInjected is the failure returned by MemoryStore when told to fail.
var ErrInjected = errors.New("remote store unavailable")

// MemoryStore is an in-process remote store for tests and local runs.
type MemoryStore struct {
	mu          sync.Mutex
	records     map[string][]models.Payload
	failNext    int
	failAlways  bool
	failErr     error
	unreachable bool
	calls       int
}

// NewMemoryStore creates an empty, reachable store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]models.Payload)}
}

// Insert stores a copy of record unless a failure is pending.
func (m *MemoryStore) Insert(ctx context.Context, collection string, record models.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failAlways || m.unreachable {
		return m.failure()
	}
	if m.failNext > 0 {
		m.failNext--
		return m.failure()
	}
	m.records[collection] = append(m.records[collection], record.Clone())
	return nil
}

func (m *MemoryStore) failure() error {
	if m.failErr != nil {
		return m.failErr
	}
	return apperrors.Wrap(apperrors.ErrRemoteWrite, "insert", ErrInjected)
}

// Ping fails while the store is marked unreachable.
func (m *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return apperrors.Wrap(apperrors.ErrRemoteUnreachable, "ping", ErrInjected)
	}
	return nil
}

// FailNext makes the next n inserts fail with err (ErrInjected when nil).
func (m *MemoryStore) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

// FailAlways makes every insert fail with err (ErrInjected when nil) until Recover.
func (m *MemoryStore) FailAlways(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAlways = true
	m.failErr = err
}

// SetReachable toggles whether Ping and Insert can reach the store.
func (m *MemoryStore) SetReachable(reachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable = !reachable
}

// Recover clears every injected failure.
func (m *MemoryStore) Recover() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = 0
	m.failAlways = false
	m.failErr = nil
	m.unreachable = false
}

// Records returns the records stored in collection.
func (m *MemoryStore) Records(collection string) []models.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Payload, len(m.records[collection]))
	copy(out, m.records[collection])
	return out
}

// Total returns the number of stored records across collections.
func (m *MemoryStore) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, recs := range m.records {
		n += len(recs)
	}
	return n
}

// Calls returns how many inserts were attempted.
func (m *MemoryStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
