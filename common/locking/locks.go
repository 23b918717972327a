// Package locking provides per-document mutual exclusion with a bounded
// acquisition wait. Locks are scoped to a single document id so unrelated
// documents never contend; entries are refcounted and garbage-collected when
// the last holder or waiter releases, keeping the table bounded.
package locking

import (
	"context"
	"sync"
	"time"

	"github.com/qianghan/docvault/common/apperrors"
	"github.com/qianghan/docvault/common/logger"
)

// DefaultAcquireTimeout bounds how long a caller waits for a document lock.
const DefaultAcquireTimeout = 5 * time.Second

// Manager owns the per-document lock table.
type Manager struct {
	mu      sync.Mutex
	locks   map[string]*entry
	timeout time.Duration
	log     *logger.Logger
}

type entry struct {
	sem  chan struct{} // 1-buffered; holding the token means holding the lock
	refs int           // holders + waiters; entry is removed at zero
}

// NewManager creates a lock manager. A non-positive timeout falls back to
// DefaultAcquireTimeout.
func NewManager(timeout time.Duration, log *logger.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &Manager{
		locks:   make(map[string]*entry),
		timeout: timeout,
		log:     log,
	}
}

// WithLock runs fn while holding the exclusive lock for docID. If the lock
// cannot be acquired within the configured bound (or ctx is cancelled first),
// it returns a ConcurrencyError without running fn. The lock is released on
// every exit path.
func (m *Manager) WithLock(ctx context.Context, docID string, fn func(ctx context.Context) error) error {
	e := m.acquireEntry(docID)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
	case <-timer.C:
		m.releaseEntry(docID, e)
		m.log.Warn("document lock wait timed out", "doc_id", docID, "timeout", m.timeout)
		return &apperrors.ConcurrencyError{Resource: "document " + docID}
	case <-ctx.Done():
		m.releaseEntry(docID, e)
		return &apperrors.ConcurrencyError{Resource: "document " + docID}
	}

	defer func() {
		<-e.sem
		m.releaseEntry(docID, e)
	}()

	return fn(ctx)
}

// acquireEntry returns the lock entry for docID, creating it on first use,
// and records the caller as a holder-or-waiter.
func (m *Manager) acquireEntry(docID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locks[docID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.locks[docID] = e
	}
	e.refs++
	return e
}

// releaseEntry drops one reference and removes the entry once nobody holds
// or waits on it.
func (m *Manager) releaseEntry(docID string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.locks, docID)
	}
}

// Size returns the number of live lock entries. Used by tests and telemetry.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
