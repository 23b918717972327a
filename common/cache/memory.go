package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qianghan/docvault/common/logger"
)

// Memory is the bounded in-memory tier. Capacity is counted in entries.
// When a Set would grow past capacity, expired entries are dropped first;
// if that is not enough, the least-recently-accessed max(1, capacity/10)
// entries are evicted as a batch to amortize eviction cost.
type Memory struct {
	mu       sync.Mutex
	capacity int
	data     map[string]*memEntry
	now      func() time.Time
	log      *logger.Logger
}

type memEntry struct {
	value       []byte
	createdAt   time.Time
	expiresAt   time.Time // zero means no expiry
	lastAccess  time.Time
	accessCount int64
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithMemoryClock injects a clock, used by tests to control expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates the in-memory tier with the given entry capacity.
func NewMemory(capacity int, log *logger.Logger, opts ...MemoryOption) *Memory {
	m := &Memory{
		capacity: capacity,
		data:     make(map[string]*memEntry),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get retrieves a value from the cache. Expired entries are removed and
// reported as a miss.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}

	now := m.now()
	if e.expired(now) {
		delete(m.data, key)
		return nil, false, nil
	}

	e.lastAccess = now
	e.accessCount++
	return e.value, true, nil
}

// Set stores a value, evicting first when a new key would exceed capacity.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.data[key]; !exists && len(m.data) >= m.capacity {
		m.evictLocked(now)
	}

	e := &memEntry{
		value:      value,
		createdAt:  now,
		lastAccess: now,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.data[key] = e
	return nil
}

// Invalidate removes a single entry.
func (m *Memory) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Clear removes all entries.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]*memEntry)
	return nil
}

// Close releases the cache.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	return nil
}

// Len returns the number of live entries, expired included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// evictLocked frees room for one new entry: drop everything expired, then
// if still at capacity drop the least-recently-accessed batch.
func (m *Memory) evictLocked(now time.Time) {
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
		}
	}

	if len(m.data) < m.capacity {
		return
	}

	type keyed struct {
		key        string
		lastAccess time.Time
	}
	entries := make([]keyed, 0, len(m.data))
	for key, e := range m.data {
		entries = append(entries, keyed{key: key, lastAccess: e.lastAccess})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastAccess.Before(entries[j].lastAccess)
	})

	batch := m.capacity / 10
	if batch < 1 {
		batch = 1
	}
	if batch > len(entries) {
		batch = len(entries)
	}
	for _, e := range entries[:batch] {
		delete(m.data, e.key)
	}

	m.log.Debug("memory cache evicted batch", "count", batch, "remaining", len(m.data))
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}
