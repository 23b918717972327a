package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianghan/docvault/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(10, testLogger())
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	_, ok, err = m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := NewMemory(10, testLogger(), WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	// Still fresh just before expiry.
	clock.Advance(59 * time.Second)
	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	// Expired entries are removed on access and reported as a miss.
	clock.Advance(2 * time.Second)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_EvictsExpiredBeforeLRU(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := NewMemory(3, testLogger(), WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, m.Set(ctx, "a", []byte("x"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("x"), 0))

	clock.Advance(2 * time.Second)

	// Dropping the expired entry makes room; the live ones survive.
	require.NoError(t, m.Set(ctx, "c", []byte("x"), 0))

	for _, key := range []string{"a", "b", "c"} {
		_, ok, err := m.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "key %s should survive eviction", key)
	}
}

func TestMemory_LRUBatchEviction(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := NewMemory(20, testLogger(), WithMemoryClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("k%d", i), []byte("x"), 0))
		clock.Advance(time.Second)
	}

	// Touch the oldest keys so they become the most recently used.
	for i := 0; i < 5; i++ {
		_, ok, err := m.Get(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		clock.Advance(time.Second)
	}

	// Capacity 20 is full: the next insert evicts a batch of 20/10 = 2,
	// taking the least-recently-accessed keys (k5, k6).
	require.NoError(t, m.Set(ctx, "new", []byte("x"), 0))

	_, ok, _ := m.Get(ctx, "k5")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "k6")
	assert.False(t, ok)

	// The recently touched old keys survive.
	_, ok, _ = m.Get(ctx, "k0")
	assert.True(t, ok)
	_, ok, _ = m.Get(ctx, "new")
	assert.True(t, ok)
}

func TestMemory_InvalidateAndClear(t *testing.T) {
	m := NewMemory(10, testLogger())
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("x"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("x"), 0))

	require.NoError(t, m.Invalidate(ctx, "a"))
	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, m.Clear(ctx))
	assert.Equal(t, 0, m.Len())
}

func TestMemory_OverwriteDoesNotEvict(t *testing.T) {
	m := NewMemory(2, testLogger())
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("1"), 0))

	// Re-setting an existing key at capacity must not evict anything.
	require.NoError(t, m.Set(ctx, "a", []byte("2"), 0))

	got, ok, _ := m.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []byte("2"), got)
	_, ok, _ = m.Get(ctx, "b")
	assert.True(t, ok)
}
