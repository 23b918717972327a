package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomBytes returns incompressible data so stored sizes track input sizes.
func randomBytes(t *testing.T, rng *rand.Rand, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rng.Read(buf)
	require.NoError(t, err)
	return buf
}

func TestDisk_SetGetRoundtrip(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 1<<20, testLogger())
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	value := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, d.Set(ctx, "k", value, 0))

	got, ok, err := d.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, got)

	_, ok, err = d.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisk_TTLExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	d, err := NewDisk(t.TempDir(), 1<<20, testLogger(), WithDiskClock(clock.Now))
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	require.NoError(t, d.Set(ctx, "k", []byte("v"), time.Minute))

	clock.Advance(30 * time.Second)
	_, ok, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok, err = d.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Expired entries release their budget share when collected.
	assert.Equal(t, int64(0), d.Usage())
}

func TestDisk_SweepHoldsBudget(t *testing.T) {
	const budget = int64(10_000)
	clock := &fakeClock{now: time.Now()}
	d, err := NewDisk(t.TempDir(), budget, testLogger(), WithDiskClock(clock.Now))
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 30; i++ {
		require.NoError(t, d.Set(ctx, fmt.Sprintf("k%d", i), randomBytes(t, rng, 1000), 0))
		clock.Advance(time.Second)
	}

	assert.LessOrEqual(t, d.Usage(), budget)

	// A sweep drives usage to at most 80% of the budget before the write
	// that triggered it lands.
	require.NoError(t, d.Set(ctx, "trigger", randomBytes(t, rng, 1000), 0))
	assert.LessOrEqual(t, d.Usage(), budget)
}

func TestDisk_SweepEvictsOldestAccessedFirst(t *testing.T) {
	const budget = int64(5_000)
	clock := &fakeClock{now: time.Now()}
	d, err := NewDisk(t.TempDir(), budget, testLogger(), WithDiskClock(clock.Now))
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 4; i++ {
		require.NoError(t, d.Set(ctx, fmt.Sprintf("k%d", i), randomBytes(t, rng, 1000), 0))
		clock.Advance(time.Second)
	}

	// Touch k0 so k1 becomes the oldest-accessed entry.
	_, ok, err := d.Get(ctx, "k0")
	require.NoError(t, err)
	require.True(t, ok)
	clock.Advance(time.Second)

	// This write overflows the budget and forces a sweep.
	require.NoError(t, d.Set(ctx, "k4", randomBytes(t, rng, 1000), 0))

	_, ok, err = d.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "oldest-accessed entry should be evicted first")

	_, ok, err = d.Get(ctx, "k0")
	require.NoError(t, err)
	assert.True(t, ok, "recently accessed entry should survive")
}

func TestDisk_SetStreamRestoresPosition(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 1<<20, testLogger())
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	content := []byte("0123456789")
	rs := bytes.NewReader(content)

	// Consume part of the stream before caching.
	head := make([]byte, 4)
	_, err = io.ReadFull(rs, head)
	require.NoError(t, err)

	require.NoError(t, d.SetStream(ctx, "k", rs, 0))

	// The full content is cached.
	got, ok, err := d.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, content, got)

	// The caller's cursor is where it was left.
	rest, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, []byte("456789"), rest)
}

func TestDisk_UsageSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d, err := NewDisk(dir, 1<<20, testLogger())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	require.NoError(t, d.Set(ctx, "a", randomBytes(t, rng, 500), 0))
	require.NoError(t, d.Set(ctx, "b", randomBytes(t, rng, 500), 0))
	usage := d.Usage()
	require.NoError(t, d.Close())

	reopened, err := NewDisk(dir, 1<<20, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, usage, reopened.Usage())

	got, ok, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 500)
}

func TestDisk_InvalidateReleasesBudget(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 1<<20, testLogger())
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	require.NoError(t, d.Set(ctx, "k", []byte("value"), 0))
	require.Greater(t, d.Usage(), int64(0))

	require.NoError(t, d.Invalidate(ctx, "k"))
	assert.Equal(t, int64(0), d.Usage())

	// Invalidating a missing key is a no-op.
	assert.NoError(t, d.Invalidate(ctx, "missing"))
}
