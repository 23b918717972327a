package locking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianghan/docvault/common/apperrors"
	"github.com/qianghan/docvault/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func TestWithLock_MutualExclusion(t *testing.T) {
	m := NewManager(time.Second, testLogger())
	ctx := context.Background()

	const goroutines = 20
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, "doc-1", func(ctx context.Context) error {
				// Unsynchronized increment; only safe if the lock is exclusive.
				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, counter)
}

func TestWithLock_TimeoutReturnsConcurrencyError(t *testing.T) {
	m := NewManager(50*time.Millisecond, testLogger())
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		m.WithLock(ctx, "doc-1", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := m.WithLock(ctx, "doc-1", func(ctx context.Context) error {
		t.Fatal("fn must not run when the lock is held")
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConcurrency(err))

	close(release)
}

func TestWithLock_ContextCancellation(t *testing.T) {
	m := NewManager(time.Minute, testLogger())

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		m.WithLock(context.Background(), "doc-1", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.WithLock(ctx, "doc-1", func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, apperrors.IsConcurrency(err))

	close(release)
}

func TestWithLock_IndependentDocumentsDoNotContend(t *testing.T) {
	m := NewManager(100*time.Millisecond, testLogger())
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		m.WithLock(ctx, "doc-1", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// A different document acquires immediately even while doc-1 is held.
	err := m.WithLock(ctx, "doc-2", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)

	close(release)
}

func TestWithLock_TableIsGarbageCollected(t *testing.T) {
	m := NewManager(time.Second, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			docID := string(rune('a' + n))
			for j := 0; j < 5; j++ {
				m.WithLock(ctx, docID, func(ctx context.Context) error { return nil })
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, m.Size())
}

func TestWithLock_ReleasedOnError(t *testing.T) {
	m := NewManager(time.Second, testLogger())
	ctx := context.Background()

	err := m.WithLock(ctx, "doc-1", func(ctx context.Context) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	// The failed call must not leave the lock held.
	err = m.WithLock(ctx, "doc-1", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, 0, m.Size())
}
