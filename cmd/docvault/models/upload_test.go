package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUploadSession_ChunkMath(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name        string
		totalSize   int64
		chunkSize   int64
		chunksTotal int
	}{
		{"even split", 10 << 20, 1 << 20, 10},
		{"remainder chunk", (10 << 20) + 1, 1 << 20, 11},
		{"single partial chunk", 100, 1 << 20, 1},
		{"exact single chunk", 1 << 20, 1 << 20, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewUploadSession("f.bin", tc.totalSize, "application/octet-stream", tc.chunkSize, "/tmp/x", now, time.Hour)
			assert.Equal(t, tc.chunksTotal, s.ChunksTotal)
		})
	}
}

func TestUploadSession_ReceivedTracking(t *testing.T) {
	s := NewUploadSession("f.bin", 5<<20, "application/octet-stream", 1<<20, "/tmp/x", time.Now(), time.Hour)
	require.Equal(t, 5, s.ChunksTotal)

	// Out-of-order arrival.
	for _, i := range []int{3, 1, 0} {
		s.MarkReceived(i)
	}
	assert.Equal(t, 3, s.ChunksReceived())
	assert.False(t, s.IsComplete())
	assert.Equal(t, []int{2, 4}, s.MissingChunks())

	// Resends do not double-count.
	s.MarkReceived(1)
	assert.Equal(t, 3, s.ChunksReceived())

	s.MarkReceived(2)
	s.MarkReceived(4)
	assert.True(t, s.IsComplete())
	assert.Empty(t, s.MissingChunks())
}

func TestUploadSession_Expiry(t *testing.T) {
	now := time.Now()
	s := NewUploadSession("f.bin", 100, "text/plain", 50, "/tmp/x", now, time.Hour)

	assert.False(t, s.IsExpired(now))
	assert.False(t, s.IsExpired(now.Add(59*time.Minute)))
	assert.True(t, s.IsExpired(now.Add(61*time.Minute)))
}
