package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// UploadSession tracks one resumable chunked upload. Chunks may arrive out
// of order and may be resent; every chunk index i covers the byte range
// [i*ChunkSize, min((i+1)*ChunkSize, TotalSize)) of the spooled temp file.
// Mutation of the received set is serialized by the upload service; the
// model itself is plain data.
type UploadSession struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	TotalSize   int64     `json:"total_size"`
	MimeType    string    `json:"mime_type"`
	ChunkSize   int64     `json:"chunk_size"`
	ChunksTotal int       `json:"chunks_total"`
	TempPath    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`

	Received map[int]struct{} `json:"-"`
}

// NewUploadSession builds a session with ChunksTotal = ceil(total/chunk).
func NewUploadSession(filename string, totalSize int64, mimeType string, chunkSize int64, tempPath string, now time.Time, ttl time.Duration) *UploadSession {
	return &UploadSession{
		ID:          uuid.New(),
		Filename:    filename,
		TotalSize:   totalSize,
		MimeType:    mimeType,
		ChunkSize:   chunkSize,
		ChunksTotal: int((totalSize + chunkSize - 1) / chunkSize),
		TempPath:    tempPath,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Received:    make(map[int]struct{}),
	}
}

// MarkReceived records chunk index as received. Resends are idempotent.
func (s *UploadSession) MarkReceived(index int) {
	s.Received[index] = struct{}{}
}

// ChunksReceived returns how many distinct chunks have arrived.
func (s *UploadSession) ChunksReceived() int {
	return len(s.Received)
}

// IsComplete reports whether every index in [0, ChunksTotal) has arrived.
func (s *UploadSession) IsComplete() bool {
	return len(s.Received) == s.ChunksTotal
}

// MissingChunks returns the sorted indices not yet received.
func (s *UploadSession) MissingChunks() []int {
	missing := make([]int, 0, s.ChunksTotal-len(s.Received))
	for i := 0; i < s.ChunksTotal; i++ {
		if _, ok := s.Received[i]; !ok {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing
}

// IsExpired reports whether the session's expiry has passed.
func (s *UploadSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// UploadProgress is returned after each chunk write.
type UploadProgress struct {
	SessionID   uuid.UUID `json:"session_id"`
	Received    int       `json:"received"`
	ChunksTotal int       `json:"chunks_total"`
	Complete    bool      `json:"complete"`
}
