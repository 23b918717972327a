package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/common/apperrors"
	"github.com/qianghan/docvault/common/logger"
)

// UploadService manages resumable chunked upload sessions. Each session
// spools into a preallocated temp file; chunks write disjoint byte ranges,
// so they may arrive concurrently and out of order. A session ends in
// exactly one of completion, cancellation or expiry sweep, and all three
// release the temp file.
type UploadService struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*uploadSession

	spoolDir         string
	defaultChunkSize int64
	sessionTTL       time.Duration
	sweepInterval    time.Duration
	now              func() time.Time
	log              *logger.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

type uploadSession struct {
	mu    sync.Mutex
	model *models.UploadSession
	file  *os.File
}

// UploadOption configures an UploadService.
type UploadOption func(*UploadService)

// WithUploadClock injects a clock, used by tests to control expiry.
func WithUploadClock(now func() time.Time) UploadOption {
	return func(s *UploadService) {
		s.now = now
	}
}

// NewUploadService creates the upload session manager spooling into spoolDir.
func NewUploadService(spoolDir string, defaultChunkSize int64, sessionTTL, sweepInterval time.Duration, log *logger.Logger, opts ...UploadOption) (*UploadService, error) {
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload spool dir: %w", err)
	}

	s := &UploadService{
		sessions:         make(map[uuid.UUID]*uploadSession),
		spoolDir:         spoolDir,
		defaultChunkSize: defaultChunkSize,
		sessionTTL:       sessionTTL,
		sweepInterval:    sweepInterval,
		now:              time.Now,
		log:              log,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateSession opens a new upload session and preallocates its temp file.
func (s *UploadService) CreateSession(ctx context.Context, filename string, totalSize int64, mimeType string, chunkSize int64) (*models.UploadSession, error) {
	if filename == "" {
		return nil, apperrors.NewValidation("filename is required")
	}
	if totalSize <= 0 {
		return nil, apperrors.NewValidation("total size must be positive")
	}
	if mimeType == "" {
		return nil, apperrors.NewValidation("mime type is required")
	}
	if chunkSize <= 0 {
		chunkSize = s.defaultChunkSize
	}

	f, err := os.CreateTemp(s.spoolDir, "upload-*")
	if err != nil {
		return nil, apperrors.WrapStorage("create upload spool file", filename, err)
	}
	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, apperrors.WrapStorage("preallocate upload spool file", filename, err)
	}

	model := models.NewUploadSession(filename, totalSize, mimeType, chunkSize, f.Name(), s.now(), s.sessionTTL)

	s.mu.Lock()
	s.sessions[model.ID] = &uploadSession{model: model, file: f}
	s.mu.Unlock()

	s.log.Info("upload session created",
		"session_id", model.ID,
		"filename", filename,
		"total_size", totalSize,
		"chunks_total", model.ChunksTotal,
	)
	return model, nil
}

// UploadChunk writes one chunk at its byte offset and marks it received.
// Resending an index is idempotent: the same byte range is overwritten.
func (s *UploadService) UploadChunk(ctx context.Context, sessionID uuid.UUID, index int, data []byte) (*models.UploadProgress, error) {
	sess, err := s.liveSession(sessionID)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= sess.model.ChunksTotal {
		return nil, apperrors.NewValidation("chunk index %d out of range: expected 0-%d", index, sess.model.ChunksTotal-1)
	}

	expected := s.chunkLen(sess.model, index)
	if int64(len(data)) != expected {
		return nil, apperrors.NewValidation("chunk %d must be %d bytes, got %d", index, expected, len(data))
	}

	// Disjoint ranges; WriteAt needs no session lock.
	offset := int64(index) * sess.model.ChunkSize
	if _, err := sess.file.WriteAt(data, offset); err != nil {
		return nil, apperrors.WrapStorage("write chunk", sessionID.String(), err)
	}

	sess.mu.Lock()
	sess.model.MarkReceived(index)
	received := sess.model.ChunksReceived()
	complete := sess.model.IsComplete()
	sess.mu.Unlock()

	return &models.UploadProgress{
		SessionID:   sessionID,
		Received:    received,
		ChunksTotal: sess.model.ChunksTotal,
		Complete:    complete,
	}, nil
}

// GetSession returns a snapshot of the session if it exists and has not
// expired. The snapshot is safe to read while chunks keep arriving.
func (s *UploadService) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.UploadSession, error) {
	sess, err := s.liveSession(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	snapshot := *sess.model
	snapshot.Received = make(map[int]struct{}, len(sess.model.Received))
	for i := range sess.model.Received {
		snapshot.Received[i] = struct{}{}
	}
	sess.mu.Unlock()

	return &snapshot, nil
}

// CompleteUpload hands the assembled content to the caller, who becomes
// responsible for it: closing the returned reader releases the temp file.
func (s *UploadService) CompleteUpload(ctx context.Context, sessionID uuid.UUID) (io.ReadCloser, *models.UploadSession, error) {
	sess, err := s.liveSession(sessionID)
	if err != nil {
		return nil, nil, err
	}

	sess.mu.Lock()
	complete := sess.model.IsComplete()
	missing := sess.model.MissingChunks()
	sess.mu.Unlock()

	if !complete {
		if len(missing) > 8 {
			return nil, nil, apperrors.NewValidation("upload incomplete: %d chunks missing (first: %v)", len(missing), missing[:8])
		}
		return nil, nil, apperrors.NewValidation("upload incomplete: missing chunks %v", missing)
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if _, err := sess.file.Seek(0, io.SeekStart); err != nil {
		s.release(sess)
		return nil, nil, apperrors.WrapStorage("rewind upload spool file", sessionID.String(), err)
	}

	s.log.Info("upload session completed", "session_id", sessionID, "filename", sess.model.Filename)
	return &spoolReader{file: sess.file, path: sess.model.TempPath}, sess.model, nil
}

// CancelUpload releases the temp file and removes the session immediately.
func (s *UploadService) CancelUpload(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return apperrors.NewNotFound("upload_session", sessionID.String())
	}

	s.release(sess)
	s.log.Info("upload session cancelled", "session_id", sessionID)
	return nil
}

// Start launches the background expiry sweep.
func (s *UploadService) Start() {
	go s.sweepLoop()
}

// Stop cancels the sweep loop and waits for it to drain.
func (s *UploadService) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// SweepExpired releases every expired session. An error on one session is
// logged and must not stop the sweep for the others.
func (s *UploadService) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	expired := make([]*uploadSession, 0)
	for id, sess := range s.sessions {
		if sess.model.IsExpired(now) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.release(sess)
		s.log.Info("expired upload session reclaimed", "session_id", sess.model.ID, "filename", sess.model.Filename)
	}
	return len(expired)
}

func (s *UploadService) sweepLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			// Drain on shutdown so no temp file outlives the process.
			s.releaseAll()
			return
		case <-ticker.C:
			if n := s.SweepExpired(); n > 0 {
				s.log.Debug("upload sweep complete", "reclaimed", n)
			}
		}
	}
}

// liveSession returns the session or a NotFoundError. Looking up an expired
// session reclaims it as a side effect and reports it missing.
func (s *UploadService) liveSession(sessionID uuid.UUID) (*uploadSession, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok && sess.model.IsExpired(s.now()) {
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		s.release(sess)
		return nil, apperrors.NewNotFound("upload_session", sessionID.String())
	}
	s.mu.Unlock()

	if !ok {
		return nil, apperrors.NewNotFound("upload_session", sessionID.String())
	}
	return sess, nil
}

func (s *UploadService) releaseAll() {
	s.mu.Lock()
	sessions := make([]*uploadSession, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		s.release(sess)
	}
}

func (s *UploadService) release(sess *uploadSession) {
	if err := sess.file.Close(); err != nil {
		s.log.Warn("failed to close upload spool file", "session_id", sess.model.ID, "error", err)
	}
	if err := os.Remove(sess.model.TempPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove upload spool file", "session_id", sess.model.ID, "path", sess.model.TempPath, "error", err)
	}
}

func (s *UploadService) chunkLen(model *models.UploadSession, index int) int64 {
	start := int64(index) * model.ChunkSize
	remaining := model.TotalSize - start
	if remaining < model.ChunkSize {
		return remaining
	}
	return model.ChunkSize
}

// spoolReader owns a completed upload's temp file: closing it closes the
// handle and removes the file.
type spoolReader struct {
	file *os.File
	path string
}

func (r *spoolReader) Read(p []byte) (int, error) {
	return r.file.Read(p)
}

// Seek lets downstream consumers (content caching) treat the assembled
// upload as a seekable stream.
func (r *spoolReader) Seek(offset int64, whence int) (int64, error) {
	return r.file.Seek(offset, whence)
}

func (r *spoolReader) Close() error {
	err := r.file.Close()
	if rmErr := os.Remove(r.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
