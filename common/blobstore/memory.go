package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/qianghan/docvault/common/apperrors"
)

// Memory is an in-memory blob store used by tests and the "memory" backend.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
	now   func() time.Time
}

type memBlob struct {
	data       []byte
	modifiedAt time.Time
}

// NewMemory creates an in-memory blob store.
func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string]memBlob),
		now:   time.Now,
	}
}

func (m *Memory) Save(ctx context.Context, path string, r io.Reader) error {
	if err := validatePath(path); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = memBlob{data: data, modifiedAt: m.now()}
	return nil
}

func (m *Memory) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[path]
	if !ok {
		return nil, apperrors.NewNotFound("blob", path)
	}
	return io.NopCloser(bytes.NewReader(blob.data)), nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[path]
	return ok, nil
}

func (m *Memory) Stat(ctx context.Context, path string) (Info, error) {
	if err := validatePath(path); err != nil {
		return Info{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[path]
	if !ok {
		return Info{}, apperrors.NewNotFound("blob", path)
	}
	return Info{Size: int64(len(blob.data)), ModifiedAt: blob.modifiedAt}, nil
}
