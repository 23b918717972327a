package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/qianghan/docvault/common/apperrors"
	redisWrapper "github.com/qianghan/docvault/common/redis"
)

// RedisStore is the object-storage backend. Blob bytes live under
// "blob:<path>", and a hash side key "blobmeta:<path>" carries the size and
// modification time that Stat reports.
type RedisStore struct {
	redis *redisWrapper.Client
	now   func() time.Time
}

// NewRedisStore creates a Redis-backed blob store.
func NewRedisStore(client *redisWrapper.Client) *RedisStore {
	return &RedisStore{
		redis: client,
		now:   time.Now,
	}
}

// Save writes the full content of r under path.
func (s *RedisStore) Save(ctx context.Context, path string, r io.Reader) error {
	if err := validatePath(path); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob content for %q: %w", path, err)
	}

	if err := s.redis.SetBytes(ctx, dataKey(path), data, 0); err != nil {
		return fmt.Errorf("store blob %q: %w", path, err)
	}

	metaKey := metaKey(path)
	if err := s.redis.SetHash(ctx, metaKey, "size", strconv.FormatInt(int64(len(data)), 10)); err != nil {
		return fmt.Errorf("store blob metadata %q: %w", path, err)
	}
	if err := s.redis.SetHash(ctx, metaKey, "modified_at", s.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("store blob metadata %q: %w", path, err)
	}

	return nil
}

// Get retrieves the blob at path as a reader.
func (s *RedisStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	data, err := s.redis.GetBytes(ctx, dataKey(path))
	if err != nil {
		if errors.Is(err, redisWrapper.ErrKeyNotFound) {
			return nil, apperrors.NewNotFound("blob", path)
		}
		return nil, fmt.Errorf("get blob %q: %w", path, err)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob at path. Deleting an absent blob is a no-op.
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	return s.redis.Delete(ctx, dataKey(path), metaKey(path))
}

// Exists reports whether the blob at path exists.
func (s *RedisStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}
	return s.redis.Exists(ctx, dataKey(path))
}

// Stat returns size and modification time of the blob at path.
func (s *RedisStore) Stat(ctx context.Context, path string) (Info, error) {
	if err := validatePath(path); err != nil {
		return Info{}, err
	}

	fields, err := s.redis.GetAllHash(ctx, metaKey(path))
	if err != nil {
		return Info{}, fmt.Errorf("stat blob %q: %w", path, err)
	}
	if len(fields) == 0 {
		return Info{}, apperrors.NewNotFound("blob", path)
	}

	size, err := strconv.ParseInt(fields["size"], 10, 64)
	if err != nil {
		return Info{}, fmt.Errorf("parse blob size for %q: %w", path, err)
	}
	modifiedAt, err := time.Parse(time.RFC3339Nano, fields["modified_at"])
	if err != nil {
		return Info{}, fmt.Errorf("parse blob mtime for %q: %w", path, err)
	}

	return Info{Size: size, ModifiedAt: modifiedAt}, nil
}

func dataKey(path string) string {
	return "blob:" + path
}

func metaKey(path string) string {
	return "blobmeta:" + path
}
