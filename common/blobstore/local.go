package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/qianghan/docvault/common/apperrors"
)

const (
	blobDirName = "blobs"
	tempDirName = ".tmp"
)

// Local stores blobs on the filesystem. Paths are hashed into a two-level
// directory layout so large stores never overload a single directory, and
// writes go through a temp file plus rename so a blob is either fully
// present or absent.
type Local struct {
	root string
}

// NewLocal creates a filesystem-backed blob store rooted at root.
func NewLocal(root string) (*Local, error) {
	root = filepath.Clean(root)

	if err := os.MkdirAll(filepath.Join(root, blobDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating blobs directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	return &Local{root: root}, nil
}

// Save writes the full content of r under path.
func (l *Local) Save(ctx context.Context, path string, r io.Reader) error {
	if err := validatePath(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, tempDirName), "blob-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp blob for %q: %w", path, err)
	}

	dest := l.storagePath(path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create shard directory for %q: %w", path, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("commit blob %q: %w", path, err)
	}

	return nil
}

// Get opens the blob at path for reading.
func (l *Local) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(l.storagePath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFound("blob", path)
		}
		return nil, fmt.Errorf("open blob %q: %w", path, err)
	}
	return f, nil
}

// Delete removes the blob at path. Deleting an absent blob is a no-op.
func (l *Local) Delete(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	dest := l.storagePath(path)
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %q: %w", path, err)
	}

	l.cleanupEmptyDirs(dest)
	return nil
}

// Exists reports whether the blob at path exists.
func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}

	_, err := os.Stat(l.storagePath(path))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob %q: %w", path, err)
	}
	return true, nil
}

// Stat returns size and modification time of the blob at path.
func (l *Local) Stat(ctx context.Context, path string) (Info, error) {
	if err := validatePath(path); err != nil {
		return Info{}, err
	}

	fi, err := os.Stat(l.storagePath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, apperrors.NewNotFound("blob", path)
		}
		return Info{}, fmt.Errorf("stat blob %q: %w", path, err)
	}

	return Info{Size: fi.Size(), ModifiedAt: fi.ModTime()}, nil
}

// storagePath maps a logical blob path onto the sharded on-disk layout.
func (l *Local) storagePath(path string) string {
	sum := sha256.Sum256([]byte(path))
	hash := hex.EncodeToString(sum[:])
	return filepath.Join(l.root, blobDirName, hash[:2], hash[2:4], hash)
}

// cleanupEmptyDirs removes empty shard directories left behind by Delete,
// stopping at the first non-empty parent.
func (l *Local) cleanupEmptyDirs(path string) {
	blobsDir := filepath.Join(l.root, blobDirName)
	parent := filepath.Dir(path)

	for parent != blobsDir && parent != l.root && parent != "." && parent != "/" {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(parent); err != nil {
			break
		}
		parent = filepath.Dir(parent)
	}
}
