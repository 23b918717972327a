// Package blobstore provides byte-oriented storage with pluggable backends.
// Version blobs are written once and never mutated in place, so readers of
// sealed content never need coordination with writers.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Info describes a stored blob.
type Info struct {
	Size       int64
	ModifiedAt time.Time
}

// Store is the capability surface the core requires from blob storage.
// A missing blob surfaces as apperrors.NotFoundError from Get and Stat.
type Store interface {
	Save(ctx context.Context, path string, r io.Reader) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	Stat(ctx context.Context, path string) (Info, error)
}

const maxPathLength = 1024

// validatePath rejects keys that could escape the backend's namespace.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("blob path cannot be empty")
	}
	if len(path) > maxPathLength {
		return fmt.Errorf("blob path exceeds %d characters", maxPathLength)
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute blob paths are not allowed")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("blob path must not contain '..'")
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("blob path must not contain null bytes")
	}
	return nil
}
