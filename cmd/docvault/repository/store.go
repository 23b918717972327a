// Package repository implements the metadata store: documents and version
// records, with transactional scopes the services compose with document
// locks. Backends: Postgres (pgx) and an in-memory store for tests and the
// "memory" configuration.
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/qianghan/docvault/cmd/docvault/models"
)

// DefaultBatchSize is used when RunInBatches is called with a non-positive size.
const DefaultBatchSize = 100

// Store is the metadata persistence surface the services depend on.
// Implementations return apperrors.NotFoundError for absent records and
// wrap backend failures as apperrors.StorageError at the WithTx boundary.
type Store interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	SaveDocument(ctx context.Context, doc *models.Document) error
	ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, metadata models.Metadata) error

	ListVersions(ctx context.Context, docID uuid.UUID) ([]*models.Version, error)
	GetVersion(ctx context.Context, docID, versionID uuid.UUID) (*models.Version, error)
	GetVersionByNumber(ctx context.Context, docID uuid.UUID, seq int) (*models.Version, error)
	SaveVersion(ctx context.Context, v *models.Version) error
	DeleteVersion(ctx context.Context, docID, versionID uuid.UUID) error

	// WithTx runs fn inside an atomic transaction: any error from fn aborts
	// every metadata write fn made. Domain errors propagate unchanged;
	// anything else surfaces as a StorageError wrapping the cause.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// RunInBatches partitions items and runs fn once per batch, each batch in
// its own transaction. The first failing batch aborts its own writes and
// stops the run; the returned error names the failing batch.
func RunInBatches[T any](ctx context.Context, store Store, items []T, batchSize int, fn func(ctx context.Context, tx Store, batch []T) error) error {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		if err := store.WithTx(ctx, func(ctx context.Context, tx Store) error {
			return fn(ctx, tx, batch)
		}); err != nil {
			return fmt.Errorf("batch %d (items %d..%d): %w", start/batchSize, start, end-1, err)
		}
	}

	return nil
}
