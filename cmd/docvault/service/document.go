package service

import (
	"context"
	"encoding/json"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/cmd/docvault/repository"
	"github.com/qianghan/docvault/common/apperrors"
	"github.com/qianghan/docvault/common/blobstore"
	"github.com/qianghan/docvault/common/cache"
	"github.com/qianghan/docvault/common/locking"
	"github.com/qianghan/docvault/common/logger"
)

// purgeBatchSize bounds how many version records one purge transaction touches.
const purgeBatchSize = 50

// DocumentService manages document lifecycle: creation, cached reads,
// metadata merge-patching and deletion with batched version purge.
type DocumentService struct {
	store     repository.Store
	blobs     blobstore.Store
	locks     *locking.Manager
	metaCache cache.Cache
	cacheTTL  time.Duration
	log       *logger.Logger
}

// NewDocumentService creates a document service. metaCache may be nil.
func NewDocumentService(
	store repository.Store,
	blobs blobstore.Store,
	locks *locking.Manager,
	metaCache cache.Cache,
	cacheTTL time.Duration,
	log *logger.Logger,
) *DocumentService {
	return &DocumentService{
		store:     store,
		blobs:     blobs,
		locks:     locks,
		metaCache: metaCache,
		cacheTTL:  cacheTTL,
		log:       log,
	}
}

// CreateDocument registers a new document in the processing state. It holds
// no versions yet; the first CreateVersion moves it to ready.
func (s *DocumentService) CreateDocument(ctx context.Context, ownerID string, metadata models.Metadata) (*models.Document, error) {
	if ownerID == "" {
		return nil, apperrors.NewValidation("owner id is required")
	}
	if err := metadata.Validate(); err != nil {
		return nil, apperrors.NewValidation("invalid document metadata: %v", err)
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Status:    models.StatusProcessing,
		Metadata:  metadata.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, apperrors.WrapStorage("save document", doc.ID.String(), err)
	}

	s.log.Info("document created", "doc_id", doc.ID, "owner_id", ownerID)
	return doc, nil
}

// GetDocument retrieves a document, serving from the metadata cache when
// possible.
func (s *DocumentService) GetDocument(ctx context.Context, docID uuid.UUID) (*models.Document, error) {
	key := documentCacheKey(docID)

	if s.metaCache != nil {
		if data, ok, err := s.metaCache.Get(ctx, key); err == nil && ok {
			doc := &models.Document{}
			if err := json.Unmarshal(data, doc); err == nil {
				return doc, nil
			}
			// Undecodable entry; fall through to storage and rewrite it.
			s.metaCache.Invalidate(ctx, key)
		}
	}

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	if s.metaCache != nil {
		if data, err := json.Marshal(doc); err == nil {
			if err := s.metaCache.Set(ctx, key, data, s.cacheTTL); err != nil {
				s.log.Warn("failed to cache document", "doc_id", docID, "error", err)
			}
		}
	}

	return doc, nil
}

// ListDocuments lists documents, optionally filtered by owner.
func (s *DocumentService) ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error) {
	return s.store.ListDocuments(ctx, ownerID)
}

// UpdateMetadata applies an RFC 7386 JSON merge patch to the document's
// metadata map under the document lock.
func (s *DocumentService) UpdateMetadata(ctx context.Context, docID uuid.UUID, patch []byte) (*models.Document, error) {
	var updated *models.Document

	err := s.locks.WithLock(ctx, docID.String(), func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			doc, err := tx.GetDocument(ctx, docID)
			if err != nil {
				return err
			}

			current, err := json.Marshal(doc.Metadata)
			if err != nil {
				return apperrors.WrapStorage("encode metadata", docID.String(), err)
			}

			merged, err := jsonpatch.MergePatch(current, patch)
			if err != nil {
				return apperrors.NewValidation("invalid metadata patch: %v", err)
			}

			var metadata models.Metadata
			if err := json.Unmarshal(merged, &metadata); err != nil {
				return apperrors.NewValidation("metadata patch produced an invalid map: %v", err)
			}
			if err := metadata.Validate(); err != nil {
				return apperrors.NewValidation("metadata patch produced disallowed values: %v", err)
			}

			if err := tx.UpdateMetadata(ctx, docID, metadata); err != nil {
				return apperrors.WrapStorage("update metadata", docID.String(), err)
			}

			doc.Metadata = metadata
			updated = doc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metaCache != nil {
		s.metaCache.Invalidate(ctx, documentCacheKey(docID))
	}

	s.log.Info("document metadata updated", "doc_id", docID)
	return updated, nil
}

// SetStatus transitions the document lifecycle state.
func (s *DocumentService) SetStatus(ctx context.Context, docID uuid.UUID, status models.DocumentStatus) (*models.Document, error) {
	if !models.ValidStatus(status) {
		return nil, apperrors.NewValidation("unknown document status %q", status)
	}

	var updated *models.Document
	err := s.locks.WithLock(ctx, docID.String(), func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			doc, err := tx.GetDocument(ctx, docID)
			if err != nil {
				return err
			}
			doc.Status = status
			doc.UpdatedAt = time.Now().UTC()
			if err := tx.SaveDocument(ctx, doc); err != nil {
				return apperrors.WrapStorage("save document", docID.String(), err)
			}
			updated = doc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metaCache != nil {
		s.metaCache.Invalidate(ctx, documentCacheKey(docID))
	}
	return updated, nil
}

// DeleteDocument soft-deletes the document, then purges its version records
// in batches and their blobs best-effort. The tombstone document remains.
func (s *DocumentService) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	var versions []*models.Version

	err := s.locks.WithLock(ctx, docID.String(), func(ctx context.Context) error {
		if err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			doc, err := tx.GetDocument(ctx, docID)
			if err != nil {
				return err
			}
			doc.Status = models.StatusDeleted
			doc.LatestVersion = 0
			doc.UpdatedAt = time.Now().UTC()
			if err := tx.SaveDocument(ctx, doc); err != nil {
				return apperrors.WrapStorage("save document", docID.String(), err)
			}
			return nil
		}); err != nil {
			return err
		}

		var err error
		versions, err = s.store.ListVersions(ctx, docID)
		if err != nil {
			return apperrors.WrapStorage("list versions", docID.String(), err)
		}

		// One transaction per batch so a failure leaves earlier batches
		// purged and reports exactly where it stopped.
		return repository.RunInBatches(ctx, s.store, versions, purgeBatchSize,
			func(ctx context.Context, tx repository.Store, batch []*models.Version) error {
				for _, v := range batch {
					if err := tx.DeleteVersion(ctx, docID, v.ID); err != nil {
						return err
					}
				}
				return nil
			})
	})
	if err != nil {
		return err
	}

	for _, v := range versions {
		if err := s.blobs.Delete(ctx, v.BlobPath); err != nil {
			s.log.Warn("failed to delete version blob", "doc_id", docID, "blob_path", v.BlobPath, "error", err)
		}
	}

	if s.metaCache != nil {
		s.metaCache.Invalidate(ctx, documentCacheKey(docID))
	}

	s.log.Info("document deleted", "doc_id", docID, "versions_purged", len(versions))
	return nil
}
