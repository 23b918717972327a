// Package service implements the docvault core operations: the version
// chain manager, document lifecycle, and the chunked upload session manager.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/cmd/docvault/repository"
	"github.com/qianghan/docvault/common/apperrors"
	"github.com/qianghan/docvault/common/blobstore"
	"github.com/qianghan/docvault/common/cache"
	"github.com/qianghan/docvault/common/locking"
	"github.com/qianghan/docvault/common/logger"
)

// metaKeyVersionHistory is the document metadata key holding the ordered
// list of version ids.
const metaKeyVersionHistory = "version_history"

// VersionService manages document version chains. All mutating operations
// run under the document's lock plus a metadata transaction, so sequence
// numbers are assigned serially per document and callers never observe a
// version record without its blob.
type VersionService struct {
	store        repository.Store
	blobs        blobstore.Store
	locks        *locking.Manager
	metaCache    cache.Cache
	contentCache *cache.Disk
	indexer      Indexer
	cacheTTL     time.Duration
	log          *logger.Logger
}

// NewVersionService creates a version service. metaCache, contentCache and
// indexer may be nil, which disables the respective concern.
func NewVersionService(
	store repository.Store,
	blobs blobstore.Store,
	locks *locking.Manager,
	metaCache cache.Cache,
	contentCache *cache.Disk,
	indexer Indexer,
	cacheTTL time.Duration,
	log *logger.Logger,
) *VersionService {
	return &VersionService{
		store:        store,
		blobs:        blobs,
		locks:        locks,
		metaCache:    metaCache,
		contentCache: contentCache,
		indexer:      indexer,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

// withLockedTx is the composition every mutating operation goes through:
// document lock first, then a metadata transaction.
func (s *VersionService) withLockedTx(ctx context.Context, docID uuid.UUID, fn func(ctx context.Context, tx repository.Store) error) error {
	return s.locks.WithLock(ctx, docID.String(), func(ctx context.Context) error {
		return s.store.WithTx(ctx, fn)
	})
}

// CreateVersion appends a new version to the document's chain. The sequence
// number is max(existing)+1 (1 for the first version), assigned under the
// document lock. If the blob write fails no version record is created; if
// the metadata write fails the blob is removed again.
func (s *VersionService) CreateVersion(ctx context.Context, docID uuid.UUID, content io.Reader, createdBy, comment string, metadata models.Metadata) (*models.Version, error) {
	if err := metadata.Validate(); err != nil {
		return nil, apperrors.NewValidation("invalid version metadata: %v", err)
	}

	var created *models.Version
	var createdDoc *models.Document

	err := s.withLockedTx(ctx, docID, func(ctx context.Context, tx repository.Store) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}

		versions, err := tx.ListVersions(ctx, docID)
		if err != nil {
			return apperrors.WrapStorage("list versions", docID.String(), err)
		}

		nextSeq := 1
		for _, v := range versions {
			if v.SequenceNumber >= nextSeq {
				nextSeq = v.SequenceNumber + 1
			}
		}

		blobPath := versionBlobPath(docID, nextSeq)
		if err := s.blobs.Save(ctx, blobPath, content); err != nil {
			return apperrors.WrapStorage("blob write", docID.String(), err)
		}

		info, err := s.blobs.Stat(ctx, blobPath)
		if err != nil {
			s.blobs.Delete(ctx, blobPath)
			return apperrors.WrapStorage("blob stat", docID.String(), err)
		}

		v := &models.Version{
			ID:             uuid.New(),
			DocumentID:     docID,
			SequenceNumber: nextSeq,
			BlobPath:       blobPath,
			SizeBytes:      info.Size,
			CreatedBy:      createdBy,
			Comment:        comment,
			Metadata:       metadata.Clone(),
			CreatedAt:      time.Now().UTC(),
		}

		if err := tx.SaveVersion(ctx, v); err != nil {
			s.blobs.Delete(ctx, blobPath)
			return apperrors.WrapStorage("save version", docID.String(), err)
		}

		doc.LatestVersion = nextSeq
		doc.Status = models.StatusReady
		doc.UpdatedAt = v.CreatedAt
		appendVersionHistory(doc, v)

		if err := tx.SaveDocument(ctx, doc); err != nil {
			s.blobs.Delete(ctx, blobPath)
			return apperrors.WrapStorage("save document", docID.String(), err)
		}

		created = v
		createdDoc = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDocument(ctx, docID)
	s.notifyIndexer(ctx, createdDoc, created)

	s.log.Info("version created",
		"doc_id", docID,
		"version_id", created.ID,
		"sequence", created.SequenceNumber,
		"size_bytes", created.SizeBytes,
	)
	return created, nil
}

// GetVersion retrieves a version record by id.
func (s *VersionService) GetVersion(ctx context.Context, docID, versionID uuid.UUID) (*models.Version, error) {
	return s.store.GetVersion(ctx, docID, versionID)
}

// GetVersionByNumber retrieves a version record by sequence number.
func (s *VersionService) GetVersionByNumber(ctx context.Context, docID uuid.UUID, seq int) (*models.Version, error) {
	return s.store.GetVersionByNumber(ctx, docID, seq)
}

// GetVersionHistory lists all versions of the document in sequence order.
func (s *VersionService) GetVersionHistory(ctx context.Context, docID uuid.UUID) ([]*models.Version, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, docID)
}

// GetVersionContent streams the sealed content of a version. Reads go
// through the disk content cache when one is configured; sealed blobs never
// change, so cached content cannot go stale (mutations still invalidate
// defensively by document).
func (s *VersionService) GetVersionContent(ctx context.Context, docID, versionID uuid.UUID) (io.ReadCloser, error) {
	v, err := s.store.GetVersion(ctx, docID, versionID)
	if err != nil {
		return nil, err
	}

	cacheKey := contentCacheKey(docID, v.ID)
	if s.contentCache != nil {
		if data, ok, err := s.contentCache.Get(ctx, cacheKey); err == nil && ok {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	rc, err := s.blobs.Get(ctx, v.BlobPath)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("blob", v.BlobPath)
		}
		return nil, apperrors.WrapStorage("blob read", docID.String(), err)
	}

	// Cache without disturbing the caller: only seekable streams can have
	// their cursor restored after a full read.
	if s.contentCache != nil {
		if rs, ok := rc.(io.ReadSeeker); ok {
			if err := s.contentCache.SetStream(ctx, cacheKey, rs, s.cacheTTL); err != nil {
				s.log.Warn("failed to cache version content", "doc_id", docID, "version_id", v.ID, "error", err)
			}
		}
	}

	return rc, nil
}

// DeleteVersion removes a version and its blob. Deleting the sole remaining
// version of a live document is rejected; deleting the latest version moves
// the document pointer to the highest remaining sequence number.
func (s *VersionService) DeleteVersion(ctx context.Context, docID, versionID uuid.UUID) error {
	var blobPath string

	err := s.withLockedTx(ctx, docID, func(ctx context.Context, tx repository.Store) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}

		target, err := tx.GetVersion(ctx, docID, versionID)
		if err != nil {
			return err
		}

		versions, err := tx.ListVersions(ctx, docID)
		if err != nil {
			return apperrors.WrapStorage("list versions", docID.String(), err)
		}
		if len(versions) == 1 {
			return apperrors.NewValidation("cannot delete the only version of document %s", docID)
		}

		if err := tx.DeleteVersion(ctx, docID, versionID); err != nil {
			return apperrors.WrapStorage("delete version", docID.String(), err)
		}

		if doc.LatestVersion == target.SequenceNumber {
			latest := 0
			for _, v := range versions {
				if v.ID != versionID && v.SequenceNumber > latest {
					latest = v.SequenceNumber
				}
			}
			doc.LatestVersion = latest
		}
		doc.UpdatedAt = time.Now().UTC()
		removeVersionHistory(doc, versionID)

		if err := tx.SaveDocument(ctx, doc); err != nil {
			return apperrors.WrapStorage("save document", docID.String(), err)
		}

		blobPath = target.BlobPath
		return nil
	})
	if err != nil {
		return err
	}

	// The record is gone; an orphaned blob is harmless and only costs space.
	if err := s.blobs.Delete(ctx, blobPath); err != nil {
		s.log.Warn("failed to delete version blob", "doc_id", docID, "blob_path", blobPath, "error", err)
	}

	s.invalidateDocument(ctx, docID)
	s.invalidateContent(ctx, docID, versionID)

	s.log.Info("version deleted", "doc_id", docID, "version_id", versionID)
	return nil
}

// RestoreVersion materializes an old version as a brand-new one: same bytes,
// a strictly greater sequence number, and lineage metadata. History is never
// rewound.
func (s *VersionService) RestoreVersion(ctx context.Context, docID, versionID uuid.UUID, createdBy string) (*models.Document, error) {
	target, err := s.store.GetVersion(ctx, docID, versionID)
	if err != nil {
		return nil, err
	}

	content, err := s.blobs.Get(ctx, target.BlobPath)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("blob", target.BlobPath)
		}
		return nil, apperrors.WrapStorage("blob read", docID.String(), err)
	}
	defer content.Close()

	metadata := models.Metadata{
		models.MetaKeyRestoredFrom: versionID.String(),
	}
	comment := fmt.Sprintf("restored from version %d", target.SequenceNumber)

	if _, err := s.CreateVersion(ctx, docID, content, createdBy, comment, metadata); err != nil {
		return nil, err
	}

	return s.store.GetDocument(ctx, docID)
}

// CompareVersions reports metadata and size differences between two sealed
// versions. Sealed data never changes, so no lock is taken.
func (s *VersionService) CompareVersions(ctx context.Context, docID, fromID, toID uuid.UUID) (*models.VersionDiff, error) {
	from, err := s.store.GetVersion(ctx, docID, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.store.GetVersion(ctx, docID, toID)
	if err != nil {
		return nil, err
	}

	diff := &models.VersionDiff{
		DocumentID:  docID,
		FromVersion: from.SequenceNumber,
		ToVersion:   to.SequenceNumber,
		AddedKeys:   []string{},
		RemovedKeys: []string{},
		ChangedKeys: []string{},
		SizeDelta:   to.SizeBytes - from.SizeBytes,
	}

	for key, toVal := range to.Metadata {
		fromVal, ok := from.Metadata[key]
		if !ok {
			diff.AddedKeys = append(diff.AddedKeys, key)
			continue
		}
		if fmt.Sprint(fromVal) != fmt.Sprint(toVal) {
			diff.ChangedKeys = append(diff.ChangedKeys, key)
		}
	}
	for key := range from.Metadata {
		if _, ok := to.Metadata[key]; !ok {
			diff.RemovedKeys = append(diff.RemovedKeys, key)
		}
	}

	sort.Strings(diff.AddedKeys)
	sort.Strings(diff.RemovedKeys)
	sort.Strings(diff.ChangedKeys)
	return diff, nil
}

func (s *VersionService) invalidateDocument(ctx context.Context, docID uuid.UUID) {
	if s.metaCache == nil {
		return
	}
	if err := s.metaCache.Invalidate(ctx, documentCacheKey(docID)); err != nil {
		s.log.Warn("failed to invalidate document cache", "doc_id", docID, "error", err)
	}
}

func (s *VersionService) invalidateContent(ctx context.Context, docID, versionID uuid.UUID) {
	if s.contentCache == nil {
		return
	}
	if err := s.contentCache.Invalidate(ctx, contentCacheKey(docID, versionID)); err != nil {
		s.log.Warn("failed to invalidate content cache", "doc_id", docID, "version_id", versionID, "error", err)
	}
}

func (s *VersionService) notifyIndexer(ctx context.Context, doc *models.Document, v *models.Version) {
	if s.indexer == nil {
		return
	}
	// Best effort: indexing must never block or fail version creation.
	if err := s.indexer.NotifyVersionCreated(ctx, doc, v); err != nil {
		s.log.Warn("indexing notification failed", "doc_id", doc.ID, "version_id", v.ID, "error", err)
	}
}

func versionBlobPath(docID uuid.UUID, seq int) string {
	return fmt.Sprintf("documents/%s/versions/%d", docID, seq)
}

func documentCacheKey(docID uuid.UUID) string {
	return "doc:" + docID.String()
}

func contentCacheKey(docID, versionID uuid.UUID) string {
	return fmt.Sprintf("content:%s:%s", docID, versionID)
}

func appendVersionHistory(doc *models.Document, v *models.Version) {
	if doc.Metadata == nil {
		doc.Metadata = models.Metadata{}
	}
	history, _ := doc.Metadata[metaKeyVersionHistory].([]any)
	doc.Metadata[metaKeyVersionHistory] = append(history, v.ID.String())
}

func removeVersionHistory(doc *models.Document, versionID uuid.UUID) {
	history, _ := doc.Metadata[metaKeyVersionHistory].([]any)
	if history == nil {
		return
	}
	out := make([]any, 0, len(history))
	for _, entry := range history {
		if entry != versionID.String() {
			out = append(out, entry)
		}
	}
	doc.Metadata[metaKeyVersionHistory] = out
}
