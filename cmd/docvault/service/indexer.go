package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/common/logger"
	"github.com/qianghan/docvault/common/queue"
)

// TopicDocumentIndex is the queue topic full-text indexing consumers
// subscribe to.
const TopicDocumentIndex = "document.index"

// Indexer is the best-effort hook notified after a successful version
// creation. Failures are logged by the caller and never fail the write.
type Indexer interface {
	NotifyVersionCreated(ctx context.Context, doc *models.Document, v *models.Version) error
}

// IndexNotification is the message published for each new version. The
// indexing collaborator fetches the content through the blob store using
// the blob path; sealed blobs make that race-free.
type IndexNotification struct {
	DocumentID     string `json:"document_id"`
	OwnerID        string `json:"owner_id"`
	VersionID      string `json:"version_id"`
	SequenceNumber int    `json:"sequence_number"`
	BlobPath       string `json:"blob_path"`
	SizeBytes      int64  `json:"size_bytes"`
	MimeHint       string `json:"mime_hint,omitempty"`
}

// QueueIndexer publishes index notifications on the message queue.
type QueueIndexer struct {
	queue queue.Queue
	log   *logger.Logger
}

// NewQueueIndexer creates a queue-backed indexer.
func NewQueueIndexer(q queue.Queue, log *logger.Logger) *QueueIndexer {
	return &QueueIndexer{queue: q, log: log}
}

// NotifyVersionCreated publishes an IndexNotification for the new version.
func (i *QueueIndexer) NotifyVersionCreated(ctx context.Context, doc *models.Document, v *models.Version) error {
	notification := IndexNotification{
		DocumentID:     doc.ID.String(),
		OwnerID:        doc.OwnerID,
		VersionID:      v.ID.String(),
		SequenceNumber: v.SequenceNumber,
		BlobPath:       v.BlobPath,
		SizeBytes:      v.SizeBytes,
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode index notification: %w", err)
	}

	if err := i.queue.Publish(ctx, TopicDocumentIndex, doc.ID.String(), payload); err != nil {
		return fmt.Errorf("failed to publish index notification: %w", err)
	}

	i.log.Debug("index notification published", "doc_id", doc.ID, "version_id", v.ID)
	return nil
}
