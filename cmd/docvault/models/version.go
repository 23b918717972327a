package models

import (
	"time"

	"github.com/google/uuid"
)

// MetaKeyRestoredFrom records lineage on versions produced by a restore.
const MetaKeyRestoredFrom = "restored_from"

// Version is one sealed content snapshot in a document's version chain.
// Sequence numbers start at 1 and are assigned under the document lock;
// a sealed version's blob and record are never mutated afterward.
type Version struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	SequenceNumber int       `json:"sequence_number"`
	BlobPath       string    `json:"blob_path"`
	SizeBytes      int64     `json:"size_bytes"`
	CreatedBy      string    `json:"created_by"`
	Comment        string    `json:"comment,omitempty"`
	Metadata       Metadata  `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// VersionDiff is the result of comparing two versions of a document.
type VersionDiff struct {
	DocumentID   uuid.UUID `json:"document_id"`
	FromVersion  int       `json:"from_version"`
	ToVersion    int       `json:"to_version"`
	AddedKeys    []string  `json:"added_keys"`
	RemovedKeys  []string  `json:"removed_keys"`
	ChangedKeys  []string  `json:"changed_keys"`
	SizeDelta    int64     `json:"size_delta"`
}
