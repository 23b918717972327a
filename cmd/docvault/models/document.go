package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the document lifecycle state.
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusDeleted    DocumentStatus = "deleted"
)

// Document is a profile document owning an ordered chain of versions.
// Once any version exists, LatestVersion always names an existing sequence
// number of this document.
type Document struct {
	ID            uuid.UUID      `json:"id"`
	OwnerID       string         `json:"owner_id"`
	LatestVersion int            `json:"latest_version"` // 0 until the first version exists
	Status        DocumentStatus `json:"status"`
	Metadata      Metadata       `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s DocumentStatus) bool {
	switch s {
	case StatusProcessing, StatusReady, StatusDeleted:
		return true
	}
	return false
}
