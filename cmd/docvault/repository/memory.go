package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/common/apperrors"
)

// MemoryStore is the in-memory metadata store. WithTx snapshots both maps
// up front and restores them when fn fails, giving the same all-or-nothing
// visibility the Postgres backend gets from real transactions.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*models.Document
	versions map[uuid.UUID]map[uuid.UUID]*models.Version // docID -> versionID -> version
}

// NewMemoryStore creates an empty in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[uuid.UUID]*models.Document),
		versions: make(map[uuid.UUID]map[uuid.UUID]*models.Version),
	}
}

func (m *MemoryStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getDocumentLocked(id)
}

func (m *MemoryStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveDocumentLocked(doc)
}

func (m *MemoryStore) ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listDocumentsLocked(ownerID)
}

func (m *MemoryStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteDocumentLocked(id)
}

func (m *MemoryStore) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata models.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateMetadataLocked(id, metadata)
}

func (m *MemoryStore) ListVersions(ctx context.Context, docID uuid.UUID) ([]*models.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listVersionsLocked(docID)
}

func (m *MemoryStore) GetVersion(ctx context.Context, docID, versionID uuid.UUID) (*models.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getVersionLocked(docID, versionID)
}

func (m *MemoryStore) GetVersionByNumber(ctx context.Context, docID uuid.UUID, seq int) (*models.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getVersionByNumberLocked(docID, seq)
}

func (m *MemoryStore) SaveVersion(ctx context.Context, v *models.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveVersionLocked(v)
}

func (m *MemoryStore) DeleteVersion(ctx context.Context, docID, versionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteVersionLocked(docID, versionID)
}

// WithTx holds the store mutex for the whole transaction, so concurrent
// callers observe either none or all of fn's writes.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapDocs, snapVersions := m.snapshotLocked()

	if err := fn(ctx, &memoryTx{store: m}); err != nil {
		m.docs = snapDocs
		m.versions = snapVersions
		return apperrors.WrapStorage("transaction", "metadata", err)
	}

	return nil
}

// memoryTx is the transaction-bound view handed to WithTx callbacks. The
// store mutex is already held, so it delegates to the unlocked methods.
// A nested WithTx joins the enclosing transaction.
type memoryTx struct {
	store *MemoryStore
}

func (t *memoryTx) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return t.store.getDocumentLocked(id)
}

func (t *memoryTx) SaveDocument(ctx context.Context, doc *models.Document) error {
	return t.store.saveDocumentLocked(doc)
}

func (t *memoryTx) ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error) {
	return t.store.listDocumentsLocked(ownerID)
}

func (t *memoryTx) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return t.store.deleteDocumentLocked(id)
}

func (t *memoryTx) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata models.Metadata) error {
	return t.store.updateMetadataLocked(id, metadata)
}

func (t *memoryTx) ListVersions(ctx context.Context, docID uuid.UUID) ([]*models.Version, error) {
	return t.store.listVersionsLocked(docID)
}

func (t *memoryTx) GetVersion(ctx context.Context, docID, versionID uuid.UUID) (*models.Version, error) {
	return t.store.getVersionLocked(docID, versionID)
}

func (t *memoryTx) GetVersionByNumber(ctx context.Context, docID uuid.UUID, seq int) (*models.Version, error) {
	return t.store.getVersionByNumberLocked(docID, seq)
}

func (t *memoryTx) SaveVersion(ctx context.Context, v *models.Version) error {
	return t.store.saveVersionLocked(v)
}

func (t *memoryTx) DeleteVersion(ctx context.Context, docID, versionID uuid.UUID) error {
	return t.store.deleteVersionLocked(docID, versionID)
}

func (t *memoryTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

// Unlocked implementations. Callers hold m.mu.

func (m *MemoryStore) getDocumentLocked(id uuid.UUID) (*models.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperrors.NewNotFound("document", id.String())
	}
	return cloneDocument(doc), nil
}

func (m *MemoryStore) saveDocumentLocked(doc *models.Document) error {
	m.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (m *MemoryStore) listDocumentsLocked(ownerID string) ([]*models.Document, error) {
	out := make([]*models.Document, 0)
	for _, doc := range m.docs {
		if ownerID == "" || doc.OwnerID == ownerID {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) deleteDocumentLocked(id uuid.UUID) error {
	if _, ok := m.docs[id]; !ok {
		return apperrors.NewNotFound("document", id.String())
	}
	delete(m.docs, id)
	delete(m.versions, id)
	return nil
}

func (m *MemoryStore) updateMetadataLocked(id uuid.UUID, metadata models.Metadata) error {
	doc, ok := m.docs[id]
	if !ok {
		return apperrors.NewNotFound("document", id.String())
	}
	doc.Metadata = metadata.Clone()
	return nil
}

func (m *MemoryStore) listVersionsLocked(docID uuid.UUID) ([]*models.Version, error) {
	byID := m.versions[docID]
	out := make([]*models.Version, 0, len(byID))
	for _, v := range byID {
		out = append(out, cloneVersion(v))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out, nil
}

func (m *MemoryStore) getVersionLocked(docID, versionID uuid.UUID) (*models.Version, error) {
	v, ok := m.versions[docID][versionID]
	if !ok {
		return nil, apperrors.NewNotFound("version", versionID.String())
	}
	return cloneVersion(v), nil
}

func (m *MemoryStore) getVersionByNumberLocked(docID uuid.UUID, seq int) (*models.Version, error) {
	for _, v := range m.versions[docID] {
		if v.SequenceNumber == seq {
			return cloneVersion(v), nil
		}
	}
	return nil, apperrors.NewNotFound("version", "sequence "+strconv.Itoa(seq))
}

func (m *MemoryStore) saveVersionLocked(v *models.Version) error {
	byID, ok := m.versions[v.DocumentID]
	if !ok {
		byID = make(map[uuid.UUID]*models.Version)
		m.versions[v.DocumentID] = byID
	}
	byID[v.ID] = cloneVersion(v)
	return nil
}

func (m *MemoryStore) deleteVersionLocked(docID, versionID uuid.UUID) error {
	byID := m.versions[docID]
	if _, ok := byID[versionID]; !ok {
		return apperrors.NewNotFound("version", versionID.String())
	}
	delete(byID, versionID)
	return nil
}

func (m *MemoryStore) snapshotLocked() (map[uuid.UUID]*models.Document, map[uuid.UUID]map[uuid.UUID]*models.Version) {
	docs := make(map[uuid.UUID]*models.Document, len(m.docs))
	for id, doc := range m.docs {
		docs[id] = cloneDocument(doc)
	}

	versions := make(map[uuid.UUID]map[uuid.UUID]*models.Version, len(m.versions))
	for docID, byID := range m.versions {
		cloned := make(map[uuid.UUID]*models.Version, len(byID))
		for id, v := range byID {
			cloned[id] = cloneVersion(v)
		}
		versions[docID] = cloned
	}

	return docs, versions
}

func cloneDocument(doc *models.Document) *models.Document {
	out := *doc
	out.Metadata = doc.Metadata.Clone()
	return &out
}

func cloneVersion(v *models.Version) *models.Version {
	out := *v
	out.Metadata = v.Metadata.Clone()
	return &out
}
