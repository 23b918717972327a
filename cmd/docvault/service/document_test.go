package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/cmd/docvault/repository"
	"github.com/qianghan/docvault/common/apperrors"
	"github.com/qianghan/docvault/common/blobstore"
	"github.com/qianghan/docvault/common/cache"
	"github.com/qianghan/docvault/common/locking"
)

func TestCreateDocument(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	doc, err := f.docs.CreateDocument(ctx, "alice", models.Metadata{"title": "report"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessing, doc.Status)
	assert.Equal(t, 0, doc.LatestVersion)
	assert.Equal(t, "report", doc.Metadata["title"])

	_, err = f.docs.CreateDocument(ctx, "", nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.docs.CreateDocument(ctx, "alice", models.Metadata{"bad": make(chan int)})
	assert.True(t, apperrors.IsValidation(err))
}

func TestGetDocument_ServedFromCache(t *testing.T) {
	log := testLogger()
	store := repository.NewMemoryStore()
	blobs := blobstore.NewMemory()
	locks := locking.NewManager(5*time.Second, log)
	metaCache := cache.NewMemory(10, log)

	docs := NewDocumentService(store, blobs, locks, metaCache, time.Hour, log)
	ctx := context.Background()

	doc, err := docs.CreateDocument(ctx, "alice", models.Metadata{"title": "t"})
	require.NoError(t, err)

	// First read populates the cache.
	_, err = docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, metaCache.Len())

	// Remove the record under the cache: a cached read still succeeds.
	require.NoError(t, store.DeleteDocument(ctx, doc.ID))
	got, err := docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
}

func TestUpdateMetadata_MergePatch(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	doc, err := f.docs.CreateDocument(ctx, "alice", models.Metadata{
		"title":  "old",
		"author": "alice",
	})
	require.NoError(t, err)

	// Merge patch: set one key, remove another with null, add a third.
	patch := []byte(`{"title":"new","author":null,"pages":12}`)
	updated, err := f.docs.UpdateMetadata(ctx, doc.ID, patch)
	require.NoError(t, err)

	assert.Equal(t, "new", updated.Metadata["title"])
	assert.NotContains(t, updated.Metadata, "author")
	assert.Equal(t, float64(12), updated.Metadata["pages"])

	// The change is durable.
	got, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Metadata["title"])
}

func TestUpdateMetadata_RejectsDisallowedShapes(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	doc, err := f.docs.CreateDocument(ctx, "alice", nil)
	require.NoError(t, err)

	// Two-level nesting is outside the allowed metadata shapes.
	_, err = f.docs.UpdateMetadata(ctx, doc.ID, []byte(`{"a":{"b":{"c":1}}}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	// A rejected patch leaves the metadata untouched.
	got, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Metadata, "a")
}

func TestUpdateMetadata_InvalidPatch(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	doc, err := f.docs.CreateDocument(ctx, "alice", nil)
	require.NoError(t, err)

	_, err = f.docs.UpdateMetadata(ctx, doc.ID, []byte(`{not json`))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSetStatus(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	doc, err := f.docs.CreateDocument(ctx, "alice", nil)
	require.NoError(t, err)

	updated, err := f.docs.SetStatus(ctx, doc.ID, models.StatusReady)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, updated.Status)

	_, err = f.docs.SetStatus(ctx, doc.ID, models.DocumentStatus("bogus"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteDocument_PurgesVersionsAndBlobs(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	var blobPaths []string
	for i := 0; i < 3; i++ {
		v, err := f.versions.CreateVersion(ctx, doc.ID, bytes.NewReader([]byte("content")), "alice", "", nil)
		require.NoError(t, err)
		blobPaths = append(blobPaths, v.BlobPath)
	}

	require.NoError(t, f.docs.DeleteDocument(ctx, doc.ID))

	// The tombstone remains with no live versions.
	got, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, got.Status)
	assert.Equal(t, 0, got.LatestVersion)

	versions, err := f.store.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	for _, path := range blobPaths {
		exists, err := f.blobs.Exists(ctx, path)
		require.NoError(t, err)
		assert.False(t, exists, "blob %s should be deleted", path)
	}
}

func TestDeleteDocument_Missing(t *testing.T) {
	f := newVersionFixture(t)

	err := f.docs.DeleteDocument(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
