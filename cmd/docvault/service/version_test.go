package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/cmd/docvault/repository"
	"github.com/qianghan/docvault/common/apperrors"
	"github.com/qianghan/docvault/common/blobstore"
	"github.com/qianghan/docvault/common/locking"
	"github.com/qianghan/docvault/common/logger"
	"github.com/qianghan/docvault/common/queue"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

type versionFixture struct {
	store    *repository.MemoryStore
	blobs    *blobstore.Memory
	versions *VersionService
	docs     *DocumentService
}

func newVersionFixture(t *testing.T) *versionFixture {
	t.Helper()
	log := testLogger()
	store := repository.NewMemoryStore()
	blobs := blobstore.NewMemory()
	locks := locking.NewManager(5*time.Second, log)

	return &versionFixture{
		store:    store,
		blobs:    blobs,
		versions: NewVersionService(store, blobs, locks, nil, nil, nil, time.Hour, log),
		docs:     NewDocumentService(store, blobs, locks, nil, time.Hour, log),
	}
}

func (f *versionFixture) createDocument(t *testing.T) *models.Document {
	t.Helper()
	doc, err := f.docs.CreateDocument(context.Background(), "alice", models.Metadata{"title": "t"})
	require.NoError(t, err)
	return doc
}

func (f *versionFixture) createVersion(t *testing.T, docID uuid.UUID, content string) *models.Version {
	t.Helper()
	v, err := f.versions.CreateVersion(context.Background(), docID, bytes.NewReader([]byte(content)), "alice", "", nil)
	require.NoError(t, err)
	return v
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestCreateVersion_FirstVersion(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	v, err := f.versions.CreateVersion(ctx, doc.ID, bytes.NewReader([]byte("hello")), "alice", "initial", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, v.SequenceNumber)
	assert.Equal(t, int64(5), v.SizeBytes)
	assert.Equal(t, "initial", v.Comment)

	got, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LatestVersion)
	assert.Equal(t, models.StatusReady, got.Status)

	content, err := f.versions.GetVersionContent(ctx, doc.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), readAll(t, content))
}

func TestCreateVersion_SequenceIsMonotonic(t *testing.T) {
	f := newVersionFixture(t)
	doc := f.createDocument(t)

	for want := 1; want <= 5; want++ {
		v := f.createVersion(t, doc.ID, "content")
		assert.Equal(t, want, v.SequenceNumber)
	}
}

func TestCreateVersion_SequenceNeverReused(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	v1 := f.createVersion(t, doc.ID, "one")
	v2 := f.createVersion(t, doc.ID, "two")

	// Deleting the latest version must not free its sequence number.
	require.NoError(t, f.versions.DeleteVersion(ctx, doc.ID, v2.ID))
	_ = v1

	v3 := f.createVersion(t, doc.ID, "three")
	assert.Equal(t, 3, v3.SequenceNumber)
}

func TestCreateVersion_ConcurrentWritersGetUniqueSequences(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	const writers = 10
	seqs := make(chan int, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.versions.CreateVersion(ctx, doc.ID, bytes.NewReader([]byte("x")), "alice", "", nil)
			if !assert.NoError(t, err) {
				return
			}
			seqs <- v.SequenceNumber
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "sequence %d assigned twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, writers)

	got, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, got.LatestVersion)
}

func TestCreateVersion_MissingDocument(t *testing.T) {
	f := newVersionFixture(t)

	_, err := f.versions.CreateVersion(context.Background(), uuid.New(), bytes.NewReader([]byte("x")), "alice", "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetVersionHistory_Ordered(t *testing.T) {
	f := newVersionFixture(t)
	doc := f.createDocument(t)

	for i := 0; i < 3; i++ {
		f.createVersion(t, doc.ID, "c")
	}

	history, err := f.versions.GetVersionHistory(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, v := range history {
		assert.Equal(t, i+1, v.SequenceNumber)
	}
}

func TestDeleteVersion_SoleVersionRejected(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	v := f.createVersion(t, doc.ID, "only")

	err := f.versions.DeleteVersion(ctx, doc.ID, v.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	// The version and its content survive the rejected delete.
	content, err := f.versions.GetVersionContent(ctx, doc.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("only"), readAll(t, content))
}

func TestDeleteVersion_LatestPointerRecomputed(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	f.createVersion(t, doc.ID, "one")
	v2 := f.createVersion(t, doc.ID, "two")
	v3 := f.createVersion(t, doc.ID, "three")

	require.NoError(t, f.versions.DeleteVersion(ctx, doc.ID, v3.ID))

	got, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.SequenceNumber, got.LatestVersion)

	// The deleted version's blob is gone.
	exists, err := f.blobs.Exists(ctx, v3.BlobPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteVersion_MiddleKeepsLatest(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	f.createVersion(t, doc.ID, "one")
	v2 := f.createVersion(t, doc.ID, "two")
	f.createVersion(t, doc.ID, "three")

	require.NoError(t, f.versions.DeleteVersion(ctx, doc.ID, v2.ID))

	got, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.LatestVersion)
}

func TestRestoreVersion(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	v1 := f.createVersion(t, doc.ID, "the original bytes")
	f.createVersion(t, doc.ID, "a later revision")

	restored, err := f.versions.RestoreVersion(ctx, doc.ID, v1.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, restored.LatestVersion, "restore appends, it never rewinds")

	v3, err := f.versions.GetVersionByNumber(ctx, doc.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, v1.ID.String(), v3.Metadata[models.MetaKeyRestoredFrom])
	assert.Equal(t, "restored from version 1", v3.Comment)
	assert.Equal(t, "bob", v3.CreatedBy)

	// The restored version is byte-identical to its source.
	content, err := f.versions.GetVersionContent(ctx, doc.ID, v3.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("the original bytes"), readAll(t, content))

	// The source version is untouched.
	history, err := f.versions.GetVersionHistory(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestRestoreVersion_MissingVersion(t *testing.T) {
	f := newVersionFixture(t)
	doc := f.createDocument(t)
	f.createVersion(t, doc.ID, "x")

	_, err := f.versions.RestoreVersion(context.Background(), doc.ID, uuid.New(), "bob")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCompareVersions(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	from, err := f.versions.CreateVersion(ctx, doc.ID, bytes.NewReader([]byte("aaaa")), "alice", "", models.Metadata{
		"kept":    "same",
		"changed": "before",
		"removed": true,
	})
	require.NoError(t, err)

	to, err := f.versions.CreateVersion(ctx, doc.ID, bytes.NewReader([]byte("aaaaaaaaaa")), "alice", "", models.Metadata{
		"kept":    "same",
		"changed": "after",
		"added":   1,
	})
	require.NoError(t, err)

	diff, err := f.versions.CompareVersions(ctx, doc.ID, from.ID, to.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, diff.FromVersion)
	assert.Equal(t, 2, diff.ToVersion)
	assert.Equal(t, []string{"added"}, diff.AddedKeys)
	assert.Equal(t, []string{"removed"}, diff.RemovedKeys)
	assert.Equal(t, []string{"changed"}, diff.ChangedKeys)
	assert.Equal(t, int64(6), diff.SizeDelta)
}

func TestCreateVersion_PublishesIndexNotification(t *testing.T) {
	log := testLogger()
	store := repository.NewMemoryStore()
	blobs := blobstore.NewMemory()
	locks := locking.NewManager(5*time.Second, log)
	q := queue.NewMemoryQueue(log)
	defer q.Close()

	indexer := NewQueueIndexer(q, log)
	versions := NewVersionService(store, blobs, locks, nil, nil, indexer, time.Hour, log)
	docs := NewDocumentService(store, blobs, locks, nil, time.Hour, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan IndexNotification, 1)
	require.NoError(t, q.Subscribe(ctx, TopicDocumentIndex, func(ctx context.Context, key string, value []byte) error {
		var n IndexNotification
		if err := json.Unmarshal(value, &n); err != nil {
			return err
		}
		received <- n
		return nil
	}))

	doc, err := docs.CreateDocument(ctx, "alice", nil)
	require.NoError(t, err)
	v, err := versions.CreateVersion(ctx, doc.ID, bytes.NewReader([]byte("indexed")), "alice", "", nil)
	require.NoError(t, err)

	select {
	case n := <-received:
		assert.Equal(t, doc.ID.String(), n.DocumentID)
		assert.Equal(t, v.ID.String(), n.VersionID)
		assert.Equal(t, v.BlobPath, n.BlobPath)
		assert.Equal(t, int64(7), n.SizeBytes)
	case <-time.After(2 * time.Second):
		t.Fatal("no index notification received")
	}
}
