package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianghan/docvault/common/apperrors"
)

func TestLocal_SaveGetRoundtrip(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("version one content")
	require.NoError(t, store.Save(ctx, "documents/abc/versions/1", bytes.NewReader(content)))

	rc, err := store.Get(ctx, "documents/abc/versions/1")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocal_GetMissingIsNotFound(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "documents/missing/versions/1")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocal_SaveOverwrites(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "p", bytes.NewReader([]byte("old"))))
	require.NoError(t, store.Save(ctx, "p", bytes.NewReader([]byte("new"))))

	rc, err := store.Get(ctx, "p")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestLocal_Stat(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "p", bytes.NewReader([]byte("12345"))))

	info, err := store.Stat(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.ModifiedAt.IsZero())

	_, err = store.Stat(ctx, "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocal_DeleteIsIdempotent(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "p", bytes.NewReader([]byte("x"))))
	require.NoError(t, store.Delete(ctx, "p"))

	exists, err := store.Exists(ctx, "p")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting an absent blob succeeds.
	assert.NoError(t, store.Delete(ctx, "p"))
}

func TestLocal_DeleteCleansEmptyShardDirs(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "p", bytes.NewReader([]byte("x"))))
	require.NoError(t, store.Delete(ctx, "p"))

	entries, err := os.ReadDir(filepath.Join(root, "blobs"))
	require.NoError(t, err)
	assert.Empty(t, entries, "shard directories should be removed when empty")
}

func TestLocal_PathValidation(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, path := range []string{
		"",
		"/absolute/path",
		"has/../traversal",
		"null\x00byte",
	} {
		err := store.Save(ctx, path, bytes.NewReader([]byte("x")))
		assert.Error(t, err, "path %q should be rejected", path)
	}
}

func TestLocal_NoPartialBlobOnFailedWrite(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	failing := io.MultiReader(bytes.NewReader([]byte("partial")), &errReader{})
	require.Error(t, store.Save(ctx, "p", failing))

	// The aborted write must not leave a readable blob behind.
	exists, err := store.Exists(ctx, "p")
	require.NoError(t, err)
	assert.False(t, exists)
}

type errReader struct{}

func (*errReader) Read([]byte) (int, error) { return 0, assert.AnError }
