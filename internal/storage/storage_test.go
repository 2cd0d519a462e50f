package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/defects/internal/config"
)

func testStore(t *testing.T, store FileStore) {
	t.Helper()
	ctx := context.Background()

	n, err := store.Save(ctx, "defects/1/report.txt", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	ok, err := store.Exists(ctx, "defects/1/report.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.Open(ctx, "defects/1/report.txt")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, store.Delete(ctx, "defects/1/report.txt"))
	require.NoError(t, store.Delete(ctx, "defects/1/report.txt"))

	ok, err = store.Exists(ctx, "defects/1/report.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Open(ctx, "defects/1/report.txt")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLocal(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	testStore(t, store)
}

func TestLocal_StaysInsideRoot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "../../escape.txt", strings.NewReader("x"), 1)
	require.NoError(t, err)

	ok, err := store.Exists(context.Background(), "escape.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Type: "ftp"})
	assert.ErrorContains(t, err, "unsupported storage type")
}

func TestMinio(t *testing.T) {
	endpoint := os.Getenv("DEFECTS_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("DEFECTS_TEST_MINIO_ENDPOINT not set")
	}
	store, err := NewMinio(context.Background(), MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("DEFECTS_TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("DEFECTS_TEST_MINIO_SECRET_KEY"),
		Bucket:    "defects-test",
	})
	require.NoError(t, err)
	testStore(t, store)
}
