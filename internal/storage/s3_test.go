package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioProvider(t *testing.T, ctx context.Context) *S3Provider {
	t.Helper()

	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	provider, err := NewS3Provider(S3ClientConfig{
		Endpoint:        "http://" + connStr,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)
	return provider
}

func TestS3Provider(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupMinioProvider(t, ctx)
	bucket := "test-bucket"

	require.NoError(t, provider.CreateBucket(ctx, bucket))
	// Creating a bucket that already exists is not an error.
	require.NoError(t, provider.CreateBucket(ctx, bucket))

	content := []byte("test content")
	require.NoError(t, provider.PutObject(ctx, bucket, "u1/file1.jpg", bytes.NewReader(content)))
	require.NoError(t, provider.PutObject(ctx, bucket, "u1/file2.jpg", bytes.NewReader([]byte("other"))))
	require.NoError(t, provider.PutObject(ctx, bucket, "u2/file3.jpg", bytes.NewReader([]byte("elsewhere"))))

	data, err := provider.GetObject(ctx, bucket, "u1/file1.jpg")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	_, err = provider.GetObject(ctx, bucket, "u1/missing.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	objects, err := provider.ListObjects(ctx, bucket, "u1/")
	require.NoError(t, err)
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, obj.Name)
	}
	assert.ElementsMatch(t, []string{"u1/file1.jpg", "u1/file2.jpg"}, names)

	all, err := provider.ListObjects(ctx, bucket, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUploadStoreOverS3(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupMinioProvider(t, ctx)
	store := NewUploadStore(provider, "uploads")

	record, err := store.Ingest(ctx, "u1", []byte("image bytes"), "lesion.jpg")
	require.NoError(t, err)
	assert.Regexp(t, storedNamePattern, record.StoredFilename)

	data, err := store.Fetch(ctx, "u1", record.StoredFilename)
	require.NoError(t, err)
	assert.Equal(t, []byte("image bytes"), data)

	names, err := store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{record.StoredFilename}, names)

	owner, err := store.FindOwner(ctx, record.StoredFilename)
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	_, err = store.Fetch(ctx, "u1", "missing.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
