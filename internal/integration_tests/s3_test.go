//go:build integration

package integrationtests

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Schemion/schemion-api/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucketName = "test-bucket"

func TestS3ObjectStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objects := setupObjectStore(t, ctx)

	require.NoError(t, objects.CreateBucket(ctx, bucketName))
	require.NoError(t, objects.CreateBucket(ctx, bucketName), "creating an existing bucket should succeed")

	key := storage.ObjectKey(uuid.NullUUID{UUID: uuid.New(), Valid: true}, "weights.pt")
	objectPath, err := objects.Upload(ctx, bucketName, key, strings.NewReader("model weights"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, key, objectPath)

	exists, err := objects.Exists(ctx, bucketName, objectPath)
	require.NoError(t, err)
	assert.True(t, exists)

	t.Run("PresignedURL", func(t *testing.T) {
		url, err := objects.PresignedURL(ctx, bucketName, objectPath, time.Minute)
		require.NoError(t, err)

		res, err := http.Get(url)
		require.NoError(t, err)
		defer res.Body.Close()

		require.Equal(t, http.StatusOK, res.StatusCode)
		data, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, "model weights", string(data))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, objects.Delete(ctx, bucketName, objectPath))

		exists, err := objects.Exists(ctx, bucketName, objectPath)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, objects.Delete(ctx, bucketName, objectPath), "deleting a missing object should succeed")
	})
}
