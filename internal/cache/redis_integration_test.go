//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, ctx context.Context) string {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()), "Failed to terminate Redis container")
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	return "redis://" + endpoint + "/0"
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewRedisStore(setupRedisContainer(t, ctx))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	owner := uuid.New()

	t.Run("GetSet", func(t *testing.T) {
		_, ok, err := store.Get(ctx, Models.ObjectKey(owner))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Set(ctx, Models.ObjectKey(owner), []byte("payload"), time.Minute))

		data, ok, err := store.Get(ctx, Models.ObjectKey(owner))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("payload"), data)
	})

	t.Run("DeletePatternAcrossScanBatches", func(t *testing.T) {
		for i := 0; i < 3*scanBatchSize+7; i++ {
			key := Models.ListKey(owner, i, 10, map[string]string{"page": fmt.Sprint(i)})
			require.NoError(t, store.Set(ctx, key, []byte("v"), time.Minute))
		}
		other := Models.ListKey(uuid.New(), 0, 10, nil)
		require.NoError(t, store.Set(ctx, other, []byte("v"), time.Minute))

		require.NoError(t, store.DeletePattern(ctx, Models.OwnerListPattern(owner)))

		keys, err := store.client.Keys(ctx, Models.OwnerListPattern(owner)).Result()
		require.NoError(t, err)
		assert.Empty(t, keys)

		_, ok, err := store.Get(ctx, other)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
