package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "model:1")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte(`{"a":1}`)
	require.NoError(t, store.Set(ctx, "model:1", value, time.Minute))
	value[0] = 'x'

	got, ok, err := store.Get(ctx, "model:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), got, "stored value must not alias the caller's buffer")

	require.NoError(t, store.Delete(ctx, "model:1", "model:2"))
	_, ok, _ = store.Get(ctx, "model:1")
	assert.False(t, ok)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "task:1", []byte("x"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, ok, err := store.Get(ctx, "task:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_DeletePattern(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	keys := []string{
		Datasets.ListKey(alice, 0, 100, nil),
		Datasets.ListKey(alice, 100, 100, map[string]string{"name_contains": "cat"}),
		Datasets.ListKey(bob, 0, 100, nil),
		Models.ListKey(alice, 0, 100, nil),
		Datasets.ObjectKey(alice),
	}
	for _, k := range keys {
		require.NoError(t, store.Set(ctx, k, []byte("v"), time.Minute))
	}

	require.NoError(t, store.DeletePattern(ctx, Datasets.OwnerListPattern(alice)))

	for i, k := range keys {
		_, ok, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, i >= 2, ok, k)
	}

	require.NoError(t, store.DeletePattern(ctx, Datasets.AllListsPattern()))
	_, ok, _ := store.Get(ctx, keys[2])
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, keys[3])
	assert.True(t, ok)
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("7a1c7b52-95b8-4a4b-8f54-5a3f3f8fd1f1")

	assert.Equal(t, "dataset:7a1c7b52-95b8-4a4b-8f54-5a3f3f8fd1f1", Datasets.ObjectKey(id))
	assert.Equal(t, "task_list:7a1c7b52-95b8-4a4b-8f54-5a3f3f8fd1f1:*", Tasks.OwnerListPattern(id))

	key := Models.ListKey(id, 10, 20, map[string]string{"status": "completed"})
	assert.Regexp(t, `^model_list:7a1c7b52-95b8-4a4b-8f54-5a3f3f8fd1f1:10:20:[0-9a-f]{16}$`, key)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(map[string]string{"status": "completed", "dataset_id": "x"})
	b := Fingerprint(map[string]string{"dataset_id": "x", "status": "completed"})
	assert.Equal(t, a, b)

	assert.Equal(t, Fingerprint(nil), Fingerprint(map[string]string{"status": ""}))
	assert.NotEqual(t, a, Fingerprint(map[string]string{"status": "failed", "dataset_id": "x"}))
}

func TestSchemaCodec(t *testing.T) {
	type readModel struct {
		Name  string
		Count int
	}

	v1 := Schema{Name: "dataset", Version: 1}
	raw, err := v1.Encode(readModel{Name: "cats", Count: 3})
	require.NoError(t, err)

	var out readModel
	require.NoError(t, v1.Decode(raw, &out))
	assert.Equal(t, readModel{Name: "cats", Count: 3}, out)

	v2 := Schema{Name: "dataset", Version: 2}
	assert.ErrorIs(t, v2.Decode(raw, &out), ErrSchemaMismatch)

	other := Schema{Name: "model", Version: 1}
	assert.ErrorIs(t, other.Decode(raw, &out), ErrSchemaMismatch)

	assert.ErrorIs(t, v1.Decode([]byte(`{"name":"cats"}`), &out), ErrSchemaMismatch)
	assert.ErrorIs(t, v1.Decode([]byte(`not json`), &out), ErrSchemaMismatch)
}
