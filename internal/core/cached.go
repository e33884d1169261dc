package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/google/uuid"
)

// Cached payload shapes. Bump a version whenever the matching read-model in
// pkg/api changes shape.
var (
	datasetSchema     = cache.Schema{Name: "dataset", Version: 1}
	datasetListSchema = cache.Schema{Name: "dataset_list", Version: 1}
	modelSchema       = cache.Schema{Name: "model", Version: 1}
	modelListSchema   = cache.Schema{Name: "model_list", Version: 1}
	taskSchema        = cache.Schema{Name: "task", Version: 1}
	taskListSchema    = cache.Schema{Name: "task_list", Version: 1}
	userSchema        = cache.Schema{Name: "user", Version: 1}
)

const (
	DatasetTTL = time.Hour
	ModelTTL   = time.Hour
	TaskTTL    = 10 * time.Minute
	UserTTL    = 30 * time.Minute
)

// resourceCache is the cache-aside view of one resource kind. Every store
// failure is logged and counted and otherwise treated as a miss, so the
// services stay correct with the cache unavailable.
type resourceCache struct {
	store   cache.Store
	kind    cache.Kind
	ttl     time.Duration
	metrics *metrics.Metrics
}

func newResourceCache(store cache.Store, kind cache.Kind, ttl time.Duration, m *metrics.Metrics) resourceCache {
	return resourceCache{store: store, kind: kind, ttl: ttl, metrics: m}
}

func (c resourceCache) get(ctx context.Context, schema cache.Schema, key string, v any) bool {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache get failed", "key", key, "error", err)
		c.metrics.CacheError(string(c.kind), "get")
		c.metrics.CacheLookup(string(c.kind), metrics.ResultError)
		return false
	}
	if !ok {
		c.metrics.CacheLookup(string(c.kind), metrics.ResultMiss)
		return false
	}

	if err := schema.Decode(raw, v); err != nil {
		if !errors.Is(err, cache.ErrSchemaMismatch) {
			slog.Warn("cache decode failed", "key", key, "error", err)
		}
		c.metrics.CacheLookup(string(c.kind), metrics.ResultMiss)
		c.delete(ctx, key)
		return false
	}

	c.metrics.CacheLookup(string(c.kind), metrics.ResultHit)
	return true
}

func (c resourceCache) set(ctx context.Context, schema cache.Schema, key string, v any) {
	raw, err := schema.Encode(v)
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
		c.metrics.CacheError(string(c.kind), "encode")
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
		c.metrics.CacheError(string(c.kind), "set")
	}
}

func (c resourceCache) delete(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		slog.Warn("cache delete failed", "keys", keys, "error", err)
		c.metrics.CacheError(string(c.kind), "delete")
	}
}

func (c resourceCache) deletePattern(ctx context.Context, pattern string) {
	if err := c.store.DeletePattern(ctx, pattern); err != nil {
		slog.Warn("cache pattern delete failed", "pattern", pattern, "error", err)
		c.metrics.CacheError(string(c.kind), "delete_pattern")
	}
}

// invalidate drops the object key and every list that may contain the
// object. Lists of system resources are cached under every user, so a change
// to one clears all lists of the kind.
func (c resourceCache) invalidate(ctx context.Context, id uuid.UUID, owner uuid.NullUUID) {
	c.delete(ctx, c.kind.ObjectKey(id))
	if owner.Valid {
		c.deletePattern(ctx, c.kind.OwnerListPattern(owner.UUID))
	} else {
		c.deletePattern(ctx, c.kind.AllListsPattern())
	}
}

// invalidateRefs drops the object keys of refs and the lists of every owner
// among them.
func (c resourceCache) invalidateRefs(ctx context.Context, refs []database.Ref) {
	if len(refs) == 0 {
		return
	}

	keys := make([]string, 0, len(refs))
	owners := make(map[uuid.NullUUID]struct{})
	for _, ref := range refs {
		keys = append(keys, c.kind.ObjectKey(ref.Id))
		owners[ref.OwnerId] = struct{}{}
	}
	c.delete(ctx, keys...)

	if _, ok := owners[uuid.NullUUID{}]; ok {
		c.deletePattern(ctx, c.kind.AllListsPattern())
		return
	}
	for owner := range owners {
		c.deletePattern(ctx, c.kind.OwnerListPattern(owner.UUID))
	}
}

// dependents are the caches of rows that hold references to datasets and
// models, refreshed when a delete detaches them.
type dependents struct {
	models resourceCache
	tasks  resourceCache
}

func newDependents(store cache.Store, m *metrics.Metrics) dependents {
	return dependents{
		models: newResourceCache(store, cache.Models, ModelTTL, m),
		tasks:  newResourceCache(store, cache.Tasks, TaskTTL, m),
	}
}

func (d dependents) invalidate(ctx context.Context, detached database.Detached) {
	d.models.invalidateRefs(ctx, detached.Models)
	d.tasks.invalidateRefs(ctx, detached.Tasks)
}

// getCached serves a single resource from the cache, re-checking visibility
// against the cached owner, and falls back to load on a miss.
func getCached[T any](
	ctx context.Context, c resourceCache, schema cache.Schema, id uuid.UUID,
	visible func(T) bool, load func() (T, error),
) (T, error) {
	key := c.kind.ObjectKey(id)

	var hit T
	if c.get(ctx, schema, key, &hit) {
		if !visible(hit) {
			var zero T
			return zero, NotFoundf("%s %s not found", c.kind, id)
		}
		return hit, nil
	}

	result, err := load()
	if err != nil {
		return result, err
	}
	c.set(ctx, schema, key, result)
	return result, nil
}

func listCached[T any](ctx context.Context, c resourceCache, schema cache.Schema, key string, load func() ([]T, error)) ([]T, error) {
	var hit []T
	if c.get(ctx, schema, key, &hit) {
		return hit, nil
	}

	result, err := load()
	if err != nil {
		return nil, err
	}
	c.set(ctx, schema, key, result)
	return result, nil
}
