// Package cache holds the read-through cache used in front of the resource
// repositories. The cache is never authoritative: every caller treats errors
// from a Store as a miss.
package cache

import (
	"context"
	"time"
)

type Store interface {
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes every key matching a glob such as "model_list:<owner>:*".
	DeletePattern(ctx context.Context, pattern string) error
}
