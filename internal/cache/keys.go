package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Kind namespaces the keys of one resource kind.
type Kind string

const (
	Datasets Kind = "dataset"
	Models   Kind = "model"
	Tasks    Kind = "task"
	Users    Kind = "user"
)

// ObjectKey is "{kind}:{id}".
func (k Kind) ObjectKey(id uuid.UUID) string {
	return string(k) + ":" + id.String()
}

func (k Kind) listPrefix() string {
	return string(k) + "_list"
}

// ListKey is "{kind}_list:{ownerId}:{skip}:{limit}:{fingerprint}". Every list
// result is namespaced by the user it was computed for.
func (k Kind) ListKey(ownerId uuid.UUID, skip, limit int, filters map[string]string) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", k.listPrefix(), ownerId, skip, limit, Fingerprint(filters))
}

// OwnerListPattern matches every cached list computed for ownerId.
func (k Kind) OwnerListPattern(ownerId uuid.UUID) string {
	return k.listPrefix() + ":" + ownerId.String() + ":*"
}

// AllListsPattern matches every cached list of this kind regardless of owner,
// used when a system resource changes since it appears in everyone's lists.
func (k Kind) AllListsPattern() string {
	return k.listPrefix() + ":*"
}

// Fingerprint hashes a filter set independent of map iteration order. Empty
// values are dropped so an unset filter and a missing one hash the same.
func Fingerprint(filters map[string]string) string {
	parts := make([]string, 0, len(filters))
	for k, v := range filters {
		if v == "" {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(sum[:8])
}
