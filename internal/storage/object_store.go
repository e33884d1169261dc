package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidPath = errors.New("invalid object path")

// ObjectStore holds resource blobs, one bucket per resource kind.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	// Upload writes data under key and returns the stored object path.
	Upload(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error)

	// Delete succeeds if the object is already gone.
	Delete(ctx context.Context, bucket, objectPath string) error

	PresignedURL(ctx context.Context, bucket, objectPath string, ttl time.Duration) (string, error)
}

var unsafeChars = regexp.MustCompile(`[^\w\-. ]`)

// ObjectKey builds "{ownerId}/{random}_{filename}" so that concurrent uploads
// of the same file never collide.
func ObjectKey(ownerId uuid.NullUUID, filename string) string {
	prefix := "system"
	if ownerId.Valid {
		prefix = ownerId.UUID.String()
	}

	name := unsafeChars.ReplaceAllString(path.Base(filename), "_")
	if name == "." || name == "/" || name == "" {
		name = "object"
	}

	return prefix + "/" + uuid.NewString() + "_" + name
}
