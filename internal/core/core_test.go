package core_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/messaging"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/Schemion/schemion-api/internal/storage"
	"github.com/Schemion/schemion-api/pkg/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var buckets = core.Buckets{Datasets: "datasets", Models: "models", TaskInputs: "schemas-images"}

const testSecret = "core-test-secret-0123456789"

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

type testEnv struct {
	db       *gorm.DB
	dir      string
	objects  storage.ObjectStore
	cache    cache.Store
	queue    *messaging.InMemoryQueue
	services *core.Services
}

type envOption func(*core.Dependencies)

func withObjects(objects storage.ObjectStore) envOption {
	return func(d *core.Dependencies) { d.Objects = objects }
}

func withCache(store cache.Store) envOption {
	return func(d *core.Dependencies) { d.Cache = store }
}

func withDispatcher(dispatcher messaging.Dispatcher) envOption {
	return func(d *core.Dependencies) { d.Dispatcher = dispatcher }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	dir := t.TempDir()
	local, err := storage.NewLocalObjectStore(dir)
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)

	deps := core.Dependencies{
		DB:             createDB(t),
		Objects:        local,
		Buckets:        buckets,
		Cache:          cache.NewMemoryStore(0),
		Dispatcher:     queue,
		Tokens:         tokens,
		Metrics:        m,
		DownloadURLTTL: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testEnv{
		db:       deps.DB,
		dir:      dir,
		objects:  deps.Objects,
		cache:    deps.Cache,
		queue:    queue,
		services: core.NewServices(deps),
	}
}

func (e *testEnv) createUser(t *testing.T, role string) auth.Principal {
	user := database.User{
		Id:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "unused",
		Role:         role,
		CreationTime: time.Now().UTC(),
	}
	require.NoError(t, e.db.Create(&user).Error)
	return auth.Principal{UserId: user.Id, Role: role}
}

// blobCount counts the files stored in a bucket.
func (e *testEnv) blobCount(t *testing.T, bucket string) int {
	count := 0
	err := filepath.WalkDir(filepath.Join(e.dir, bucket), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func (e *testEnv) blobExists(bucket, objectPath string) bool {
	_, err := os.Stat(filepath.Join(e.dir, bucket, filepath.FromSlash(objectPath)))
	return err == nil
}

func (e *testEnv) rowCount(t *testing.T, model any) int64 {
	var count int64
	require.NoError(t, e.db.Model(model).Count(&count).Error)
	return count
}

func zipUpload(t *testing.T, name string, files map[string]string) core.Upload {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	data := buf.Bytes()
	return core.Upload{Filename: name, ContentType: "application/zip", Size: int64(len(data)), Content: bytes.NewReader(data)}
}

func datasetUpload(t *testing.T, images int) core.Upload {
	files := map[string]string{"labels/classes.yaml": "names:\n  - cat\n  - dog\n"}
	for i := 0; i < images; i++ {
		files[filepath.ToSlash(filepath.Join("images", uuid.NewString()+".jpg"))] = "\xff\xd8\xff\xe0 jpeg"
	}
	return zipUpload(t, "cats.zip", files)
}

func modelUpload() core.Upload {
	// Protocol 2 pickle header.
	data := append([]byte{0x80, 0x02, 0x7d, 0x71, 0x00}, bytes.Repeat([]byte{0x01}, 64)...)
	return core.Upload{Filename: "weights.pt", Size: int64(len(data)), Content: bytes.NewReader(data)}
}

func pngUpload() core.Upload {
	data := append([]byte("\x89PNG\x0D\x0A\x1A\x0A"), bytes.Repeat([]byte{0x00}, 32)...)
	return core.Upload{Filename: "page.png", Size: int64(len(data)), Content: bytes.NewReader(data)}
}

func (e *testEnv) createDataset(t *testing.T, owner auth.Principal, name string) uuid.UUID {
	ds, err := e.services.Datasets.Create(context.Background(), core.CreateDatasetRequest{Name: name, File: datasetUpload(t, 3)}, owner)
	require.NoError(t, err)
	return ds.Id
}

func (e *testEnv) createModel(t *testing.T, owner auth.Principal, name string) uuid.UUID {
	m, err := e.services.Models.Create(context.Background(), core.CreateModelRequest{Name: name, Architecture: "yolo", File: modelUpload()}, owner)
	require.NoError(t, err)
	return m.Id
}

// failingDispatcher rejects every publish.
type failingDispatcher struct{}

func (failingDispatcher) Publish(ctx context.Context, queue string, msg models.TaskMessage) error {
	return errors.New("broker unreachable")
}

func (failingDispatcher) Close() {}

// failingDeletes wraps an object store and fails every delete.
type failingDeletes struct {
	storage.ObjectStore
}

func (failingDeletes) Delete(ctx context.Context, bucket, objectPath string) error {
	return errors.New("storage unavailable")
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("cache down")
}

func (brokenCache) Delete(ctx context.Context, keys ...string) error {
	return errors.New("cache down")
}

func (brokenCache) DeletePattern(ctx context.Context, pattern string) error {
	return errors.New("cache down")
}
