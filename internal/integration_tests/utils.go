//go:build integration

package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	backend "github.com/Schemion/schemion-api/internal/api"
	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/messaging"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/Schemion/schemion-api/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

var buckets = core.Buckets{Datasets: "datasets", Models: "models", TaskInputs: "schemas-images"}

func createDB(t *testing.T) *gorm.DB {
	uri := setupPostgresContainer(t, context.Background())
	db, err := database.NewDatabase(uri)
	require.NoError(t, err)

	return db
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) string {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	return connStr
}

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
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

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

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

func setupObjectStore(t *testing.T, ctx context.Context) *storage.S3ObjectStore {
	objects, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        setupMinioContainer(t, ctx),
		Region:          "us-east-1",
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)
	return objects
}

// consume reads the next message from a queue, waiting up to timeout.
func consume(t *testing.T, amqpURL, queue string, timeout time.Duration) amqp.Delivery {
	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer conn.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg, ok, err := ch.Get(queue, true)
		require.NoError(t, err)
		if ok {
			return msg
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("no message received on %s within %v", queue, timeout)
	return amqp.Delivery{}
}

type environment struct {
	db      *gorm.DB
	objects *storage.S3ObjectStore
	cache   *cache.RedisStore
	amqpURL string
	tokens  *auth.TokenIssuer
	router  chi.Router
}

// setupEnvironment runs the full production stack against containers.
func setupEnvironment(t *testing.T, ctx context.Context) *environment {
	db := createDB(t)

	objects := setupObjectStore(t, ctx)
	for _, bucket := range []string{buckets.Datasets, buckets.Models, buckets.TaskInputs} {
		require.NoError(t, objects.CreateBucket(ctx, bucket))
	}

	redisStore, err := cache.NewRedisStore(setupRedisContainer(t, ctx))
	require.NoError(t, err)
	t.Cleanup(func() { redisStore.Close() })

	amqpURL := setupRabbitMQContainer(t, ctx)
	dispatcher, err := messaging.NewRabbitMQDispatcher(amqpURL)
	require.NoError(t, err)
	t.Cleanup(dispatcher.Close)

	tokens, err := auth.NewTokenIssuer("integration-test-secret-0123", time.Hour)
	require.NoError(t, err)

	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	services := core.NewServices(core.Dependencies{
		DB:             db,
		Objects:        objects,
		Buckets:        buckets,
		Cache:          redisStore,
		Dispatcher:     dispatcher,
		Tokens:         tokens,
		Metrics:        m,
		DownloadURLTTL: 15 * time.Minute,
	})

	router := chi.NewRouter()
	backend.NewBackendService(services, tokens).AddRoutes(router)

	return &environment{
		db:      db,
		objects: objects,
		cache:   redisStore,
		amqpURL: amqpURL,
		tokens:  tokens,
		router:  router,
	}
}

func (e *environment) serve(req *http.Request, token string, dest any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return fmt.Errorf("expected status code 200, got %d: %v", rr.Code, rr.Body.String())
	}

	if dest != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

func (e *environment) httpRequest(method, endpoint, token string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		requestBody, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(requestBody)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")
	return e.serve(req, token, dest)
}

func (e *environment) upload(endpoint, token string, fields map[string]string, filename string, data []byte, dest any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req := httptest.NewRequest(http.MethodPost, endpoint, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.serve(req, token, dest)
}
