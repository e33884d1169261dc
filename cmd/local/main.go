package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Schemion/schemion-api/cmd"
	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/config"
	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/messaging"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/Schemion/schemion-api/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "schemion.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// sqlite allows a single writer.
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to access database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

// drainQueue logs and acks the published task messages. There are no workers
// in local mode, the tasks stay queued.
func drainQueue(queue messaging.Reciever) {
	for task := range queue.Tasks() {
		slog.Info("task message published", "queue", task.Type(), "payload", string(task.Payload()))
		if err := task.Ack(); err != nil {
			slog.Warn("error acking task message", "queue", task.Type(), "error", err)
		}
	}
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Parse[config.LocalConfig]()
	if err != nil {
		log.Fatalf("%v", err)
	}

	db := createDatabase(cfg.Root)

	if err := cmd.EnsureAdminUser(db, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("Failed to bootstrap admin user: %v", err)
	}

	objects, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create local storage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := cmd.CreateBuckets(ctx, objects, cfg.Buckets.All()); err != nil {
		log.Fatalf("Failed to create buckets: %v", err)
	}
	cancel()

	queue := messaging.NewInMemoryQueue()
	defer queue.Close()
	go drainQueue(queue)

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to create token issuer: %v", err)
	}

	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	services := core.NewServices(core.Dependencies{
		DB:      db,
		Objects: objects,
		Buckets: core.Buckets{
			Datasets:   cfg.Buckets.Datasets,
			Models:     cfg.Buckets.Models,
			TaskInputs: cfg.Buckets.TaskInputs,
		},
		Cache:          cache.NewMemoryStore(10 * time.Minute),
		Dispatcher:     queue,
		Tokens:         tokens,
		Metrics:        m,
		DownloadURLTTL: cfg.Server.DownloadURLTTL,
	})

	cmd.RunServer(cmd.NewServer(cfg.Server, services, tokens, nil))
}
