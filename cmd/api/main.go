package main

import (
	"context"
	"log"
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.Parse[config.APIConfig]()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := cmd.EnsureAdminUser(db, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("Failed to bootstrap admin user: %v", err)
	}

	objects, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := cmd.CreateBuckets(ctx, objects, cfg.Buckets.All()); err != nil {
		log.Fatalf("Failed to create buckets: %v", err)
	}

	redisStore, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisStore.Close()
	if err := redisStore.Ping(ctx); err != nil {
		// The services run without a working cache, every lookup is a miss.
		log.Printf("redis is unreachable, continuing without cache: %v", err)
	}
	cancel()

	dispatcher, err := messaging.NewRabbitMQDispatcher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer dispatcher.Close()

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to create token issuer: %v", err)
	}

	m, err := metrics.NewMetrics(prometheus.DefaultRegisterer)
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
		Cache:          redisStore,
		Dispatcher:     dispatcher,
		Tokens:         tokens,
		Metrics:        m,
		DownloadURLTTL: cfg.Server.DownloadURLTTL,
	})

	server := cmd.NewServer(cfg.Server, services, tokens, func(r chi.Router) {
		r.Handle("/metrics", promhttp.Handler())
	})

	cmd.RunServer(server)
}
