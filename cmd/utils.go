package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Schemion/schemion-api/internal/api"
	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/config"
	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// EnsureAdminUser creates the bootstrap admin if no user with the email exists.
// An existing user keeps its password and role.
func EnsureAdminUser(db *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	var user database.User
	result := db.Where(database.User{Email: strings.ToLower(strings.TrimSpace(email))}).Attrs(database.User{
		Id:           uuid.New(),
		PasswordHash: hash,
		Role:         database.RoleAdmin,
		CreationTime: time.Now().UTC(),
	}).FirstOrCreate(&user)
	if result.Error != nil {
		return fmt.Errorf("failed to create admin user: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		slog.Info("created admin user", "user_id", user.Id, "email", user.Email)
	} else if user.Role != database.RoleAdmin {
		slog.Warn("bootstrap admin email belongs to a non admin user", "user_id", user.Id)
	}
	return nil
}

func CreateBuckets(ctx context.Context, objects storage.ObjectStore, buckets []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		g.Go(func() error {
			if err := objects.CreateBucket(ctx, bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// NewServer builds the http server with the shared middleware stack. extra is
// called with the root router before the api routes are added.
func NewServer(cfg config.Server, services *core.Services, tokens *auth.TokenIssuer, extra func(chi.Router)) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	if extra != nil {
		extra(r)
	}

	apiHandler := api.NewBackendService(services, tokens)
	r.Route("/api/v1", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

// RunServer serves until SIGINT or SIGTERM and then shuts down gracefully.
func RunServer(server *http.Server) {
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", server.Addr, err)
	}

	log.Println("Server stopped.")
}
