package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Server struct {
	Port           int           `env:"API_PORT" envDefault:"8001"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	DownloadURLTTL time.Duration `env:"PRESIGNED_URL_TTL" envDefault:"15m"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5m"`
}

type Auth struct {
	JWTSecret string        `env:"JWT_SECRET,notEmpty,required"`
	TokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`

	// Optional bootstrap admin, created at start-up when both are set.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

type Buckets struct {
	Datasets   string `env:"DATASETS_BUCKET" envDefault:"datasets"`
	Models     string `env:"MODELS_BUCKET" envDefault:"models"`
	TaskInputs string `env:"TASK_INPUTS_BUCKET" envDefault:"schemas-images"`
}

func (b Buckets) All() []string {
	return []string{b.Datasets, b.Models, b.TaskInputs}
}

// APIConfig configures the production server.
type APIConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RedisURL          string `env:"REDIS_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	Server  Server
	Auth    Auth
	Buckets Buckets
}

// LocalConfig configures the single process mode, all state lives under Root.
type LocalConfig struct {
	Root string `env:"ROOT" envDefault:"./schemion-data"`

	Server  Server
	Auth    Auth
	Buckets Buckets
}

func Parse[T any]() (T, error) {
	cfg, err := env.ParseAs[T]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

func (c APIConfig) Validate() error {
	if c.S3EndpointURL != "" && (c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
		return errors.New("S3_ENDPOINT_URL is set but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing")
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}
