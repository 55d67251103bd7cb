package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, loaded from the environment with an
// optional .env file for local development.
type Config struct {
	Port            string
	PostgresURL     string
	KafkaBrokers    []string
	DefaultTenant   string
	AdminJWTSecret  string
	EmailServiceURL string
	ServiceVersion  string
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. PostgresURL is required for
// services that touch storage; callers that do not need it pass
// requirePostgres=false.
func Load(requirePostgres bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		DefaultTenant:   getEnv("DEFAULT_TENANT", "trend-store-demo"),
		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", "dev-secret"),
		EmailServiceURL: os.Getenv("EMAIL_SERVICE_URL"),
		ServiceVersion:  getEnv("SERVICE_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if requirePostgres && cfg.PostgresURL == "" {
		return nil, errors.New("POSTGRES_URL environment variable is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
