package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	DBSource     string
	Port         string
	Env          string
	AdminSecret  string
	StoreBackend string
	LogLevel     string
}

func Load() (*Config, error) {
	// .env is a development convenience; deployments set the environment
	// directly.
	_ = godotenv.Load()

	adminSecret := os.Getenv("ADMIN_SECRET")
	if adminSecret == "" {
		return nil, fmt.Errorf("ADMIN_SECRET environment variable is required")
	}

	backend := getenv("STORE_BACKEND", BackendPostgres)
	if backend != BackendPostgres && backend != BackendMemory {
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q", BackendPostgres, BackendMemory)
	}

	dbSource := os.Getenv("DB_SOURCE")
	if backend == BackendPostgres && dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	return &Config{
		DBSource:     dbSource,
		Port:         getenv("SERVER_PORT", "8080"),
		Env:          getenv("ENVIRONMENT", "development"),
		AdminSecret:  adminSecret,
		StoreBackend: backend,
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
