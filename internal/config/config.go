package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/repository"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DB repository.Credentials

	CatalogDBPath         string
	CatalogMigrationsPath string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	SecretKey              string
	AccessTokenTTL         time.Duration
	FirstSuperuser         string
	FirstSuperuserPassword string

	// LenientStatusPolicy lets administrators set any known status regardless
	// of the current one.
	LenientStatusPolicy bool

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	tokenMinutes, err := strconv.Atoi(getEnv("ACCESS_TOKEN_EXPIRE_MINUTES", "30"))
	if err != nil || tokenMinutes <= 0 {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_EXPIRE_MINUTES %q", os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"))
	}

	requestTimeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	policy := strings.ToLower(getEnv("ORDER_STATUS_POLICY", "strict"))
	if policy != "strict" && policy != "lenient" {
		return nil, fmt.Errorf("invalid ORDER_STATUS_POLICY %q: want strict or lenient", policy)
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50055"),
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
		DB: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              dbPort,
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "storefront"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},
		CatalogDBPath:          getEnv("CATALOG_DB_PATH", "./catalog.db"),
		CatalogMigrationsPath:  getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:           splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:             getEnv("KAFKA_TOPIC", "order-events"),
		SecretKey:              os.Getenv("SECRET_KEY"),
		AccessTokenTTL:         time.Duration(tokenMinutes) * time.Minute,
		FirstSuperuser:         getEnv("FIRST_SUPERUSER", ""),
		FirstSuperuserPassword: getEnv("FIRST_SUPERUSER_PASSWORD", ""),
		LenientStatusPolicy:    policy == "lenient",
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
	}

	if cfg.SecretKey == "" {
		return nil, errors.New("SECRET_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
