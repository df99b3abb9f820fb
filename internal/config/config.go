// Package config provides application configuration loaded from environment
// variables, with .env support for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dolr-ai/content-moderation-sub000/internal/retry"
)

// Config holds all serving-path configuration.
type Config struct {
	Port     string
	LogLevel string

	EmbeddingURL        string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingDimensions int

	GenerationURL    string
	GenerationModel  string
	GenerationAPIKey string

	// IndexPath / MetadataPath locate the persisted flat index pair.
	IndexPath    string
	MetadataPath string

	// WarehouseDSN enables the remote index when set; WarehouseTable is the
	// vector table and WarehouseOptions the JSON tuning blob.
	WarehouseDSN     string
	WarehouseTable   string
	WarehouseOptions string

	// PoolSize bounds simultaneous outbound connections shared by both
	// gateways.
	PoolSize       int
	GatewayTimeout time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	ConfidenceThreshold float64
	MaxTextLength       int
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// Load reads configuration from environment variables, loading .env first if
// present. The inference endpoints are required; everything else defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		EmbeddingURL:        os.Getenv("EMBEDDING_URL"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingAPIKey:     os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),

		GenerationURL:    os.Getenv("GENERATION_URL"),
		GenerationModel:  getEnv("GENERATION_MODEL", "llama-3.3-70b-versatile"),
		GenerationAPIKey: os.Getenv("GENERATION_API_KEY"),

		IndexPath:    getEnv("INDEX_PATH", "./examples.flat"),
		MetadataPath: getEnv("METADATA_PATH", "./examples.jsonl"),

		WarehouseDSN:     os.Getenv("WAREHOUSE_DSN"),
		WarehouseTable:   getEnv("WAREHOUSE_TABLE", "moderation_examples"),
		WarehouseOptions: os.Getenv("WAREHOUSE_OPTIONS"),

		PoolSize:       getEnvAsInt("HTTP_POOL_SIZE", 32),
		GatewayTimeout: getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),

		RetryMaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 200*time.Millisecond),

		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0),
		MaxTextLength:       getEnvAsInt("MAX_TEXT_LENGTH", 2000),
	}

	if cfg.EmbeddingURL == "" {
		return nil, errors.New("config: EMBEDDING_URL is required")
	}
	if cfg.GenerationURL == "" {
		return nil, errors.New("config: GENERATION_URL is required")
	}
	if cfg.EmbeddingDimensions <= 0 {
		return nil, errors.New("config: EMBEDDING_DIMENSIONS must be positive")
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, errors.New("config: RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, errors.New("config: CONFIDENCE_THRESHOLD must be within [0,1]")
	}

	return cfg, nil
}

// RetryPolicy builds the shared gateway retry policy from the config.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.RetryMaxAttempts
	p.BaseDelay = c.RetryBaseDelay
	return p
}
