package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Storage   StorageConfig
	Inference InferenceConfig
	Pipeline  PipelineConfig
	Catalog   CatalogConfig
	Ingest    IngestConfig
	Log       LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string
}

// StorageConfig names the object-storage buckets artifacts are referenced in.
type StorageConfig struct {
	BucketRaw       string
	BucketProcessed string
	BucketResults   string
}

// InferenceConfig holds the external preprocess/inference service endpoints.
type InferenceConfig struct {
	PreprocessURL string
	InferenceURL  string
	Timeout       time.Duration
	RPS           float64 // 0 disables client-side rate limiting
}

// PipelineConfig holds detection-ingestion parameters.
type PipelineConfig struct {
	ConfidenceThreshold float64 // detections below are dropped; 0 keeps everything
	SearchMarking       bool
	Workers             int
	QueueSize           int
	ProcessTimeout      time.Duration
}

// CatalogConfig holds tool catalog caching parameters.
type CatalogConfig struct {
	CacheTTL time.Duration
}

// IngestConfig holds the drop-directory watcher settings. An empty WatchDir disables it.
type IngestConfig struct {
	WatchDir    string
	Debounce    time.Duration
	InitialScan bool
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level slog.Level
	File  string
}

// LoadConfig loads configuration from a .env file (when present) and environment variables
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:    getEnv("GRPC_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		Storage: StorageConfig{
			BucketRaw:       getEnv("BUCKET_RAW", "raw"),
			BucketProcessed: getEnv("BUCKET_PROCESSED", "processed"),
			BucketResults:   getEnv("BUCKET_RESULTS", "results"),
		},
		Inference: InferenceConfig{
			PreprocessURL: strings.TrimRight(getEnv("PREPROCESS_URL", "http://localhost:8001"), "/"),
			InferenceURL:  strings.TrimRight(getEnv("INFERENCE_URL", "http://localhost:8002"), "/"),
			Timeout:       getEnvAsDuration("INFERENCE_TIMEOUT", 60*time.Second),
			RPS:           getEnvAsFloat64("INFERENCE_RPS", 0),
		},
		Pipeline: PipelineConfig{
			ConfidenceThreshold: getEnvAsFloat64("CONFIDENCE_THRESHOLD", 0),
			SearchMarking:       getEnvAsBool("SEARCH_MARKING", true),
			Workers:             int(getEnvAsInt32("PIPELINE_WORKERS", 6)),
			QueueSize:           int(getEnvAsInt32("PIPELINE_QUEUE_SIZE", 512)),
			ProcessTimeout:      getEnvAsDuration("PIPELINE_PROCESS_TIMEOUT", 3*time.Minute),
		},
		Catalog: CatalogConfig{
			CacheTTL: getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		},
		Ingest: IngestConfig{
			WatchDir:    getEnv("WATCH_DIR", ""),
			Debounce:    getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
			InitialScan: getEnvAsBool("WATCH_INITIAL_SCAN", false),
		},
		Log: LogConfig{
			Level: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
			File:  getEnv("LOG_FILE", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(value)); err == nil {
			return lvl
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Inference.PreprocessURL == "" {
		return NewAppError("CONFIG_ERROR", "PREPROCESS_URL is required", ErrInvalidInput)
	}
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "CONFIDENCE_THRESHOLD must be within [0,1]", ErrInvalidInput)
	}
	if c.Inference.RPS < 0 {
		return NewAppError("CONFIG_ERROR", "INFERENCE_RPS must not be negative", ErrInvalidInput)
	}
	return nil
}
