package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Queue      QueueConfig
	Extraction ExtractionConfig
	Remote     RemoteConfig
	Worker     WorkerConfig
	Metrics    MetricsConfig
}

// QueueConfig holds queue-store configuration
type QueueConfig struct {
	DataDir    string // private store: pending.json + images/
	SharedDir  string // cross-process handoff area: inbox.json + images/
	Backend    string // "file" or "sqlite"
	SQLitePath string
}

// ExtractionConfig holds vision-endpoint configuration
type ExtractionConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

// RemoteConfig holds record-store configuration
type RemoteConfig struct {
	DatabaseURL string
	DialTimeout time.Duration
}

// WorkerConfig holds worker-loop configuration
type WorkerConfig struct {
	InterJobDelay time.Duration
}

// MetricsConfig holds the metrics listener configuration
type MetricsConfig struct {
	Addr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			DataDir:    getEnv("QUEUE_DATA_DIR", "./data"),
			SharedDir:  getEnv("QUEUE_SHARED_DIR", ""),
			Backend:    getEnv("QUEUE_BACKEND", "file"),
			SQLitePath: getEnv("QUEUE_SQLITE_PATH", "./data/queue.db"),
		},
		Extraction: ExtractionConfig{
			URL:       getEnv("EXTRACTION_URL", ""),
			AuthToken: getEnv("EXTRACTION_TOKEN", ""),
			Timeout:   getEnvAsDuration("EXTRACTION_TIMEOUT", 90*time.Second),
		},
		Remote: RemoteConfig{
			DatabaseURL: getEnv("DB_URL", ""),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Worker: WorkerConfig{
			InterJobDelay: getEnvAsDuration("WORKER_INTER_JOB_DELAY", 500*time.Millisecond),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9190"),
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

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
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

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Queue.DataDir == "" {
		return NewAppError("CONFIG_ERROR", "QUEUE_DATA_DIR is required", ErrInvalidInput)
	}
	if c.Extraction.URL == "" {
		return NewAppError("CONFIG_ERROR", "EXTRACTION_URL is required", ErrInvalidInput)
	}
	if c.Remote.DatabaseURL == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	return nil
}
