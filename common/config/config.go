package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Blob      BlobConfig
	Cache     CacheConfig
	Upload    UploadConfig
	Locking   LockingConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings for the metadata store
type DatabaseConfig struct {
	Backend     string // "postgres" or "memory"
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// BlobConfig holds blob store settings
type BlobConfig struct {
	Backend  string // "local", "redis" or "memory"
	LocalDir string
}

// CacheConfig holds two-tier cache settings
type CacheConfig struct {
	Enabled        bool
	MemoryCapacity int // Tier A: max entries
	DiskDir        string
	DiskBudgetMB   int // Tier B: total byte budget
	DefaultTTL     time.Duration
}

// UploadConfig holds chunked upload session settings
type UploadConfig struct {
	SpoolDir         string
	DefaultChunkSize int64
	SessionTTL       time.Duration
	SweepInterval    time.Duration
}

// LockingConfig holds document lock settings
type LockingConfig struct {
	AcquireTimeout time.Duration
}

// RedisConfig holds Redis connection settings (redis blob backend)
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
	MetricsPort int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Backend:     getEnv("METADATA_BACKEND", "postgres"),
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "docvault"),
			User:        getEnv("POSTGRES_USER", "docvault"),
			Password:    getEnv("POSTGRES_PASSWORD", "docvault"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Blob: BlobConfig{
			Backend:  getEnv("BLOB_BACKEND", "local"),
			LocalDir: getEnv("BLOB_LOCAL_DIR", "/var/lib/docvault/blobs"),
		},
		Cache: CacheConfig{
			Enabled:        getEnvBool("CACHE_ENABLED", true),
			MemoryCapacity: getEnvInt("CACHE_MEMORY_CAPACITY", 1000),
			DiskDir:        getEnv("CACHE_DISK_DIR", "/var/lib/docvault/cache"),
			DiskBudgetMB:   getEnvInt("CACHE_DISK_BUDGET_MB", 512),
			DefaultTTL:     getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Upload: UploadConfig{
			SpoolDir:         getEnv("UPLOAD_SPOOL_DIR", "/var/lib/docvault/uploads"),
			DefaultChunkSize: int64(getEnvInt("UPLOAD_CHUNK_SIZE", 5*1024*1024)),
			SessionTTL:       getEnvDuration("UPLOAD_SESSION_TTL", 24*time.Hour),
			SweepInterval:    getEnvDuration("UPLOAD_SWEEP_INTERVAL", 10*time.Minute),
		},
		Locking: LockingConfig{
			AcquireTimeout: getEnvDuration("LOCK_ACQUIRE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Backend == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	}

	if c.Cache.MemoryCapacity < 1 {
		return fmt.Errorf("cache memory capacity must be positive")
	}

	if c.Cache.DiskBudgetMB < 1 {
		return fmt.Errorf("cache disk budget must be positive")
	}

	if c.Upload.DefaultChunkSize < 1 {
		return fmt.Errorf("upload chunk size must be positive")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port address for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
