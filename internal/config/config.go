package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/konfigurator/catalogstore/internal/storage"
	"github.com/konfigurator/catalogstore/pkg/logger"
	"github.com/spf13/viper"
)

// Lock backends.
const (
	LockLocal = "local"
	LockFile  = "file"
	LockRedis = "redis"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	MinIO     MinIOConfig
	Badger    BadgerConfig
	Lock      LockConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Lookup    LookupConfig
	LogLevel  string `validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	Port         string `validate:"required,numeric"`
	Host         string
	Environment  string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StorageConfig struct {
	Backend  string `validate:"oneof=memory fs badger mongo minio sqlite postgres"`
	Root     string
	Compress bool
	SQLDSN   string
}

type MongoDBConfig struct {
	URI        string
	Database   string `validate:"required"`
	Collection string `validate:"required"`
	Timeout    time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

type LockConfig struct {
	Backend string `validate:"oneof=local file redis"`
	Dir     string
	Timeout time.Duration `validate:"gt=0"`
	TTL     time.Duration `validate:"gt=0"`
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int `validate:"gte=0"`
}

// Addr is host:port, or "" when no host is configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return net.JoinHostPort(r.Host, r.Port)
}

type RateLimitConfig struct {
	Enabled  bool
	UseRedis bool
	RPS      float64 `validate:"gte=0"`
	Burst    int     `validate:"gte=0"`
	Window   time.Duration
}

type LookupConfig struct {
	FallbackAllWhenNoKeys bool
}

var validate = validator.New()

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("CORS_ORIGINS", "*")
	viper.SetDefault("STORAGE_BACKEND", storage.KindFS)
	viper.SetDefault("STORAGE_ROOT", "./data")
	viper.SetDefault("STORAGE_COMPRESS", false)
	viper.SetDefault("MONGODB_DATABASE", "catalogstore")
	viper.SetDefault("MONGODB_COLLECTION", "resources")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MINIO_BUCKET", "catalogstore")
	viper.SetDefault("BADGER_SYNC_WRITES", true)
	viper.SetDefault("LOCK_TIMEOUT", 10)
	viper.SetDefault("LOCK_TTL", 30)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 20)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("RATE_LIMIT_WINDOW", 1)
	viper.SetDefault("LOOKUP_FALLBACK_ALL", true)
	viper.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			CORSOrigins:  splitList(viper.GetString("CORS_ORIGINS")),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  strings.ToLower(viper.GetString("STORAGE_BACKEND")),
			Root:     viper.GetString("STORAGE_ROOT"),
			Compress: viper.GetBool("STORAGE_COMPRESS"),
			SQLDSN:   viper.GetString("SQL_DSN"),
		},
		MongoDB: MongoDBConfig{
			URI:        viper.GetString("MONGODB_URI"),
			Database:   viper.GetString("MONGODB_DATABASE"),
			Collection: viper.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: viper.GetString("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
			Prefix:    viper.GetString("MINIO_PREFIX"),
		},
		Badger: BadgerConfig{
			Path:       viper.GetString("BADGER_PATH"),
			InMemory:   viper.GetBool("BADGER_IN_MEMORY"),
			SyncWrites: viper.GetBool("BADGER_SYNC_WRITES"),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(viper.GetString("LOCK_BACKEND")),
			Dir:     viper.GetString("LOCK_DIR"),
			Timeout: time.Duration(viper.GetInt("LOCK_TIMEOUT")) * time.Second,
			TTL:     time.Duration(viper.GetInt("LOCK_TTL")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis: viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:      viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:    viper.GetInt("RATE_LIMIT_BURST"),
			Window:   time.Duration(viper.GetInt("RATE_LIMIT_WINDOW")) * time.Second,
		},
		Lookup: LookupConfig{
			FallbackAllWhenNoKeys: viper.GetBool("LOOKUP_FALLBACK_ALL"),
		},
		LogLevel: strings.ToLower(viper.GetString("LOG_LEVEL")),
	}

	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = defaultLockBackend(cfg.Storage.Backend)
	}
	if cfg.Lock.Dir == "" && cfg.Storage.Root != "" {
		cfg.Lock.Dir = cfg.Storage.Root + "/.locks"
	}
	if cfg.Badger.Path == "" && cfg.Storage.Root != "" {
		cfg.Badger.Path = cfg.Storage.Root + "/badger"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Storage.Backend == storage.KindMemory {
		logger.Warnf("STORAGE_BACKEND=memory: catalogs are lost on restart")
	}
	return cfg, nil
}

// processPrivate reports whether only one process can reach the store: memory
// lives in the process and badger holds an exclusive directory lock.
func processPrivate(backend string) bool {
	return backend == storage.KindMemory || backend == storage.KindBadger
}

// defaultLockBackend picks in-process locks only when no other process can
// write the same store.
func defaultLockBackend(backend string) string {
	if processPrivate(backend) {
		return LockLocal
	}
	return LockFile
}

// Validate checks field constraints and the settings each selected backend needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch c.Storage.Backend {
	case storage.KindFS:
		if c.Storage.Root == "" {
			return fmt.Errorf("STORAGE_ROOT is required for the fs backend")
		}
	case storage.KindMongo:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	case storage.KindMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio backend")
		}
	case storage.KindSQLite, storage.KindPostgres:
		if c.Storage.SQLDSN == "" {
			return fmt.Errorf("SQL_DSN is required for the %s backend", c.Storage.Backend)
		}
	case storage.KindBadger:
		if !c.Badger.InMemory && c.Badger.Path == "" {
			return fmt.Errorf("BADGER_PATH is required unless BADGER_IN_MEMORY is set")
		}
	}
	switch c.Lock.Backend {
	case LockLocal:
		if !processPrivate(c.Storage.Backend) {
			return fmt.Errorf("LOCK_BACKEND=local cannot guard the %s backend across processes; use file or redis", c.Storage.Backend)
		}
	case LockFile:
		if c.Lock.Dir == "" {
			return fmt.Errorf("LOCK_DIR is required for file locks")
		}
	case LockRedis:
		if c.Redis.Addr() == "" {
			return fmt.Errorf("REDIS_HOST is required for redis locks")
		}
	}
	if c.RateLimit.UseRedis && c.Redis.Addr() == "" {
		return fmt.Errorf("REDIS_HOST is required for the redis rate limiter")
	}
	return nil
}

// StorageBackend maps the configuration onto storage.Open's input.
func (c *Config) StorageBackend() storage.Config {
	return storage.Config{
		Backend:  c.Storage.Backend,
		Root:     c.Storage.Root,
		Compress: c.Storage.Compress,
		SQLDSN:   c.Storage.SQLDSN,
		Badger: storage.BadgerConfig{
			Path:       c.Badger.Path,
			InMemory:   c.Badger.InMemory,
			SyncWrites: c.Badger.SyncWrites,
		},
		Mongo: storage.MongoConfig{
			URI:        c.MongoDB.URI,
			Database:   c.MongoDB.Database,
			Collection: c.MongoDB.Collection,
			Timeout:    c.MongoDB.Timeout,
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  c.MinIO.Endpoint,
			AccessKey: c.MinIO.AccessKey,
			SecretKey: c.MinIO.SecretKey,
			UseSSL:    c.MinIO.UseSSL,
			Bucket:    c.MinIO.Bucket,
			Prefix:    c.MinIO.Prefix,
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
