package config

import (
	"testing"
	"time"

	"github.com/konfigurator/catalogstore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("STORAGE_ROOT", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, storage.KindFS, cfg.Storage.Backend)
	assert.Equal(t, LockFile, cfg.Lock.Backend)
	assert.Equal(t, 10*time.Second, cfg.Lock.Timeout)
	assert.True(t, cfg.Lookup.FallbackAllWhenNoKeys)
	assert.Equal(t, cfg.Storage.Root+"/.locks", cfg.Lock.Dir)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("SQL_DSN", "file:catalog.db")
	t.Setenv("STORAGE_COMPRESS", "true")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOCK_TIMEOUT", "3")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("LOOKUP_FALLBACK_ALL", "false")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, storage.KindSQLite, cfg.Storage.Backend)
	assert.Equal(t, 3*time.Second, cfg.Lock.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.False(t, cfg.Lookup.FallbackAllWhenNoKeys)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)

	sc := cfg.StorageBackend()
	assert.Equal(t, "file:catalog.db", sc.SQLDSN)
	assert.True(t, sc.Compress)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":      {"STORAGE_BACKEND": "floppy"},
		"mongo without uri":    {"STORAGE_BACKEND": "mongo", "MONGODB_URI": ""},
		"postgres without dsn": {"STORAGE_BACKEND": "postgres", "SQL_DSN": ""},
		"redis lock no host":   {"STORAGE_BACKEND": "memory", "LOCK_BACKEND": "redis", "REDIS_HOST": ""},
		"bad lock backend":     {"STORAGE_BACKEND": "memory", "LOCK_BACKEND": "zookeeper"},
		"bad log level":        {"STORAGE_BACKEND": "memory", "LOG_LEVEL": "loud"},
		"local lock on fs":     {"STORAGE_BACKEND": "fs", "LOCK_BACKEND": "local"},
		"local lock on sqlite": {"STORAGE_BACKEND": "sqlite", "SQL_DSN": "file:c.db", "LOCK_BACKEND": "local"},
		"local lock on mongo":  {"STORAGE_BACKEND": "mongo", "MONGODB_URI": "mongodb://db", "LOCK_BACKEND": "local"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_DefaultLockBackend(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"fs":       {map[string]string{"STORAGE_BACKEND": "fs"}, LockFile},
		"sqlite":   {map[string]string{"STORAGE_BACKEND": "sqlite", "SQL_DSN": "file:c.db"}, LockFile},
		"postgres": {map[string]string{"STORAGE_BACKEND": "postgres", "SQL_DSN": "postgres://db"}, LockFile},
		"memory":   {map[string]string{"STORAGE_BACKEND": "memory"}, LockLocal},
		"badger":   {map[string]string{"STORAGE_BACKEND": "badger"}, LockLocal},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORAGE_ROOT", t.TempDir())
			t.Setenv("LOCK_BACKEND", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfig()
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Lock.Backend)
			assert.Equal(t, cfg.Storage.Root+"/.locks", cfg.Lock.Dir)
		})
	}
}

func TestRedisAddr(t *testing.T) {
	assert.Equal(t, "", RedisConfig{Port: "6379"}.Addr())
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: "6380"}.Addr())
}
