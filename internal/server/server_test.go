package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/konfigurator/catalogstore/internal/config"
	"github.com/konfigurator/catalogstore/internal/lock"
	"github.com/konfigurator/catalogstore/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: "0", CORSOrigins: []string{"*"}},
		Storage:   config.StorageConfig{Backend: storage.KindMemory},
		Lock:      config.LockConfig{Backend: config.LockLocal, Timeout: time.Second, TTL: 5 * time.Second},
		RateLimit: config.RateLimitConfig{Enabled: true, RPS: 100, Burst: 100, Window: time.Second},
		Lookup:    config.LookupConfig{FallbackAllWhenNoKeys: true},
		LogLevel:  "info",
	}
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rt, err := Open(context.Background(), testConfig())
	require.NoError(t, err)
	defer rt.Close()
	r := NewRouter(rt, prometheus.NewRegistry())

	w := serve(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"storage":true`)

	w = serve(r, http.MethodPost, "/api/articles", `{"name":"Sofa"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = serve(r, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rt, err := Open(context.Background(), testConfig())
	require.NoError(t, err)
	defer rt.Close()
	r := NewRouter(rt, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/articles", nil)
	req.Header.Set("Origin", "http://configurator.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpen_RedisLock(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	host, port, err := net.SplitHostPort(m.Addr())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Lock.Backend = config.LockRedis
	cfg.Redis = config.RedisConfig{Host: host, Port: port}
	cfg.RateLimit.UseRedis = true

	rt, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.Redis)

	ctx := context.Background()
	a, err := rt.Service.CreateArticle(ctx, "Chair")
	require.NoError(t, err)
	v, err := rt.Service.SaveSnapshot(ctx, a.ID, []byte(`{"sections":[]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	r := NewRouter(rt, prometheus.NewRegistry())
	w := serve(r, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":true`)
}

func TestOpen_RedisLockUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Lock.Backend = config.LockRedis
	cfg.Redis = config.RedisConfig{Host: "127.0.0.1", Port: "1"}

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewLocker(t *testing.T) {
	cfg := testConfig()
	l, err := newLocker(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &lock.Local{}, l)

	cfg.Lock = config.LockConfig{Backend: config.LockFile, Dir: t.TempDir()}
	l, err = newLocker(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &lock.File{}, l)
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	rt, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()

	// Serve registers on the default registry; keep it to a single call per test binary
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, rt) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	list, err := rt.Service.ListArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1, "default article is bootstrapped")
}
