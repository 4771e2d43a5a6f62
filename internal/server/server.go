// Package server assembles the catalog store runtime from configuration: the
// storage backend, the locker, the optional Redis client and the HTTP router.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/konfigurator/catalogstore/internal/article/handler"
	"github.com/konfigurator/catalogstore/internal/article/service"
	"github.com/konfigurator/catalogstore/internal/config"
	"github.com/konfigurator/catalogstore/internal/lock"
	"github.com/konfigurator/catalogstore/internal/storage"
	"github.com/konfigurator/catalogstore/pkg/logger"
	"github.com/konfigurator/catalogstore/pkg/metrics"
	"github.com/konfigurator/catalogstore/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "catalogstore:lock:"

// Runtime owns the long-lived resources behind a Service.
type Runtime struct {
	Config  *config.Config
	Service service.Service
	Backend storage.Backend
	Redis   *redis.Client
	started time.Time
}

// Open connects everything cfg selects. Close releases it.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg, started: time.Now()}

	if addr := cfg.Redis.Addr(); addr != "" && (cfg.Lock.Backend == config.LockRedis || cfg.RateLimit.UseRedis) {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if cfg.Lock.Backend == config.LockRedis {
				return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
			}
			logger.Warnf("redis %s unavailable, rate limiting falls back to in-process: %v", addr, err)
		} else {
			rt.Redis = client
			logger.Infof("connected to redis %s", addr)
		}
	}

	locker, err := newLocker(cfg, rt.Redis)
	if err != nil {
		rt.Close()
		return nil, err
	}

	backend, err := storage.Open(ctx, cfg.StorageBackend())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	rt.Backend = backend
	rt.Service = service.New(backend, locker, service.Options{LockTimeout: cfg.Lock.Timeout})
	logger.Infof("storage=%s compress=%v lock=%s", cfg.Storage.Backend, cfg.Storage.Compress, cfg.Lock.Backend)
	return rt, nil
}

func newLocker(cfg *config.Config, client *redis.Client) (lock.Locker, error) {
	switch cfg.Lock.Backend {
	case config.LockFile:
		return lock.NewFile(cfg.Lock.Dir)
	case config.LockRedis:
		return lock.NewRedis(client, redisLockPrefix, cfg.Lock.TTL)
	}
	return lock.NewLocal(), nil
}

func (rt *Runtime) Close() error {
	var err error
	if rt.Backend != nil {
		err = rt.Backend.Close()
	}
	if rt.Redis != nil {
		if cerr := rt.Redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NewRouter builds the HTTP surface. reg receives the metric collectors; pass
// nil when they are already registered.
func NewRouter(rt *Runtime, reg prometheus.Registerer) *gin.Engine {
	cfg := rt.Config
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	cc := cors.DefaultConfig()
	cc.AllowHeaders = append(cc.AllowHeaders, middleware.ClientHeader)
	if len(cfg.Server.CORSOrigins) == 0 || (len(cfg.Server.CORSOrigins) == 1 && cfg.Server.CORSOrigins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.Server.CORSOrigins
	}
	r.Use(cors.New(cc))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: the backend must answer a listing and Redis, when used, a ping
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := map[string]bool{}
		ready := true

		_, err := rt.Backend.List(ctx, "articles")
		deps["storage"] = err == nil
		ready = ready && deps["storage"]

		if rt.Redis != nil {
			deps["redis"] = rt.Redis.Ping(ctx).Err() == nil
			ready = ready && deps["redis"]
		}

		uptime := time.Since(rt.started).String()
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime})
	})

	if reg != nil {
		metrics.RegisterCollectors(reg)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.RegisterSwagger(r)

	api := r.Group("/")
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rt.Redis != nil {
			api.Use(middleware.RedisRateLimitMiddleware(rt.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handler.RegisterArticleRoutes(api, rt.Service, handler.Options{FallbackAllWhenNoKeys: cfg.Lookup.FallbackAllWhenNoKeys})
	return r
}

// Serve runs the HTTP server until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, rt *Runtime) error {
	cfg := rt.Config
	if _, err := rt.Service.EnsureDefault(ctx); err != nil {
		return fmt.Errorf("bootstrap default article: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      NewRouter(rt, prometheus.DefaultRegisterer),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("catalog store listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
