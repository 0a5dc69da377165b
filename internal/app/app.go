// Package app opens the backends selected by configuration.
package app

import (
	"context"
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/cache"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/queue"
	"rollcall/internal/store"
	"rollcall/migrations"
)

// Deps are the backends shared by the api and worker processes.
type Deps struct {
	Store attendance.Store
	DB    *store.DB
	Redis *store.Redis
	Cache cache.Reports
	Queue queue.Queue
}

// Open connects the configured backends. Postgres is migrated before use.
func Open(ctx context.Context, cfg config.App, logger *zap.Logger) (*Deps, error) {
	d := &Deps{}
	if cfg.StoreBackend == "postgres" {
		db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolOptions{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLife,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.DB = db
		if err := migrations.Up(ctx, db.Client, logger); err != nil {
			d.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		d.Store = attendance.NewRepository(db.Client)
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		d.Store = attendance.NewMemoryStore()
	}

	if cfg.QueueBackend == "redis" || cfg.CacheBackend == "redis" {
		d.Redis = store.NewRedis(store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
			Timeout:  cfg.RedisTimeout,
		})
		if !d.Redis.Healthy(ctx) {
			logger.Warn("redis not reachable", zap.String("addr", d.Redis.Addr()))
		}
	}

	switch cfg.QueueBackend {
	case "redis":
		d.Queue = queue.NewRedisQueue(d.Redis.Client, cfg.QueueKey, logger)
	default:
		d.Queue = queue.NewInMemory(64)
	}

	switch cfg.CacheBackend {
	case "redis":
		d.Cache = cache.NewRedis(d.Redis.Client, "rollcall:reports", cfg.ReportCacheTTL)
	case "memory":
		d.Cache = cache.NewMemory(cfg.ReportCacheTTL)
	default:
		d.Cache = cache.Nop{}
	}
	return d, nil
}

// Health lists the checks served on /healthz.
func (d *Deps) Health() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{
		"store": func(ctx context.Context) bool { return d.Store.Ping(ctx) == nil },
	}
	if d.Redis != nil {
		checks["redis"] = d.Redis.Healthy
	}
	return checks
}

func (d *Deps) Close() {
	_ = d.Redis.Close()
	_ = d.DB.Close()
}

// CORS allows the configured origins; "*" allows any.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:        86400,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cors.New(cfg)
}
