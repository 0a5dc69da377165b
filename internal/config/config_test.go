package config

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "CACHE_BACKEND", "REPORT_CACHE_TTL", "TIMEZONE", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}
	cfg := Load(nil)
	if cfg.StoreBackend != "postgres" || cfg.CacheBackend != "redis" {
		t.Fatalf("backends = %s/%s", cfg.StoreBackend, cfg.CacheBackend)
	}
	if cfg.ReportCacheTTL != 10*time.Minute {
		t.Fatalf("ttl = %s", cfg.ReportCacheTTL)
	}
	if cfg.Location == nil || cfg.Location.String() != "Asia/Kolkata" {
		t.Fatalf("location = %v", cfg.Location)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("origins = %v", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("REPORT_CACHE_TTL", "90s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("WORKER_METRICS_ADDR", ":9091")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_POOL_SIZE", "32")
	t.Setenv("REDIS_TIMEOUT", "500ms")

	cfg := Load(zap.NewNop())
	if cfg.StoreBackend != "memory" || cfg.RateLimitPerMin != 30 || cfg.ReportCacheTTL != 90*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RedisDB != 2 || cfg.RedisPoolSize != 32 || cfg.RedisTimeout != 500*time.Millisecond {
		t.Fatalf("redis = db %d pool %d timeout %s", cfg.RedisDB, cfg.RedisPoolSize, cfg.RedisTimeout)
	}
	if cfg.WorkerMetricsAddr != ":9091" {
		t.Fatalf("worker metrics addr = %q", cfg.WorkerMetricsAddr)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.CORSOrigins)
	}
}

func TestInvalidValuesFallBackWithWarning(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "CACHE_BACKEND", "RATE_LIMIT_PER_MIN", "DB_MAX_IDLE_CONNS", "REPORT_CACHE_TTL", "REDIS_DB", "REDIS_POOL_SIZE", "REDIS_TIMEOUT"} {
		t.Setenv(key, "")
	}
	t.Setenv("QUEUE_BACKEND", "kafka")
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("DB_CONN_MAX_LIFETIME", "forever")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	core, logs := observer.New(zap.WarnLevel)
	cfg := Load(zap.New(core))
	if cfg.QueueBackend != "redis" || cfg.DBMaxOpenConns != 10 || cfg.DBConnMaxLife != time.Hour {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("location = %v", cfg.Location)
	}
	if logs.Len() != 4 {
		t.Fatalf("warnings = %d, want 4", logs.Len())
	}
}
