package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/cache"
	"rollcall/internal/config"
	"rollcall/internal/queue"
)

func TestOpenMemoryBackends(t *testing.T) {
	cfg := config.App{
		StoreBackend:   "memory",
		QueueBackend:   "memory",
		CacheBackend:   "memory",
		ReportCacheTTL: time.Minute,
	}
	d, err := Open(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if _, ok := d.Store.(*attendance.MemoryStore); !ok {
		t.Fatalf("store = %T", d.Store)
	}
	if _, ok := d.Queue.(*queue.InMemory); !ok {
		t.Fatalf("queue = %T", d.Queue)
	}
	if _, ok := d.Cache.(*cache.Memory); !ok {
		t.Fatalf("cache = %T", d.Cache)
	}
	if d.Redis != nil {
		t.Fatal("redis opened without a redis backend")
	}
	checks := d.Health()
	if len(checks) != 1 || !checks["store"](context.Background()) {
		t.Fatalf("health = %v", checks)
	}

	cfg.CacheBackend = "none"
	d, err = Open(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Cache.(cache.Nop); !ok {
		t.Fatalf("cache = %T", d.Cache)
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		origins []string
		origin  string
		want    string
	}{
		{[]string{"*"}, "https://any.example", "*"},
		{[]string{"https://app.example"}, "https://app.example", "https://app.example"},
		{[]string{"https://app.example"}, "https://evil.example", ""},
	} {
		r := gin.New()
		r.Use(CORS(tc.origins))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", tc.origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.want {
			t.Fatalf("origins %v, origin %s: allow = %q, want %q", tc.origins, tc.origin, got, tc.want)
		}
	}
}
