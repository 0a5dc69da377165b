package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/app"
	"rollcall/internal/attendance"
	"rollcall/internal/cache"
	"rollcall/internal/config"
	"rollcall/internal/logging"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

// Worker consumes roster imports and registers the courses they carry.
func main() {
	config.LoadDotEnv()
	logger, err := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	cfg := config.Load(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open backends failed", zap.Error(err))
	}
	defer deps.Close()
	if cfg.QueueBackend == "memory" {
		logger.Warn("memory queue is process-local; the worker will not see api imports")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if addr := cfg.WorkerMetricsAddr; addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	svc := attendance.NewService(deps.Store, logger, cfg.Location)
	messages, err := deps.Queue.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started", zap.String("queue", cfg.QueueKey))
	for msg := range messages {
		handle(ctx, svc, deps.Cache, m, logger, msg)
	}
	logger.Info("worker stopped")
}

func handle(ctx context.Context, svc *attendance.Service, reports cache.Reports, m *metrics.Metrics, logger *zap.Logger, msg queue.Message) {
	if msg.Type != attendance.RosterImportType {
		logger.Warn("skipping unknown message", zap.String("type", msg.Type))
		m.RosterImports.WithLabelValues("skipped").Inc()
		return
	}
	course, err := svc.ApplyRosterImport(ctx, msg.Body)
	if err != nil {
		logger.Error("roster import failed", zap.Error(err))
		m.RosterImports.WithLabelValues("failed").Inc()
		return
	}
	if err := reports.Invalidate(ctx); err != nil {
		logger.Warn("report cache invalidation failed", zap.Error(err))
	}
	m.RosterImports.WithLabelValues("applied").Inc()
	logger.Info("roster imported",
		zap.String("course", course.Code),
		zap.Strings("owners", course.Owners),
	)
}
