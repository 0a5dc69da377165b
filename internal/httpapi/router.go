// Package httpapi exposes the attendance service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/cache"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

// Options wires the router. Cache, Queue and Logger may be left nil.
type Options struct {
	Service         *attendance.Service
	Cache           cache.Reports
	Queue           queue.Queue
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	Logger          *zap.Logger
	SigningKey      string
	Issuer          string
	RateLimitPerMin int
	Health          map[string]HealthCheck
	// Middleware runs before authentication, e.g. CORS.
	Middleware []gin.HandlerFunc
}

// Handler holds the dependencies shared by the route handlers.
type Handler struct {
	svc     *attendance.Service
	cache   cache.Reports
	queue   queue.Queue
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(opts Options) *gin.Engine {
	registerJSONNames()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	h := &Handler{
		svc:     opts.Service,
		cache:   opts.Cache,
		queue:   opts.Queue,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}

	r := gin.New()
	r.Use(httpmiddleware.RequestID())
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		opts.Logger.Error("panic recovered", zap.Any("panic", rec), zap.String("request_id", httpmiddleware.RequestIDFrom(c)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}))
	r.Use(httpmiddleware.AccessLog(opts.Logger, callerID, "/healthz", "/metrics"))
	r.Use(httpmiddleware.Observe(opts.Metrics))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(opts.Middleware...)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", healthz(opts.Health))

	v1 := r.Group("/v1", auth.Authenticate(opts.SigningKey, opts.Issuer))
	if opts.RateLimitPerMin > 0 {
		limiter := httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin)
		v1.Use(limiter.GinMiddleware(httpmiddleware.BySubject(callerID)))
	}
	h.mount(v1)
	return r
}

func (h *Handler) mount(v1 *gin.RouterGroup) {
	faculty := auth.RequireRole(attendance.RoleFaculty)

	v1.POST("/sessions", h.submitAttendance)
	v1.POST("/sessions/fetch", h.fetchSession)
	v1.POST("/sessions/unmarked", h.unmarkedSessions)
	v1.DELETE("/sessions", faculty, h.deleteSession)
	v1.POST("/sessions/:id/unlock", faculty, h.unlockSession)
	v1.DELETE("/sessions/:id", faculty, h.deleteSessionByID)

	v1.POST("/reports/student", h.studentReport)
	v1.POST("/reports/class", faculty, h.classReport)
	v1.GET("/reports/class/export", faculty, h.exportClassReport)
	v1.POST("/reports/master", auth.RequireRole(attendance.RoleFaculty, attendance.RoleClassRepresentative), h.masterReport)

	v1.GET("/courses", h.ownerDashboard)
	v1.POST("/courses", faculty, h.registerCourse)
	v1.POST("/courses/import", faculty, h.importRoster)
	v1.DELETE("/courses/:id", faculty, h.deleteCourse)
	v1.GET("/courses/:id/sessions", faculty, h.listSessions)
	v1.GET("/courses/:id/students", h.courseStudents)
	v1.POST("/courses/:id/students", faculty, h.enrollStudent)
	v1.POST("/courses/:id/owners", faculty, h.addCourseOwner)
	v1.GET("/courses/:id/timetable", h.getTimetable)
	v1.PUT("/courses/:id/timetable", faculty, h.setTimetable)
	v1.GET("/courses/:id/hours", h.scheduledHours)
	v1.GET("/courses/:id/slots", h.listSlots)
	v1.POST("/courses/:id/slots", faculty, h.addSlot)
	v1.DELETE("/slots/:id", faculty, h.deleteSlot)

	v1.PUT("/students/:id", faculty, h.updateStudent)
	v1.DELETE("/students/:id/courses/:courseId", faculty, h.removeStudentFromCourse)
	v1.DELETE("/owners/:id", faculty, h.removeOwner)
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		body := gin.H{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			ok := check(ctx)
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}

func callerID(c *gin.Context) string {
	if caller, ok := auth.CallerFrom(c); ok {
		return caller.ID
	}
	return ""
}

// invalidate drops cached reports after a write. Failures are logged only;
// the write itself already succeeded.
func (h *Handler) invalidate(c *gin.Context) {
	if err := h.cache.Invalidate(c.Request.Context()); err != nil {
		h.log.Warn("report cache invalidation failed", zap.Error(err), zap.String("request_id", httpmiddleware.RequestIDFrom(c)))
	}
}
