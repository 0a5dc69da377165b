package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/export"
)

type studentReportRequest struct {
	RegNo      string `json:"regNo" binding:"required"`
	CourseCode string `json:"courseCode" binding:"required"`
	StartDate  string `json:"startDate" binding:"required"`
	EndDate    string `json:"endDate" binding:"required"`
}

func (h *Handler) studentReport(c *gin.Context) {
	var req studentReportRequest
	if !bind(c, &req) {
		return
	}
	start := time.Now()
	report, err := h.svc.StudentReport(c.Request.Context(), req.RegNo, req.CourseCode, req.StartDate, req.EndDate)
	h.metrics.ReportDuration.WithLabelValues("student").Observe(time.Since(start).Seconds())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type classReportRequest struct {
	CourseCode string `json:"courseCode" form:"courseCode" binding:"required"`
	StartDate  string `json:"startDate" form:"startDate" binding:"required"`
	EndDate    string `json:"endDate" form:"endDate" binding:"required"`
}

// cycleParams reads the optional cycle window. Zero cycle means everything.
func cycleParams(c *gin.Context) (cycle, size int, err error) {
	size = export.DefaultCycleSize
	if v := c.Query("cycle_size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil || size < 1 {
			return 0, 0, fmt.Errorf("cycle_size must be a positive integer")
		}
	}
	if v := c.Query("cycle"); v != "" {
		if cycle, err = strconv.Atoi(v); err != nil || cycle < 1 {
			return 0, 0, fmt.Errorf("cycle must be a positive integer")
		}
	}
	return cycle, size, nil
}

// classRows computes the class report, windowed when cycle is set.
func (h *Handler) classRows(c *gin.Context, req classReportRequest, cycle, size int) ([]attendance.ClassReportRow, int, error) {
	start := time.Now()
	rows, err := h.svc.ClassReport(c.Request.Context(), req.CourseCode, req.StartDate, req.EndDate)
	h.metrics.ReportDuration.WithLabelValues("class").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, 0, err
	}
	cycles := export.Cycles(len(export.Sessions(rows)), size)
	if cycle == 0 {
		return rows, cycles, nil
	}
	return export.Page(rows, cycle, size)
}

func (h *Handler) classReport(c *gin.Context) {
	var req classReportRequest
	if !bind(c, &req) {
		return
	}
	cycle, size, err := cycleParams(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params := []string{req.CourseCode, req.StartDate, req.EndDate, strconv.Itoa(cycle), strconv.Itoa(size)}
	h.cachedJSON(c, "class", params, func() (any, error) {
		rows, cycles, err := h.classRows(c, req, cycle, size)
		if err != nil {
			return nil, err
		}
		return gin.H{"report": rows, "cycle": cycle, "cycles": cycles, "cycleSize": size}, nil
	})
}

func (h *Handler) exportClassReport(c *gin.Context) {
	var req classReportRequest
	if !bindQuery(c, &req) {
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cycle, size, err := cycleParams(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, _, err := h.classRows(c, req, cycle, size)
	if errors.Is(err, export.ErrCycleOutOfRange) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	title := fmt.Sprintf("%s attendance %s to %s", req.CourseCode, req.StartDate, req.EndDate)
	m := export.NewMatrix(title, rows, export.Sessions(rows))

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`,
		export.Filename(req.CourseCode, req.StartDate, req.EndDate, format)))
	c.Header("Content-Type", format.ContentType())
	c.Status(http.StatusOK)
	if err := export.Render(c.Writer, format, m); err != nil {
		h.log.Error("report export failed", zap.Error(err), zap.String("format", string(format)))
	}
}

type masterReportRequest struct {
	Dept      string `json:"dept" binding:"required"`
	Class     string `json:"class" binding:"required"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

func (h *Handler) masterReport(c *gin.Context) {
	var req masterReportRequest
	if !bind(c, &req) {
		return
	}
	params := []string{req.Dept, req.Class, req.StartDate, req.EndDate}
	h.cachedJSON(c, "master", params, func() (any, error) {
		start := time.Now()
		rows, err := h.svc.MasterReport(c.Request.Context(), req.Dept, req.Class, req.StartDate, req.EndDate)
		h.metrics.ReportDuration.WithLabelValues("master").Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		return gin.H{"report": rows}, nil
	})
}

// cachedJSON serves a report from the cache, computing and storing it on a
// miss. Cache failures degrade to computing the report.
func (h *Handler) cachedJSON(c *gin.Context, kind string, params []string, compute func() (any, error)) {
	ctx := c.Request.Context()
	// The generation is read before compute so a write that lands
	// mid-computation keeps the result out of the cache.
	gen, err := h.cache.Generation(ctx)
	cacheable := err == nil
	if err != nil {
		h.log.Warn("report cache read failed", zap.String("kind", kind), zap.Error(err))
	}
	var body []byte
	var ok bool
	if cacheable {
		body, ok, err = h.cache.Get(ctx, kind, params...)
		if err != nil {
			h.log.Warn("report cache read failed", zap.String("kind", kind), zap.Error(err))
		}
	}
	if ok {
		h.metrics.ReportCache.WithLabelValues(kind, "hit").Inc()
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}
	h.metrics.ReportCache.WithLabelValues(kind, "miss").Inc()

	v, err := compute()
	if errors.Is(err, export.ErrCycleOutOfRange) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	body, err = json.Marshal(v)
	if err != nil {
		h.fail(c, err)
		return
	}
	if cacheable {
		if err := h.cache.Set(ctx, gen, kind, body, params...); err != nil {
			h.log.Warn("report cache write failed", zap.String("kind", kind), zap.Error(err))
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
