package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

func (h *Handler) submitAttendance(c *gin.Context) {
	var req attendance.SubmitRequest
	if !bind(c, &req) {
		return
	}
	caller, _ := auth.CallerFrom(c)
	n, err := h.svc.SubmitAttendance(c.Request.Context(), caller, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.Submissions.WithLabelValues(string(caller.Role)).Inc()
	h.metrics.SessionsWritten.Add(float64(n))
	h.invalidate(c)
	c.JSON(http.StatusCreated, gin.H{"written": n})
}

func (h *Handler) fetchSession(c *gin.Context) {
	var req attendance.FetchRequest
	if !bind(c, &req) {
		return
	}
	view, err := h.svc.FetchSession(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type deleteSessionQuery struct {
	CourseCode string `form:"courseCode" binding:"required"`
	Date       string `form:"date" binding:"required"`
	Hour       int    `form:"hour" binding:"required,min=1,max=8"`
}

func (h *Handler) deleteSession(c *gin.Context) {
	var q deleteSessionQuery
	if !bindQuery(c, &q) {
		return
	}
	if err := h.svc.DeleteSession(c.Request.Context(), q.CourseCode, q.Date, q.Hour); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) listSessions(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	records, err := h.svc.ListSessions(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

func (h *Handler) unlockSession(c *gin.Context) {
	if err := h.svc.UnlockSession(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusOK, gin.H{"status": "unlocked"})
}

func (h *Handler) deleteSessionByID(c *gin.Context) {
	if err := h.svc.DeleteSessionByID(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}

type unmarkedRequest struct {
	CourseCodes []string `json:"courseCodes" binding:"required,min=1,dive,required"`
}

func (h *Handler) unmarkedSessions(c *gin.Context) {
	var req unmarkedRequest
	if !bind(c, &req) {
		return
	}
	gaps, err := h.svc.FindUnmarkedHours(c.Request.Context(), req.CourseCodes)
	if err != nil {
		h.fail(c, err)
		return
	}
	total := 0
	for _, g := range gaps {
		total += g.UnmarkedHours
	}
	h.metrics.UnmarkedHours.Add(float64(total))
	c.JSON(http.StatusOK, gin.H{"courses": gaps})
}
