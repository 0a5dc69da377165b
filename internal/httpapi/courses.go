package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/queue"
)

func (h *Handler) registerCourse(c *gin.Context) {
	var reg attendance.CourseRegistration
	if !bind(c, &reg) {
		return
	}
	caller, _ := auth.CallerFrom(c)
	course, err := h.svc.RegisterCourse(c.Request.Context(), caller, reg)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusCreated, course)
}

// importRoster hands a roster over to the worker.
func (h *Handler) importRoster(c *gin.Context) {
	if h.queue == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "roster import queue not configured"})
		return
	}
	var reg attendance.CourseRegistration
	if !bind(c, &reg) {
		return
	}
	caller, _ := auth.CallerFrom(c)
	body, err := attendance.EncodeRosterImport(attendance.RosterImport{OwnerID: caller.ID, Course: reg})
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.queue.Publish(c.Request.Context(), queue.Message{Type: attendance.RosterImportType, Body: body}); err != nil {
		h.log.Error("queue publish failed", zap.Error(err), zap.String("course", reg.Code))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "roster import could not be queued"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "course": reg.Code})
}

func (h *Handler) ownerDashboard(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	courses, err := h.svc.OwnerDashboard(c.Request.Context(), caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *Handler) deleteCourse(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	if err := h.svc.DeleteCourse(c.Request.Context(), caller, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) courseStudents(c *gin.Context) {
	students, err := h.svc.CourseStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

type enrollRequest struct {
	attendance.StudentInput
	Batch int `json:"batch" binding:"omitempty,oneof=1 2"`
}

func (h *Handler) enrollStudent(c *gin.Context) {
	var req enrollRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.svc.EnrollStudent(c.Request.Context(), c.Param("id"), req.StudentInput, req.Batch)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) updateStudent(c *gin.Context) {
	var upd attendance.StudentUpdate
	if !bind(c, &upd) {
		return
	}
	st, err := h.svc.UpdateStudent(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusOK, st)
}

func (h *Handler) removeStudentFromCourse(c *gin.Context) {
	if err := h.svc.RemoveStudentFromCourse(c.Request.Context(), c.Param("id"), c.Param("courseId")); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}

type ownerRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
}

func (h *Handler) addCourseOwner(c *gin.Context) {
	var req ownerRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.AddCourseOwner(c.Request.Context(), c.Param("id"), req.OwnerID); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) removeOwner(c *gin.Context) {
	n, err := h.svc.RemoveOwner(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (h *Handler) getTimetable(c *gin.Context) {
	tt, err := h.svc.GetTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tt)
}

type timetableRequest struct {
	Week map[string][]int `json:"timetable" binding:"required"`
}

func (h *Handler) setTimetable(c *gin.Context) {
	var req timetableRequest
	if !bind(c, &req) {
		return
	}
	tt, err := h.svc.SetTimetable(c.Request.Context(), c.Param("id"), req.Week)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusOK, tt)
}

func (h *Handler) scheduledHours(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}
	batch := 0
	if v := c.Query("batch"); v != "" {
		b, err := strconv.Atoi(v)
		if err != nil || (b != 1 && b != 2) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "batch must be 1 or 2"})
			return
		}
		batch = b
	}
	hours, err := h.svc.ScheduledHours(c.Request.Context(), c.Param("id"), date, batch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "hours": hours})
}

func (h *Handler) listSlots(c *gin.Context) {
	slots, err := h.svc.ListScheduleSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

func (h *Handler) addSlot(c *gin.Context) {
	var req attendance.SlotRequest
	if !bind(c, &req) {
		return
	}
	slot, err := h.svc.AddScheduleSlot(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) deleteSlot(c *gin.Context) {
	if err := h.svc.DeleteScheduleSlot(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}
