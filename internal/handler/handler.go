package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance/internal/attendance"
)

// HealthCheck is one dependency reported by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) bool
}

// Handler serves the attendance HTTP API.
type Handler struct {
	svc    *attendance.Service
	checks []HealthCheck
}

// New creates a handler for svc. Checks are evaluated on every /healthz call.
func New(svc *attendance.Service, checks ...HealthCheck) *Handler {
	return &Handler{svc: svc, checks: checks}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for _, hc := range h.checks {
		ok := hc.Check(c.Request.Context())
		body[hc.Name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Students ----------

func (h *Handler) AddStudent(c *gin.Context) {
	var req attendance.StudentInput
	if !bindOptionalJSON(c, &req) {
		return
	}

	st, err := h.svc.AddStudent(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "add student", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "student": st})
}

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.svc.ListStudents(c.Request.Context())
	if err != nil {
		h.fail(c, "list students", err)
		return
	}
	c.JSON(http.StatusOK, students)
}

// ---------- Attendance ----------

func (h *Handler) RecordAttendance(c *gin.Context) {
	var req attendance.RecordInput
	if !bindOptionalJSON(c, &req) {
		return
	}

	rec, err := h.svc.RecordAttendance(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "record attendance", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "record": rec})
}

func (h *Handler) ListAttendance(c *gin.Context) {
	records, err := h.svc.ListAttendance(c.Request.Context())
	if err != nil {
		h.fail(c, "list attendance", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// ---------- Statistics ----------

func (h *Handler) Statistics(c *gin.Context) {
	stats, err := h.svc.Statistics(c.Request.Context())
	if err != nil {
		h.fail(c, "statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// bindOptionalJSON decodes the request body into dst. An empty body leaves
// every field unset.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		errorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, attendance.ErrInvalidInput):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, attendance.ErrUnknownStudent):
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Printf("%s aborted (request_id=%s): %v", op, c.GetString("request_id"), err)
		errorResponse(c, http.StatusServiceUnavailable, "request aborted")
	default:
		log.Printf("%s failed (request_id=%s): %v", op, c.GetString("request_id"), err)
		errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
