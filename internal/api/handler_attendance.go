package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/attendance"
)

type recordAttendanceRequest struct {
	TemplateID int `json:"template_id" binding:"required"`
}

// RecordAttendance handles POST /api/attendance/record, the direct-call
// equivalent of a device detection.
func (h *Handler) RecordAttendance(c *gin.Context) {
	var req recordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.recorder.Record(c.Request.Context(), req.TemplateID)
	if err != nil {
		var cd *attendance.CooldownError
		switch {
		case errors.As(err, &cd):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":        cd.Error(),
				"wait_seconds": cd.WaitSeconds(),
			})
		case errors.Is(err, attendance.ErrUnknownSubject):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTodayAttendance handles GET /api/attendance/today. An optional
// employee_id query narrows the result to one employee.
func (h *Handler) GetTodayAttendance(c *gin.Context) {
	date := time.Now().In(h.loc).Format("2006-01-02")

	if raw := c.Query("employee_id"); raw != "" {
		employeeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "employee_id must be an integer"})
			return
		}
		records, err := h.store.TodayAttendance(c.Request.Context(), employeeID, date)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve attendance"})
			return
		}
		c.JSON(http.StatusOK, records)
		return
	}

	records, err := h.store.AttendanceForDate(c.Request.Context(), date)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve attendance"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetEmployees handles GET /api/employees.
func (h *Handler) GetEmployees(c *gin.Context) {
	employees, err := h.store.ListEmployees(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve employees"})
		return
	}
	c.JSON(http.StatusOK, employees)
}
