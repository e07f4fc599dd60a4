package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/enroll"
	"attendance-backend/internal/model"
)

type enrollRequest struct {
	SlotID int    `json:"slot_id" binding:"required"`
	Name   string `json:"name"`
}

// Enroll handles POST /api/enroll. The request suspends until the
// enrollment handshake resolves or times out.
func (h *Handler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.enroller.Enroll(c.Request.Context(), req.SlotID)
	if err != nil {
		switch {
		case errors.Is(err, enroll.ErrSlotOutOfRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, enroll.ErrNotConnected):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case errors.Is(err, enroll.ErrSessionActive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	// Bind the slot to a person once the device has stored the template.
	if result.Enrolled && req.Name != "" {
		identity := &model.FingerprintIdentity{TemplateID: req.SlotID, Name: req.Name}
		if err := h.store.UpsertIdentity(c.Request.Context(), identity); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "enrolled": true})
			return
		}
	}

	c.JSON(http.StatusOK, result)
}
