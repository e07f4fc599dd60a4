package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// deviceStatusResponse reports the transport's connection state.
type deviceStatusResponse struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port,omitempty"`
	BaudRate  int    `json:"baud_rate"`
	LastError string `json:"last_error,omitempty"`
}

// GetDeviceStatus handles GET /api/device/status.
func (h *Handler) GetDeviceStatus(c *gin.Context) {
	path, baud, connected, lastErr := h.transport.Status()
	resp := deviceStatusResponse{
		Connected: connected,
		Port:      path,
		BaudRate:  baud,
	}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// ConnectDevice handles POST /api/device/connect.
func (h *Handler) ConnectDevice(c *gin.Context) {
	if err := h.transport.Connect(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

// ClearTemplates handles POST /api/device/clear: wipes every stored
// fingerprint template on the device.
func (h *Handler) ClearTemplates(c *gin.Context) {
	if err := h.transport.Write("clear"); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
