package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ToggleEnabled handles `ANY /VIPS/block/:block_id/toggle_enabled`: flips
// a block's enabled flag and, on a disabling transition, invalidates its
// downstream closure.
func (h *VIPSHandler) ToggleEnabled(c *gin.Context) {
	blockID, ok := parseBlockID(c, "block_id")
	if !ok {
		return
	}

	enabled, err := h.invalidate.ToggleEnabled(c.Request.Context(), blockID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": 0, "error": err.Error()})
		return
	}

	newState := 0
	if enabled {
		newState = 1
	}
	c.JSON(http.StatusOK, gin.H{"success": 1, "newState": newState})
}
