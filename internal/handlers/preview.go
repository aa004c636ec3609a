package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vipspatchbay/internal/store"
	"vipspatchbay/internal/utils"
)

const (
	defaultPreviewWidth = 512
	minThumbnailWidth   = 1
	maxThumbnailWidth   = 4096
)

// Preview handles `GET /VIPS/preview/:uuid[?w=<width>]`, serving a
// generated thumbnail through the Thumbnail Service.
func (h *VIPSHandler) Preview(c *gin.Context) {
	id := c.Param("uuid")
	if !store.ValidID(id) {
		utils.SendError(c, http.StatusNotFound, "unknown uuid", nil)
		return
	}

	if sourcePath, ok := h.store.Resolve(id); !ok || !store.Exists(sourcePath) {
		utils.SendError(c, http.StatusNotFound, "unknown uuid", nil)
		return
	}

	width := defaultPreviewWidth
	if raw := c.Query("w"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < minThumbnailWidth || parsed > maxThumbnailWidth {
			utils.SendError(c, http.StatusBadRequest, "invalid width", fmt.Errorf("w must be between %d and %d", minThumbnailWidth, maxThumbnailWidth))
			return
		}
		width = parsed
	}

	path, err := h.thumbnails.PathFor(c.Request.Context(), id, width)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "thumbnail generation failed", err)
		return
	}

	c.File(path)
}
