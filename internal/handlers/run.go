package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vipspatchbay/internal/utils"
)

// RunRequest is the body of `POST /VIPS/run`.
type RunRequest struct {
	IDProject int64  `json:"idproject" binding:"required"`
	InputUUID string `json:"input_uuid" binding:"required"`
}

// Run handles `POST /VIPS/run`: evaluates a project's terminal block
// against the given input and returns its output UUID and preview URL.
func (h *VIPSHandler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	inputUUID, err := parseUUID(req.InputUUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid input_uuid"})
		return
	}

	ctx := c.Request.Context()
	terminal, err := h.graph.TerminalBlock(ctx, req.IDProject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resultUUID, err := h.evalWithFreshMemo(ctx, terminal.ID, inputUUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result_uuid": resultUUID.String(),
		"url":         previewURL(resultUUID),
	})
}

func previewURL(id uuid.UUID) string {
	return fmt.Sprintf("/VIPS/preview/%s", id.String())
}

// BlockCache handles `GET /VIPS/block/:block_id/cache`: a debugging
// listing of the Cache Index rows for one block instance.
func (h *VIPSHandler) BlockCache(c *gin.Context) {
	blockID, ok := parseBlockID(c, "block_id")
	if !ok {
		return
	}
	entries, err := h.cache.ListEntriesForBlock(c.Request.Context(), blockID)
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}
	utils.SendSuccess(c, "cache entries retrieved", entries)
}
