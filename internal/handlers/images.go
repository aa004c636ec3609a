package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vipspatchbay/internal/store"
	"vipspatchbay/internal/transcode"
)

// BlockImage handles `GET /VIPS/block/:block_id/image`: serves the most
// recent Cache Index output for a block, transcoded to PNG.
func (h *VIPSHandler) BlockImage(c *gin.Context) {
	blockID, ok := parseBlockID(c, "block_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	outputID, found, err := h.cache.MostRecentForBlock(ctx, blockID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cached output for block"})
		return
	}

	h.servePNG(c, outputID.String())
}

// BlockImageForInput handles `GET /VIPS/block/:block_id/image/:input_uuid`:
// evaluates the block against that input and serves the result.
func (h *VIPSHandler) BlockImageForInput(c *gin.Context) {
	blockID, ok := parseBlockID(c, "block_id")
	if !ok {
		return
	}
	inputUUID, err := parseUUID(c.Param("input_uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid input uuid"})
		return
	}

	outputID, err := h.evalWithFreshMemo(c.Request.Context(), blockID, inputUUID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.servePNG(c, outputID.String())
}

// ProjectImage handles `GET /VIPS/project/:projectid/image/:input_uuid`:
// evaluates the project's terminal block and serves the result.
func (h *VIPSHandler) ProjectImage(c *gin.Context) {
	idProject, ok := parseBlockID(c, "projectid")
	if !ok {
		return
	}
	inputUUID, err := parseUUID(c.Param("input_uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid input uuid"})
		return
	}

	ctx := c.Request.Context()
	terminal, err := h.graph.TerminalBlock(ctx, idProject)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no terminal block for project"})
		return
	}

	outputID, err := h.evalWithFreshMemo(ctx, terminal.ID, inputUUID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.servePNG(c, outputID.String())
}

// servePNG resolves a content handle and streams it transcoded to PNG.
func (h *VIPSHandler) servePNG(c *gin.Context, id string) {
	path, ok := h.store.Resolve(id)
	if !ok || !store.Exists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	png, err := transcode.ToPNG(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
