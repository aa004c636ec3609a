package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vipspatchbay/internal/pipeline"
)

// OutputsRequest is the body of `POST /VIPS/project/:projectid/outputs`.
type OutputsRequest struct {
	InputUUIDs []string `json:"input_uuids" binding:"required"`
}

// OutputResult is one element of the outputs response, in request order.
type OutputResult struct {
	InputUUID  string `json:"input_uuid"`
	OutputUUID string `json:"output_uuid,omitempty"`
	URL        string `json:"url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProjectOutputs handles `POST /VIPS/project/:projectid/outputs`:
// evaluates the project's terminal block against every given input,
// sharing a single memoization map across the whole batch per spec.md
// §6, and reporting per-input success or failure while preserving input
// order.
func (h *VIPSHandler) ProjectOutputs(c *gin.Context) {
	idProject, ok := parseBlockID(c, "projectid")
	if !ok {
		return
	}

	var req OutputsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	terminal, err := h.graph.TerminalBlock(ctx, idProject)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no terminal block for project"})
		return
	}

	memo := pipeline.NewMemo()
	results := make([]OutputResult, len(req.InputUUIDs))
	for i, raw := range req.InputUUIDs {
		inputUUID, err := parseUUID(raw)
		if err != nil {
			results[i] = OutputResult{InputUUID: raw, Error: "invalid input uuid"}
			continue
		}
		outputUUID, err := h.evaluator.ResultOf(ctx, terminal.ID, inputUUID, memo)
		if err != nil {
			results[i] = OutputResult{InputUUID: raw, Error: err.Error()}
			continue
		}
		results[i] = OutputResult{
			InputUUID:  raw,
			OutputUUID: outputUUID.String(),
			URL:        previewURL(outputUUID),
		}
	}

	c.JSON(http.StatusOK, results)
}
