// Package handlers implements the HTTP surface of §6: a thin Gin shell
// around the pipeline core, with a uniform response envelope and
// structured logging left to middleware.Observability.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vipspatchbay/internal/cache"
	"vipspatchbay/internal/database"
	"vipspatchbay/internal/graph"
	"vipspatchbay/internal/invalidate"
	"vipspatchbay/internal/pipeline"
	"vipspatchbay/internal/store"
	"vipspatchbay/internal/thumbnail"
	"vipspatchbay/internal/utils"
)

// VIPSHandler exposes the `/VIPS/*` routes over the pipeline core.
type VIPSHandler struct {
	db         *database.DB
	store      *store.Store
	images     *store.InputImages
	graph      *graph.Repository
	cache      *cache.Index
	evaluator  *pipeline.Evaluator
	thumbnails *thumbnail.Service
	invalidate *invalidate.Controller
}

// New constructs a VIPSHandler wired to every core component.
func New(
	db *database.DB,
	s *store.Store,
	images *store.InputImages,
	g *graph.Repository,
	ci *cache.Index,
	eval *pipeline.Evaluator,
	ts *thumbnail.Service,
	ic *invalidate.Controller,
) *VIPSHandler {
	return &VIPSHandler{
		db:         db,
		store:      s,
		images:     images,
		graph:      g,
		cache:      ci,
		evaluator:  eval,
		thumbnails: ts,
		invalidate: ic,
	}
}

// NoCache disables browser caching on every `/VIPS/*` response, per
// spec.md §6 ("all responses include a header disabling browser
// caching").
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Expires", "Thu, 01 Jan 1970 00:00:00 GMT")
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

// Healthz reports DB and image-store-root reachability.
func (h *VIPSHandler) Healthz(c *gin.Context) {
	if err := h.db.Health(c.Request.Context()); err != nil {
		utils.SendError(c, http.StatusServiceUnavailable, "database unreachable", err)
		return
	}
	if !store.Exists(h.store.Root()) {
		utils.SendError(c, http.StatusServiceUnavailable, "image store root missing", nil)
		return
	}
	utils.SendSuccess(c, "healthy", gin.H{"status": "healthy"})
}

func parseUUID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

func parseBlockID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid block id", err)
		return 0, false
	}
	return id, true
}

func (h *VIPSHandler) evalWithFreshMemo(ctx context.Context, blockID int64, input uuid.UUID) (uuid.UUID, error) {
	return h.evaluator.ResultOf(ctx, blockID, input, pipeline.NewMemo())
}
