// Package router wires the HTTP surface of §6 over the pipeline core: a
// base router configured with middleware and CORS, then a route group per
// API surface.
package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"vipspatchbay/internal/cache"
	"vipspatchbay/internal/config"
	"vipspatchbay/internal/database"
	"vipspatchbay/internal/graph"
	"vipspatchbay/internal/handlers"
	"vipspatchbay/internal/invalidate"
	"vipspatchbay/internal/middleware"
	"vipspatchbay/internal/pipeline"
	"vipspatchbay/internal/store"
	"vipspatchbay/internal/thumbnail"
)

// Deps carries every wired core component the router hands to handlers.New.
type Deps struct {
	DB         *database.DB
	Store      *store.Store
	Images     *store.InputImages
	Graph      *graph.Repository
	Cache      *cache.Index
	Evaluator  *pipeline.Evaluator
	Thumbnails *thumbnail.Service
	Invalidate *invalidate.Controller
}

// Setup creates and configures the Gin router.
func Setup(deps Deps) *gin.Engine {
	h := handlers.New(deps.DB, deps.Store, deps.Images, deps.Graph, deps.Cache, deps.Evaluator, deps.Thumbnails, deps.Invalidate)

	r := setupBaseRouter()

	r.GET("/healthz", h.Healthz)

	vips := r.Group("/VIPS")
	vips.Use(handlers.NoCache())
	{
		vips.POST("/upload", h.Upload)
		vips.GET("/preview/:uuid", h.Preview)
		vips.POST("/run", h.Run)
		vips.GET("/block/:block_id/image", h.BlockImage)
		vips.GET("/block/:block_id/image/:input_uuid", h.BlockImageForInput)
		vips.GET("/block/:block_id/cache", h.BlockCache)
		vips.GET("/project/:projectid/image/:input_uuid", h.ProjectImage)
		vips.POST("/project/:projectid/outputs", h.ProjectOutputs)
		vips.Any("/block/:block_id/toggle_enabled", h.ToggleEnabled)
	}

	return r
}

func setupBaseRouter() *gin.Engine {
	r := gin.New()

	r.Use(otelgin.Middleware("vipspatchbay"))
	r.Use(middleware.Observability())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit())

	// No trusted proxies by default; operators behind a load balancer set
	// this explicitly for their topology.
	r.SetTrustedProxies(nil)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.GetAllowedOrigins()
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "User-Agent"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	r.Use(cors.New(corsConfig))

	return r
}
