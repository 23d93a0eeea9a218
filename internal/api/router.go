package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/NYTimes/gziphandler"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mppt-sim/internal/api/handlers"
	"mppt-sim/internal/api/metrics"
	"mppt-sim/internal/api/middleware"
	"mppt-sim/internal/config"
	"mppt-sim/internal/data"
)

// Deps are the shared components the routes are built on. Cache and Metrics may be nil.
type Deps struct {
	Cache   *data.CurrentCache
	Metrics *metrics.Collector
}

// NewRouter wires middleware, API routes and optional static file serving.
func NewRouter(cfg *config.ServerConfig, deps Deps) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.Logger())
	router.Use(deps.Metrics.Middleware())

	sources := handlers.NewSourceModelHandler(cfg.SourceModelDir)
	simulateHandler := handlers.NewSimulateHandler(deps.Cache, sources, deps.Metrics, cfg.MaxCycleLimit)
	strategyHandler := handlers.NewStrategyHandler()
	characterizeHandler := handlers.NewCharacterizeHandler(deps.Cache)

	router.GET("/health", func(c *gin.Context) {
		resp := gin.H{"status": "ok"}
		if deps.Cache != nil {
			stats := deps.Cache.Stats()
			deps.Metrics.SetCacheEntries(stats.Entries)
			resp["cache"] = stats
		}
		c.JSON(http.StatusOK, resp)
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/simulate", simulateHandler.Simulate)
		api.POST("/simulate/compare", simulateHandler.Compare)

		api.GET("/strategies", strategyHandler.ListStrategies)
		api.GET("/source-models", sources.ListSourceModels)
		api.GET("/characterize", characterizeHandler.Characterize)
	}

	serveStatic(router, cfg.StaticDir)
	return router
}

// Handler wraps the router with response compression.
func Handler(router *gin.Engine) http.Handler {
	return gziphandler.GzipHandler(router)
}

func serveStatic(router *gin.Engine, staticDir string) {
	if staticDir == "" {
		return
	}
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		log.Warn().Str("dir", staticDir).Msg("static directory not found, skipping static file serving")
		return
	}

	router.Static("/assets", filepath.Join(staticDir, "assets"))
	router.StaticFile("/favicon.ico", filepath.Join(staticDir, "favicon.ico"))

	// Serve index.html for all non-API routes (SPA routing)
	index := filepath.Join(staticDir, "index.html")
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
			return
		}
		c.File(index)
	})
	log.Info().Str("dir", staticDir).Msg("serving static files")
}
