package router

import (
	"github.com/cuongbtq/cep-crawler/internal/api/handler"
	"github.com/cuongbtq/cep-crawler/internal/metrics"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	// Health and metrics endpoints
	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	crawlHandler := handler.NewCrawlHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		crawls := v1.Group("/crawls")
		{
			// POST /api/v1/crawls - Create a crawl for a CEP range
			crawls.POST("", crawlHandler.CreateCrawl)

			// GET /api/v1/crawls/:crawl_id - Get crawl progress
			crawls.GET("/:crawl_id", crawlHandler.GetCrawl)

			// GET /api/v1/crawls/:crawl_id/results - List item results
			crawls.GET("/:crawl_id/results", crawlHandler.ListResults)
		}
	}

	return r
}
