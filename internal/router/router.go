package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/placipy/assessment-backend/internal/config"
	"github.com/placipy/assessment-backend/internal/handler"
	"github.com/placipy/assessment-backend/internal/middleware"
	"github.com/placipy/assessment-backend/internal/response"
	"github.com/placipy/assessment-backend/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assessment *handler.AssessmentHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply metrics middleware globally.
	router.Use(middleware.Metrics())

	// Health check and Prometheus scrape endpoint.
	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rate limiter for write routes (60 requests per minute per IP).
	writeLimiter := middleware.NewRateLimiter(60, time.Minute)

	// ─── 1. Catalog Group (JWT) ────────────────────────────────────────
	catalogAPI := router.Group("/api/v1/assessments")
	catalogAPI.Use(middleware.RequireIdentity(authService))
	{
		catalogAPI.GET("", handlers.Assessment.ListAssessments)
		catalogAPI.GET("/:assessment_id", handlers.Assessment.GetAssessment)
		catalogAPI.GET("/:assessment_id/verify", handlers.Assessment.VerifyAssessment)

		catalogAPI.POST("", writeLimiter.Middleware(), handlers.Assessment.CreateAssessment)
		catalogAPI.PATCH("/:assessment_id", writeLimiter.Middleware(), handlers.Assessment.UpdateAssessment)
		catalogAPI.DELETE("/:assessment_id", writeLimiter.Middleware(), handlers.Assessment.DeleteAssessment)
		catalogAPI.POST("/:assessment_id/repair", writeLimiter.Middleware(), handlers.Assessment.RepairAssessment)
	}

	// ─── 2. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSIdentity(authService))
	{
		ws.GET("/catalog/stream", handlers.WS.CatalogStream)
	}

	return router
}
