package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"catastro-backend/internal/extraction"
	"catastro-backend/internal/history"
	"catastro-backend/internal/services/health"
	"catastro-backend/internal/shared/config"
	"catastro-backend/internal/shared/metrics"
	"catastro-backend/internal/shared/server/middleware"
	"catastro-backend/internal/shared/server/respond"
)

const extractRateLimitGroup = "EXTRACT"

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config            config.Config
	ExtractionHandler *extraction.Handler
	HistoryHandler    *history.Handler
	HealthHandler     *health.Handler
	// Limiter is shared across rebuilt routers; nil creates a fresh one.
	Limiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	if deps.HealthHandler != nil {
		deps.HealthHandler.RegisterRoutes(api)
	}
	if deps.HistoryHandler != nil {
		deps.HistoryHandler.RegisterRoutes(api)
	}
	if deps.ExtractionHandler != nil {
		deps.ExtractionHandler.RegisterRoutes(api, middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: extractRateLimitGroup,
			Limiter:      deps.Limiter,
			OnLimit:      deps.ExtractionHandler.WriteRateLimited,
			Rules: map[string]middleware.RateLimitRule{
				extractRateLimitGroup: {
					Rate:  deps.Config.RateLimitExtractRPS,
					Burst: deps.Config.RateLimitExtractBurst,
				},
			},
		}))
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
