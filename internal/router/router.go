// Package router sets up all HTTP routes for the API.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veritube/factcheck-api/internal/database"
	"github.com/veritube/factcheck-api/internal/handlers"
	"github.com/veritube/factcheck-api/internal/middleware"
	"github.com/veritube/factcheck-api/internal/models"
	"github.com/veritube/factcheck-api/internal/services/factcheck"
	"github.com/veritube/factcheck-api/internal/services/tasks"
)

// Setup creates and configures the Gin router with all routes.
func Setup(db *database.DB, fc *factcheck.Service, runner *tasks.Runner, jwtSecret string, allowedOrigins []string, rateLimit int) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORS(allowedOrigins))

	h := handlers.NewHandler(db, fc, runner, jwtSecret)
	rateLimiter := middleware.NewRateLimiter(rateLimit)

	// --- Public routes ---
	r.GET("/api/v1/health", h.HealthCheck)

	// Fact-check endpoints are public but rate limited: every analysis
	// costs a download and an AI call.
	factCheck := r.Group("/api/v1/fact-check")
	factCheck.Use(rateLimiter.RateLimit())
	{
		factCheck.POST("/analyze", h.Analyze)
		factCheck.GET("/history", h.ListHistory)
		factCheck.GET("/history/:videoId", h.GetHistory)
	}

	// --- Auth routes — public ---
	r.POST("/api/v1/auth/register", h.Register)
	r.POST("/api/v1/auth/login", h.Login)

	// --- JWT-protected routes ---
	jwtProtected := r.Group("/api/v1")
	jwtProtected.Use(middleware.JWTAuth(db, jwtSecret))
	{
		jwtProtected.GET("/auth/me", h.GetMe)
	}

	// Unknown routes still get the envelope shape.
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.Envelope{
			Status: http.StatusNotFound,
			Msg:    "Route not found",
			Data:   nil,
		})
	})

	return r
}
