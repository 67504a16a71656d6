// Package handlers contains HTTP handler functions for the API.
//
// Go Pattern: Handlers in Gin receive a *gin.Context which provides:
// - Request data (params, query, body, headers)
// - Response methods (JSON, String, Status)
// - Middleware data (c.Get/c.Set)
//
// Handlers are plain functions, no class inheritance. Related handlers are
// grouped on a struct (Handler) that holds shared dependencies.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veritube/factcheck-api/internal/database"
	"github.com/veritube/factcheck-api/internal/models"
	"github.com/veritube/factcheck-api/internal/services/factcheck"
	"github.com/veritube/factcheck-api/internal/services/tasks"
)

// Handler holds shared dependencies for all HTTP handlers.
// Go Pattern: Dependency injection via struct fields. Instead of global
// variables or service locators, dependencies are passed explicitly.
type Handler struct {
	DB        *database.DB
	FactCheck *factcheck.Service
	Tasks     *tasks.Runner
	JWTSecret string
}

// NewHandler creates a new handler with all dependencies.
func NewHandler(db *database.DB, fc *factcheck.Service, runner *tasks.Runner, jwtSecret string) *Handler {
	return &Handler{
		DB:        db,
		FactCheck: fc,
		Tasks:     runner,
		JWTSecret: jwtSecret,
	}
}

// HealthCheck returns the API health status.
// GET /api/v1/health
func (h *Handler) HealthCheck(c *gin.Context) {
	dbStatus := "healthy"
	if err := h.DB.HealthCheck(c.Request.Context()); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:      "ok",
		Version:     "1.0.0",
		Database:    dbStatus,
		PendingJobs: h.Tasks.QueueSize(),
	})
}
