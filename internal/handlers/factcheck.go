// factcheck.go handles the public fact-check HTTP endpoints. These speak
// the {status, msg, data} envelope the front-end consumes, unlike the
// auth endpoints which use the plain error format.
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veritube/factcheck-api/internal/database"
	"github.com/veritube/factcheck-api/internal/models"
	"github.com/veritube/factcheck-api/internal/services/youtube"
)

// envelope writes a {status, msg, data} response with a matching HTTP code.
func envelope(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, models.Envelope{Status: status, Msg: msg, Data: data})
}

// Analyze fact-checks a YouTube video.
// POST /api/v1/fact-check/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		envelope(c, http.StatusBadRequest, "YouTube URL is required", nil)
		return
	}

	result, analyzeErr := h.FactCheck.Analyze(c.Request.Context(), req.YouTubeURL)
	if analyzeErr != nil {
		log.Printf("❌ Analysis failed: %v", analyzeErr)
		envelope(c, analyzeErr.StatusCode(), analyzeErr.Msg, nil)
		return
	}

	msg := "Video fact-checked successfully"
	if result.Cached {
		msg = "Video fact-checked successfully (cached)"
	}
	envelope(c, http.StatusOK, msg, result.Report)
}

// GetHistory returns the cached analysis for one video.
// GET /api/v1/fact-check/history/:videoId
func (h *Handler) GetHistory(c *gin.Context) {
	videoID := c.Param("videoId")
	if !youtube.ValidVideoID(videoID) {
		envelope(c, http.StatusBadRequest, "Invalid video ID format", nil)
		return
	}

	rec, err := h.DB.FindHistoryByVideoID(c.Request.Context(), videoID)
	if errors.Is(err, database.ErrNotFound) {
		envelope(c, http.StatusNotFound, "No analysis found for this video", nil)
		return
	}
	if err != nil {
		log.Printf("❌ History lookup failed for %s: %v", videoID, err)
		envelope(c, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	envelope(c, http.StatusOK, "Analysis history retrieved", rec)
}

// ListHistory returns recently analyzed videos.
// GET /api/v1/fact-check/history?limit=N
func (h *Handler) ListHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.DB.ListHistory(c.Request.Context(), limit)
	if err != nil {
		log.Printf("❌ History list failed: %v", err)
		envelope(c, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	envelope(c, http.StatusOK, "Analysis history retrieved", records)
}
