// Package models defines the data structures used throughout the application.
//
// Go Pattern: Models are plain structs with JSON tags for serialization.
// The `db` tags work with sqlx for database column mapping — no ORM magic,
// the database package handles persistence explicitly.
package models

import (
	"encoding/json"
	"time"
)

// AnalysisMethod records which acquisition path produced a report.
type AnalysisMethod string

const (
	MethodTranscript AnalysisMethod = "transcript" // fast path: caption text
	MethodVideo      AnalysisMethod = "video"      // slow path: downloaded media
)

// TrustLevel is the banded label for a trust score.
type TrustLevel string

const (
	TrustHigh   TrustLevel = "HIGH"
	TrustMedium TrustLevel = "MEDIUM"
	TrustLow    TrustLevel = "LOW"
)

// TrustLevelForScore derives the banded label from a 0-100 trust score.
// The AI backend reports its own label too, but the score bands are the
// single source of truth: HIGH >= 75, MEDIUM 40-74, LOW < 40.
func TrustLevelForScore(score int) TrustLevel {
	switch {
	case score >= 75:
		return TrustHigh
	case score >= 40:
		return TrustMedium
	default:
		return TrustLow
	}
}

// Claim is a single verified statement extracted from the video.
type Claim struct {
	Claim      string `json:"claim"`
	Reasoning  string `json:"reasoning"`
	Confidence string `json:"confidence"` // HIGH, MEDIUM, or LOW
}

// VideoInfo describes the analyzed video.
type VideoInfo struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	Title           string `json:"title"`
	Topic           string `json:"topic"`
	DurationSeconds int    `json:"durationSeconds"`
}

// FactCheck groups the classified claims and their percentages.
// Invariant: TotalClaims == len(Correct)+len(Incorrect)+len(Speculative),
// and the three percentages sum to ~100.
type FactCheck struct {
	TotalClaims           int     `json:"totalClaims"`
	CorrectClaims         []Claim `json:"correctClaims"`
	IncorrectClaims       []Claim `json:"incorrectClaims"`
	SpeculativeClaims     []Claim `json:"speculativeClaims"`
	CorrectPercentage     float64 `json:"correctPercentage"`
	IncorrectPercentage   float64 `json:"incorrectPercentage"`
	SpeculativePercentage float64 `json:"speculativePercentage"`
}

// Trust is the overall verdict for the video.
type Trust struct {
	Score int        `json:"score"` // 0-100
	Level TrustLevel `json:"level"`
}

// AnalysisReport is the full fact-check result returned to callers
// and stored in the history table. Its shape is identical regardless
// of which acquisition path produced it.
type AnalysisReport struct {
	Video          VideoInfo      `json:"video"`
	Summary        string         `json:"summary"`
	FactCheck      FactCheck      `json:"factCheck"`
	Trust          Trust          `json:"trust"`
	AnalysisNote   string         `json:"analysisNote"`
	Method         AnalysisMethod `json:"method"`
	ProcessingTime string         `json:"processingTime"` // e.g. "12.34s"
}

// HistoryRecord is the persistent row for one analyzed video.
// One record per video ID; re-analysis replaces the report fields and
// increments RequestCount. The core never deletes records.
type HistoryRecord struct {
	ID                     string          `json:"id" db:"id"`
	VideoID                string          `json:"videoId" db:"video_id"`
	YouTubeURL             string          `json:"youtubeUrl" db:"youtube_url"`
	VideoTitle             string          `json:"videoTitle" db:"video_title"`
	AnalysisMethod         AnalysisMethod  `json:"analysisMethod" db:"analysis_method"`
	AnalysisResult         json.RawMessage `json:"analysisResult" db:"analysis_result"` // full AnalysisReport as JSONB
	Summary                string          `json:"summary" db:"summary"`
	VideoTopic             string          `json:"videoTopic" db:"video_topic"`
	TrustScore             int             `json:"trustScore" db:"trust_score"`
	TrustLevel             TrustLevel      `json:"trustLevel" db:"trust_level"`
	TotalClaims            int             `json:"totalClaims" db:"total_claims"`
	CorrectClaimsCount     int             `json:"correctClaimsCount" db:"correct_claims_count"`
	IncorrectClaimsCount   int             `json:"incorrectClaimsCount" db:"incorrect_claims_count"`
	SpeculativeClaimsCount int             `json:"speculativeClaimsCount" db:"speculative_claims_count"`
	ProcessingTime         float64         `json:"processingTime" db:"processing_time"` // seconds
	RequestCount           int             `json:"requestCount" db:"request_count"`
	LastAnalyzedAt         time.Time       `json:"lastAnalyzedAt" db:"last_analyzed_at"`
	CreatedAt              time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time       `json:"updatedAt" db:"updated_at"`
}

// Report unmarshals the stored analysis result.
func (r *HistoryRecord) Report() (*AnalysisReport, error) {
	var report AnalysisReport
	if err := json.Unmarshal(r.AnalysisResult, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// User is an account record. Fact-check endpoints are public; accounts
// only gate the profile surface.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // "-" means never serialize to JSON
	Name         string    `json:"name" db:"name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// --- Request/Response DTOs ---
// Go Pattern: Separate structs for API input/output vs database models.

// AnalyzeRequest is the JSON body for POST /api/v1/fact-check/analyze.
type AnalyzeRequest struct {
	YouTubeURL string `json:"youtubeUrl" binding:"required,max=200"`
}

// Envelope is the uniform response shape for the fact-check endpoints:
// callers always get {status, msg, data}, never a raw error string.
type Envelope struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Data   any    `json:"data"`
}

// RegisterRequest is the JSON body for POST /api/v1/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

// LoginRequest is the JSON body for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ErrorResponse is the standard error format for the auth/profile endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Database    string `json:"database"`
	PendingJobs int    `json:"pending_jobs"`
}
