// Package gemini talks to the Google Gemini REST API to extract and verify
// factual claims from transcripts and media files.
//
// The File API flow (upload, poll, analyze, delete) is implemented directly
// over net/http: the resumable upload headers and the polling error budget
// need to be explicit and testable against a local httptest server.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash-exp"

	textAnalysisTimeout  = 60 * time.Second
	mediaAnalysisTimeout = 180 * time.Second

	// maxTranscriptChars bounds token spend on very long transcripts.
	maxTranscriptChars = 30000
	truncationMarker   = "... [truncated for speed]"
)

// Analysis is the structured result of one claim-extraction call.
// Field names mirror the JSON contract in the prompt.
type Analysis struct {
	Summary               string  `json:"summary"`
	VideoTopic            string  `json:"videoTopic"`
	TotalClaims           int     `json:"totalClaims"`
	CorrectClaims         []Claim `json:"correctClaims"`
	IncorrectClaims       []Claim `json:"incorrectClaims"`
	SpeculativeClaims     []Claim `json:"speculativeClaims"`
	CorrectPercentage     float64 `json:"correctPercentage"`
	IncorrectPercentage   float64 `json:"incorrectPercentage"`
	SpeculativePercentage float64 `json:"speculativePercentage"`
	TrustScore            int     `json:"trustScore"`
	TrustLevel            string  `json:"trustLevel"`
	AnalysisNote          string  `json:"analysisNote"`
}

// Claim is a single extracted statement with the model's verdict rationale.
type Claim struct {
	Claim      string `json:"claim"`
	Reasoning  string `json:"reasoning"`
	Confidence string `json:"confidence"`
}

// Analyzer defines the AI analysis interface used by the pipeline.
type Analyzer interface {
	AnalyzeText(ctx context.Context, transcript string) (*Analysis, error)
	AnalyzeMedia(ctx context.Context, filePath, mimeType string) (*Analysis, error)
}

// Client is a Gemini REST API client.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client

	// Polling knobs, overridable in tests.
	pollInterval    time.Duration
	maxPollAttempts int
}

// NewClient creates a Gemini client. An empty model selects the default.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:          apiKey,
		model:           model,
		baseURL:         defaultBaseURL,
		httpClient:      &http.Client{},
		pollInterval:    3 * time.Second,
		maxPollAttempts: 60,
	}
}

// extractionPrompt builds the claim-extraction prompt. The wording is
// deliberately directive ("extract and verify") rather than "fact-check",
// which trips safety filters less often.
func extractionPrompt(contentType string) string {
	return fmt.Sprintf(`Task: Extract and verify factual claims from this %s.

Instructions:
1. Watch/read the content carefully and identify ALL specific factual statements.
2. Focus on hard data: dates, statistics, names, historical facts, scientific claims, numbers.
3. Ignore pure opinions (e.g., "X is bad/good").
4. For speculative claims (like celebrity gossip), list them and mark as 'SPECULATIVE'.
5. Use your knowledge to verify each claim. Mark as CORRECT, INCORRECT, or SPECULATIVE.
6. Extract AT LEAST 3-10 claims. If content has fewer verifiable facts, extract what's available.

Response Format (STRICT JSON, no markdown):
{
  "summary": "Brief content summary (max 100 words)",
  "videoTopic": "Main topic in 5 words",
  "totalClaims": 0,
  "correctClaims": [
    {"claim": "Exact statement from content", "reasoning": "Why verified as correct", "confidence": "HIGH/MEDIUM/LOW"}
  ],
  "incorrectClaims": [
    {"claim": "Exact statement from content", "reasoning": "Why this is wrong/misleading", "confidence": "HIGH/MEDIUM/LOW"}
  ],
  "speculativeClaims": [
    {"claim": "Unverifiable statement", "reasoning": "Why this cannot be verified", "confidence": "LOW"}
  ],
  "correctPercentage": 0,
  "incorrectPercentage": 0,
  "speculativePercentage": 0,
  "trustScore": 0,
  "trustLevel": "HIGH/MEDIUM/LOW",
  "analysisNote": "Brief methodology note"
}

Rules:
- trustScore: 0-100 (based on correct claims ratio, penalize incorrect claims heavily)
- trustLevel: HIGH (75-100), MEDIUM (40-74), LOW (0-39)
- Percentages must add up to 100
- ALWAYS extract claims - never return empty arrays unless content has zero factual statements
- Be specific in reasoning (cite sources if known)`, contentType)
}

// --- request/response wire types ---

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"fileData,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// newGenerationConfig returns the low-temperature JSON-mode settings used
// for every analysis call.
func newGenerationConfig() generationConfig {
	return generationConfig{
		Temperature:      0.2,
		TopK:             40,
		TopP:             0.9,
		MaxOutputTokens:  4096,
		ResponseMimeType: "application/json",
	}
}

// newSafetySettings disables all four harm filters. Factual content about
// news or history gets over-filtered at the default thresholds.
// The google_search tool cannot be combined with JSON response mode, so
// verification relies on model knowledge alone.
func newSafetySettings() []safetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	settings := make([]safetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, safetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}
	return settings
}

// AnalyzeText runs claim extraction on a transcript. Long transcripts are
// truncated with an explicit marker so the model knows content was cut.
func (c *Client) AnalyzeText(ctx context.Context, transcript string) (*Analysis, error) {
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars] + truncationMarker
		log.Printf("🤖 Transcript truncated to %d chars", maxTranscriptChars)
	}

	fullPrompt := fmt.Sprintf("%s\n\nCONTENT TO ANALYZE:\n\"\"\"\n%s\n\"\"\"", extractionPrompt("transcript"), transcript)

	reqBody := generateRequest{
		Contents:         []content{{Parts: []part{{Text: fullPrompt}}}},
		GenerationConfig: newGenerationConfig(),
		SafetySettings:   newSafetySettings(),
	}

	return c.generateContent(ctx, reqBody, textAnalysisTimeout)
}

// AnalyzeMedia runs claim extraction on a downloaded media file via the
// File API: upload, wait for server-side processing, analyze, delete.
// The uploaded handle is deleted on every exit path.
func (c *Client) AnalyzeMedia(ctx context.Context, filePath, mimeType string) (*Analysis, error) {
	start := time.Now()

	handle, err := c.uploadFile(ctx, filePath, mimeType)
	if err != nil {
		return nil, err
	}
	defer c.deleteFile(handle.Name)

	if err := c.waitForProcessing(ctx, handle.Name); err != nil {
		return nil, err
	}

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{
			{FileData: &fileData{MimeType: mimeType, FileURI: handle.URI}},
			{Text: extractionPrompt("video")},
		}}},
		GenerationConfig: newGenerationConfig(),
		SafetySettings:   newSafetySettings(),
	}

	analysis, err := c.generateContent(ctx, reqBody, mediaAnalysisTimeout)
	if err != nil {
		return nil, err
	}

	log.Printf("🤖 Media analysis complete in %.1fs", time.Since(start).Seconds())
	return analysis, nil
}

// generateContent makes one generateContent call and parses the model's
// JSON answer out of the first candidate.
func (c *Client) generateContent(ctx context.Context, reqBody generateRequest, timeout time.Duration) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: generateContent returned %d: %s", ErrBackendUnavailable, resp.StatusCode, excerpt(string(body)))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, &ParseError{Excerpt: excerpt(string(body))}
	}

	if len(genResp.Candidates) == 0 {
		return nil, &ParseError{Excerpt: excerpt(string(body))}
	}

	candidate := genResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return nil, ErrSafetyBlocked
	}
	if len(candidate.Content.Parts) == 0 {
		return nil, &ParseError{Excerpt: excerpt(string(body))}
	}

	return parseAnalysis(candidate.Content.Parts[0].Text)
}
