// client_test.go — Tests for the analysis client against a local HTTP
// server standing in for the Gemini API, plus the response parser.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient points a client at a local server with fast polling.
func newTestClient(baseURL string) *Client {
	c := NewClient("test-key", "")
	c.baseURL = baseURL
	c.pollInterval = time.Millisecond
	c.maxPollAttempts = 10
	return c
}

// analysisJSON is a minimal well-formed model answer.
const analysisJSON = `{
  "summary": "A video about the James Webb telescope.",
  "videoTopic": "Space telescope overview",
  "totalClaims": 2,
  "correctClaims": [{"claim": "JWST launched in December 2021", "reasoning": "Matches launch records", "confidence": "HIGH"}],
  "incorrectClaims": [{"claim": "JWST orbits the Moon", "reasoning": "It orbits the Sun-Earth L2 point", "confidence": "HIGH"}],
  "correctPercentage": 50,
  "incorrectPercentage": 50,
  "speculativePercentage": 0,
  "trustScore": 45,
  "trustLevel": "MEDIUM",
  "analysisNote": "Verified against well-known astronomy facts"
}`

// candidateResponse wraps model output text in the generateContent shape.
func candidateResponse(text, finishReason string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"parts": []map[string]string{{"text": text}}},
			"finishReason": finishReason,
		}},
	})
	return string(b)
}

func TestAnalyzeText(t *testing.T) {
	var gotBody generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		fmt.Fprint(w, candidateResponse(analysisJSON, "STOP"))
	}))
	defer srv.Close()

	analysis, err := newTestClient(srv.URL).AnalyzeText(context.Background(), "some transcript text")
	if err != nil {
		t.Fatalf("AnalyzeText() error: %v", err)
	}

	if analysis.TrustScore != 45 || analysis.TrustLevel != "MEDIUM" {
		t.Errorf("trust = %d/%s, want 45/MEDIUM", analysis.TrustScore, analysis.TrustLevel)
	}
	if len(analysis.CorrectClaims) != 1 || len(analysis.IncorrectClaims) != 1 {
		t.Errorf("claims = %d/%d, want 1/1", len(analysis.CorrectClaims), len(analysis.IncorrectClaims))
	}
	if analysis.SpeculativeClaims == nil {
		t.Error("missing speculativeClaims should default to empty, not nil")
	}

	if gotBody.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("responseMimeType = %q", gotBody.GenerationConfig.ResponseMimeType)
	}
	if len(gotBody.SafetySettings) != 4 {
		t.Errorf("safetySettings count = %d, want 4", len(gotBody.SafetySettings))
	}
	if len(gotBody.Contents) != 1 || !strings.Contains(gotBody.Contents[0].Parts[0].Text, "some transcript text") {
		t.Error("prompt does not embed the transcript")
	}
}

func TestAnalyzeTextTruncatesLongTranscript(t *testing.T) {
	var promptLen int
	var sawMarker bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		json.NewDecoder(r.Body).Decode(&body)
		text := body.Contents[0].Parts[0].Text
		promptLen = len(text)
		sawMarker = strings.Contains(text, truncationMarker)
		fmt.Fprint(w, candidateResponse(analysisJSON, "STOP"))
	}))
	defer srv.Close()

	long := strings.Repeat("a", maxTranscriptChars+5000)
	if _, err := newTestClient(srv.URL).AnalyzeText(context.Background(), long); err != nil {
		t.Fatalf("AnalyzeText() error: %v", err)
	}

	if !sawMarker {
		t.Error("truncated transcript missing truncation marker")
	}
	if promptLen > maxTranscriptChars+len(truncationMarker)+2000 {
		t.Errorf("prompt length %d suggests transcript was not truncated", promptLen)
	}
}

func TestAnalyzeTextSafetyBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, candidateResponse("", "SAFETY"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzeText(context.Background(), "text")
	if !errors.Is(err, ErrSafetyBlocked) {
		t.Fatalf("error = %v, want ErrSafetyBlocked", err)
	}
}

func TestAnalyzeTextServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzeText(context.Background(), "text")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
}

// mediaServer simulates the whole File API flow. pollStates is consumed one
// state per poll; the last state repeats.
type mediaServer struct {
	t          *testing.T
	pollStates []string
	pollCount  atomic.Int32
	deleted    atomic.Bool
	srv        *httptest.Server
}

func newMediaServer(t *testing.T, pollStates []string) *mediaServer {
	m := &mediaServer{t: t, pollStates: pollStates}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Upload-Protocol") != "resumable" || r.Header.Get("X-Goog-Upload-Command") != "start" {
			t.Error("missing resumable upload start headers")
		}
		w.Header().Set("X-Goog-Upload-URL", m.srv.URL+"/put")
	})
	mux.HandleFunc("PUT /put", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Upload-Command") != "upload, finalize" {
			t.Error("missing finalize command header")
		}
		fmt.Fprint(w, `{"file": {"name": "files/abc123", "uri": "https://generativelanguage.googleapis.com/v1beta/files/abc123", "state": "PROCESSING"}}`)
	})
	mux.HandleFunc("GET /v1beta/files/abc123", func(w http.ResponseWriter, r *http.Request) {
		n := int(m.pollCount.Add(1)) - 1
		if n >= len(m.pollStates) {
			n = len(m.pollStates) - 1
		}
		fmt.Fprintf(w, `{"name": "files/abc123", "state": %q}`, m.pollStates[n])
	})
	mux.HandleFunc("DELETE /v1beta/files/abc123", func(w http.ResponseWriter, r *http.Request) {
		m.deleted.Store(true)
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("POST /v1beta/models/{model}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, candidateResponse(analysisJSON, "STOP"))
	})

	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func writeTempMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dQw4w9WgXcQ_1.m4a")
	if err := os.WriteFile(path, []byte("fake audio bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeMedia(t *testing.T) {
	m := newMediaServer(t, []string{"PROCESSING", "PROCESSING", "ACTIVE"})

	analysis, err := newTestClient(m.srv.URL).AnalyzeMedia(context.Background(), writeTempMedia(t), "audio/mp4")
	if err != nil {
		t.Fatalf("AnalyzeMedia() error: %v", err)
	}

	if analysis.TotalClaims != 2 {
		t.Errorf("TotalClaims = %d, want 2", analysis.TotalClaims)
	}
	if got := m.pollCount.Load(); got != 3 {
		t.Errorf("poll count = %d, want 3", got)
	}
	if !m.deleted.Load() {
		t.Error("uploaded file was not deleted after analysis")
	}
}

func TestAnalyzeMediaProcessingFailed(t *testing.T) {
	m := newMediaServer(t, []string{"PROCESSING", "FAILED"})

	_, err := newTestClient(m.srv.URL).AnalyzeMedia(context.Background(), writeTempMedia(t), "audio/mp4")
	if !errors.Is(err, ErrMediaProcessingFailed) {
		t.Fatalf("error = %v, want ErrMediaProcessingFailed", err)
	}
	if !m.deleted.Load() {
		t.Error("uploaded file must be deleted even when processing fails")
	}
}

func TestAnalyzeMediaProcessingTimeout(t *testing.T) {
	m := newMediaServer(t, []string{"PROCESSING"})

	c := newTestClient(m.srv.URL)
	c.maxPollAttempts = 3
	_, err := c.AnalyzeMedia(context.Background(), writeTempMedia(t), "audio/mp4")
	if !errors.Is(err, ErrProcessingTimeout) {
		t.Fatalf("error = %v, want ErrProcessingTimeout", err)
	}
	if got := m.pollCount.Load(); got != 3 {
		t.Errorf("poll count = %d, want 3", got)
	}
	if !m.deleted.Load() {
		t.Error("uploaded file must be deleted on timeout")
	}
}

func TestWaitForProcessingFileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).waitForProcessing(context.Background(), "files/gone")
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("error = %v, want ErrFileNotFound", err)
	}
}

func TestWaitForProcessingErrorBudget(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).waitForProcessing(context.Background(), "files/abc123")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	if got := polls.Load(); got != 5 {
		t.Errorf("gave up after %d polls, want 5 consecutive errors", got)
	}
}

func TestWaitForProcessingErrorBudgetResets(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Three garbage responses, one clean PROCESSING poll, then three
		// more garbage responses: never five in a row, then ACTIVE.
		switch n := polls.Add(1); {
		case n == 4:
			fmt.Fprint(w, `{"name": "files/abc123", "state": "PROCESSING"}`)
		case n <= 7:
			fmt.Fprint(w, "garbage")
		default:
			fmt.Fprint(w, `{"name": "files/abc123", "state": "ACTIVE"}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.maxPollAttempts = 20
	if err := c.waitForProcessing(context.Background(), "files/abc123"); err != nil {
		t.Fatalf("waitForProcessing() error: %v", err)
	}
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, a *Analysis)
	}{
		{
			name:  "clean JSON",
			input: analysisJSON,
			check: func(t *testing.T, a *Analysis) {
				if a.Summary == "" || a.TrustScore != 45 {
					t.Errorf("unexpected analysis: %+v", a)
				}
			},
		},
		{
			name:  "JSON wrapped in prose",
			input: "Here is the analysis you asked for:\n" + analysisJSON + "\nLet me know if you need more.",
			check: func(t *testing.T, a *Analysis) {
				if a.TrustLevel != "MEDIUM" {
					t.Errorf("TrustLevel = %q", a.TrustLevel)
				}
			},
		},
		{
			name:  "braces inside claim strings",
			input: `prefix {"summary": "uses {braces} and \"quotes\"", "trustScore": 80, "trustLevel": "HIGH"} suffix`,
			check: func(t *testing.T, a *Analysis) {
				if a.TrustScore != 80 {
					t.Errorf("TrustScore = %d", a.TrustScore)
				}
			},
		},
		{name: "no JSON at all", input: "I cannot analyze this content.", wantErr: true},
		{name: "unbalanced braces", input: `{"summary": "truncated`, wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := parseAnalysis(tt.input)
			if tt.wantErr {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("error = %v, want *ParseError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAnalysis() error: %v", err)
			}
			if analysis.SpeculativeClaims == nil {
				t.Error("SpeculativeClaims should never be nil")
			}
			tt.check(t, analysis)
		})
	}
}

func TestParseErrorExcerptBounded(t *testing.T) {
	_, err := parseAnalysis(strings.Repeat("x", 2000))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if len(parseErr.Excerpt) > excerptLen {
		t.Errorf("excerpt length = %d, want <= %d", len(parseErr.Excerpt), excerptLen)
	}
}
