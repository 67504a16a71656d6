// Package factcheck orchestrates the analysis pipeline: normalize the URL,
// serve from cache when possible, otherwise acquire content (transcript
// first, media download as fallback), run the AI analysis, persist, and
// answer.
package factcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/veritube/factcheck-api/internal/database"
	"github.com/veritube/factcheck-api/internal/models"
	"github.com/veritube/factcheck-api/internal/services/gemini"
	"github.com/veritube/factcheck-api/internal/services/media"
	"github.com/veritube/factcheck-api/internal/services/tasks"
	"github.com/veritube/factcheck-api/internal/services/transcript"
	"github.com/veritube/factcheck-api/internal/services/youtube"
)

// HistoryStore is the persistence surface the pipeline needs.
type HistoryStore interface {
	FindHistoryByVideoID(ctx context.Context, videoID string) (*models.HistoryRecord, error)
	UpsertHistory(ctx context.Context, rec *models.HistoryRecord) error
	IncrementHistoryRequestCount(ctx context.Context, videoID string) error
}

// TaskSubmitter queues fire-and-forget background work.
type TaskSubmitter interface {
	Submit(job tasks.Job) error
}

// Result is the pipeline's answer for one request.
type Result struct {
	Report *models.AnalysisReport
	Cached bool
}

// Service runs the fact-check pipeline.
type Service struct {
	store       HistoryStore
	transcripts transcript.Fetcher
	media       media.Acquirer
	analyzer    gemini.Analyzer
	tasks       TaskSubmitter

	// Go Pattern: singleflight collapses concurrent calls with the same
	// key into one execution whose result all callers share. Two users
	// submitting the same video at once trigger exactly one analysis.
	group singleflight.Group
}

// New wires the pipeline together.
func New(store HistoryStore, fetcher transcript.Fetcher, acquirer media.Acquirer, analyzer gemini.Analyzer, runner TaskSubmitter) *Service {
	return &Service{
		store:       store,
		transcripts: fetcher,
		media:       acquirer,
		analyzer:    analyzer,
		tasks:       runner,
	}
}

// Analyze fact-checks one YouTube URL. Cached results return immediately;
// misses run the full pipeline. The returned error, if any, is always a
// *factcheck.Error.
func (s *Service) Analyze(ctx context.Context, rawURL string) (*Result, *Error) {
	videoID, canonicalURL, err := youtube.Normalize(rawURL)
	if err != nil {
		return nil, newError(KindInvalidInput, "Invalid YouTube URL format", err)
	}

	log.Printf("🔍 Analysis requested for video %s", videoID)

	// Every run is also an opportunity to clear out stale temp files.
	s.submitTask("temp sweep", func(ctx context.Context) error {
		s.media.SweepStale()
		return nil
	})

	if result := s.fromCache(ctx, videoID); result != nil {
		return result, nil
	}

	// Miss path. Concurrent requests for the same video share one run.
	// The run is detached from the caller's context: once started, the
	// pipeline finishes on its own per-step timeouts. A disconnecting
	// client must not cancel work that other collapsed callers (and the
	// cache) are waiting on.
	v, err, _ := s.group.Do(videoID, func() (any, error) {
		return s.runPipeline(context.WithoutCancel(ctx), videoID, canonicalURL)
	})
	if err != nil {
		var pipelineErr *Error
		if errors.As(err, &pipelineErr) {
			return nil, pipelineErr
		}
		return nil, newError(KindInternal, "Internal server error during analysis", err)
	}

	return &Result{Report: v.(*models.AnalysisReport)}, nil
}

// fromCache returns the stored report for a video, or nil on a miss. A
// hit bumps the request counter in the background; the response never
// waits on that write.
func (s *Service) fromCache(ctx context.Context, videoID string) *Result {
	rec, err := s.store.FindHistoryByVideoID(ctx, videoID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Printf("⚠️  Cache lookup failed for %s: %v", videoID, err)
		}
		return nil
	}

	report, err := rec.Report()
	if err != nil {
		// Corrupt stored report: re-analyze, the upsert will repair it.
		log.Printf("⚠️  Stored report for %s is unreadable, re-analyzing: %v", videoID, err)
		return nil
	}

	log.Printf("✅ Cache hit for %s (request #%d)", videoID, rec.RequestCount+1)
	s.submitTask("request count increment", func(ctx context.Context) error {
		return s.store.IncrementHistoryRequestCount(ctx, videoID)
	})

	return &Result{Report: report, Cached: true}
}

// runPipeline executes the acquisition and analysis state machine for one
// cache miss.
func (s *Service) runPipeline(ctx context.Context, videoID, canonicalURL string) (report *models.AnalysisReport, outErr error) {
	start := time.Now()

	// The recover boundary: a panic anywhere below becomes a generic
	// internal error, never a crashed server or a leaked goroutine.
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("❌ Pipeline panic for %s: %v", videoID, rec)
			report = nil
			outErr = newError(KindInternal, "Internal server error during analysis", fmt.Errorf("panic: %v", rec))
		}
	}()

	var analysis *gemini.Analysis
	var method models.AnalysisMethod
	var title string
	var duration int

	// Transcript first: it is the cheapest source and needs nothing else.
	// Video metadata is only fetched on the media fallback, where the
	// duration ceiling and the download actually require it. A flaky
	// metadata endpoint must never sink a run that captions can serve.
	tr, err := s.transcripts.Fetch(ctx, videoID)
	if err == nil {
		log.Printf("📝 Transcript available for %s (%d words), using fast path", videoID, tr.WordCount)
		method = models.MethodTranscript
		duration = tr.DurationSeconds
		analysis, err = s.analyzer.AnalyzeText(ctx, tr.Text)
		if err != nil {
			return nil, classifyAnalysisError(err)
		}
	} else if errors.Is(err, transcript.ErrNoTranscript) {
		log.Printf("🎬 No transcript for %s, falling back to media analysis", videoID)
		method = models.MethodVideo

		info, err := s.media.FetchInfo(ctx, videoID)
		if err != nil {
			if errors.Is(err, youtube.ErrInvalidURL) {
				return nil, newError(KindInvalidInput, "Invalid YouTube URL format", err)
			}
			return nil, newError(KindUpstreamUnavailable, "Could not fetch video information", err)
		}
		title = info.Title
		duration = info.DurationSeconds

		file, err := s.media.Download(ctx, videoID, info)
		if err != nil {
			return nil, classifyDownloadError(err)
		}
		// Exactly one deletion on every path out of here, panics included.
		defer func() {
			if rmErr := os.Remove(file.Path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Printf("⚠️  Failed to remove temp file %s: %v", file.Path, rmErr)
			}
		}()

		analysis, err = s.analyzer.AnalyzeMedia(ctx, file.Path, file.MimeType)
		if err != nil {
			return nil, classifyAnalysisError(err)
		}
	} else {
		return nil, newError(KindInternal, "Internal server error during analysis", err)
	}

	elapsed := time.Since(start).Seconds()
	report = buildReport(analysis, videoID, canonicalURL, title, duration, method, elapsed)

	// Persist failures never cost the caller their fresh report.
	if err := s.persist(ctx, report, elapsed); err != nil {
		log.Printf("⚠️  Failed to persist analysis for %s: %v", videoID, err)
	}

	log.Printf("✅ Analysis complete for %s in %.2fs (%s method, trust %d)",
		videoID, elapsed, method, report.Trust.Score)
	return report, nil
}

// classifyDownloadError maps media acquisition failures to pipeline errors.
func classifyDownloadError(err error) *Error {
	switch {
	case errors.Is(err, media.ErrTooLong):
		return newError(KindResourceLimitExceeded, "Video is too long to analyze (max 1 hour)", err)
	case errors.Is(err, media.ErrTooLarge):
		return newError(KindResourceLimitExceeded, "Video file is too large to analyze (max 100MB)", err)
	case errors.Is(err, media.ErrDownloadFailed), errors.Is(err, media.ErrInfoFetchFailed):
		return newError(KindUpstreamUnavailable, "Failed to download video", err)
	default:
		return newError(KindInternal, "Internal server error during analysis", err)
	}
}

// classifyAnalysisError maps AI backend failures to pipeline errors.
func classifyAnalysisError(err error) *Error {
	var parseErr *gemini.ParseError
	switch {
	case errors.Is(err, gemini.ErrSafetyBlocked):
		return newError(KindInvalidInput, "Content blocked due to safety concerns", err)
	case errors.As(err, &parseErr):
		return newError(KindParseFailure, "Failed to parse analysis response", err)
	case errors.Is(err, gemini.ErrProcessingTimeout),
		errors.Is(err, gemini.ErrMediaProcessingFailed),
		errors.Is(err, gemini.ErrFileNotFound),
		errors.Is(err, gemini.ErrBackendUnavailable):
		return newError(KindUpstreamUnavailable, "Analysis backend unavailable", err)
	default:
		return newError(KindInternal, "Internal server error during analysis", err)
	}
}

// buildReport assembles the caller-facing report from the AI analysis.
// Counts and percentages are recomputed from the claim lists so the
// report is internally consistent even when the model's own numbers
// are not, and the trust level is always derived from the score.
func buildReport(a *gemini.Analysis, videoID, url, title string, duration int, method models.AnalysisMethod, elapsedSeconds float64) *models.AnalysisReport {
	correct := convertClaims(a.CorrectClaims)
	incorrect := convertClaims(a.IncorrectClaims)
	speculative := convertClaims(a.SpeculativeClaims)
	total := len(correct) + len(incorrect) + len(speculative)

	topic := a.VideoTopic
	if topic == "" {
		topic = "Unknown Topic"
	}
	if title == "" {
		title = "Unknown Title"
	}

	return &models.AnalysisReport{
		Video: models.VideoInfo{
			ID:              videoID,
			URL:             url,
			Title:           title,
			Topic:           topic,
			DurationSeconds: duration,
		},
		Summary: a.Summary,
		FactCheck: models.FactCheck{
			TotalClaims:           total,
			CorrectClaims:         correct,
			IncorrectClaims:       incorrect,
			SpeculativeClaims:     speculative,
			CorrectPercentage:     percentage(len(correct), total),
			IncorrectPercentage:   percentage(len(incorrect), total),
			SpeculativePercentage: percentage(len(speculative), total),
		},
		Trust: models.Trust{
			Score: clampScore(a.TrustScore),
			Level: models.TrustLevelForScore(clampScore(a.TrustScore)),
		},
		AnalysisNote:   a.AnalysisNote,
		Method:         method,
		ProcessingTime: fmt.Sprintf("%.2fs", elapsedSeconds),
	}
}

func convertClaims(claims []gemini.Claim) []models.Claim {
	out := make([]models.Claim, 0, len(claims))
	for _, c := range claims {
		out = append(out, models.Claim{Claim: c.Claim, Reasoning: c.Reasoning, Confidence: c.Confidence})
	}
	return out
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// persist upserts the history row for a fresh report.
func (s *Service) persist(ctx context.Context, report *models.AnalysisReport, elapsedSeconds float64) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	rec := &models.HistoryRecord{
		VideoID:                report.Video.ID,
		YouTubeURL:             report.Video.URL,
		VideoTitle:             report.Video.Title,
		AnalysisMethod:         report.Method,
		AnalysisResult:         payload,
		Summary:                report.Summary,
		VideoTopic:             report.Video.Topic,
		TrustScore:             report.Trust.Score,
		TrustLevel:             report.Trust.Level,
		TotalClaims:            report.FactCheck.TotalClaims,
		CorrectClaimsCount:     len(report.FactCheck.CorrectClaims),
		IncorrectClaimsCount:   len(report.FactCheck.IncorrectClaims),
		SpeculativeClaimsCount: len(report.FactCheck.SpeculativeClaims),
		ProcessingTime:         elapsedSeconds,
	}
	return s.store.UpsertHistory(ctx, rec)
}

// submitTask queues background work, logging (only) when the queue is full.
func (s *Service) submitTask(name string, run func(ctx context.Context) error) {
	if err := s.tasks.Submit(tasks.Job{Name: name, Run: run}); err != nil {
		log.Printf("⚠️  %v", err)
	}
}
