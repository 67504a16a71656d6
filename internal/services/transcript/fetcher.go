// Package transcript retrieves YouTube caption tracks using yt-dlp.
//
// This is the fast path of the fact-check pipeline: if a caption track
// exists the analysis can run on text alone, skipping the media download
// entirely. Every failure mode here (no captions, disabled captions,
// region lock, tool error) collapses into ErrNoTranscript — the pipeline
// treats them all as "fall through to the media path".
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/veritube/factcheck-api/internal/services/youtube"
)

// ErrNoTranscript is returned when no caption track could be retrieved,
// for whatever reason.
var ErrNoTranscript = errors.New("no transcript available")

// fetchTimeout bounds the whole caption extraction.
const fetchTimeout = 60 * time.Second

// Fetcher defines the interface for transcript retrieval.
// Go Pattern: a small one-method interface keeps the pipeline testable —
// tests substitute a stub instead of shelling out to yt-dlp.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (*Result, error)
}

// Segment is a single caption cue with its timing.
type Segment struct {
	Text  string
	Start float64 // seconds from video start
	Dur   float64 // seconds
}

// Result holds the retrieved transcript.
type Result struct {
	VideoID         string
	Text            string
	WordCount       int
	DurationSeconds int // derived from the last cue's offset+length
	SegmentCount    int
}

// YtDlpFetcher retrieves caption tracks via the yt-dlp CLI tool.
type YtDlpFetcher struct {
	ytDlpPath string
	tempDir   string
}

// NewFetcher creates a yt-dlp based transcript fetcher. Subtitle files are
// written under tempDir and removed before Fetch returns.
func NewFetcher(ytDlpPath, tempDir string) *YtDlpFetcher {
	return &YtDlpFetcher{ytDlpPath: ytDlpPath, tempDir: tempDir}
}

// Fetch retrieves the caption track for a video. Manual subtitles are tried
// first, then auto-generated captions.
func (f *YtDlpFetcher) Fetch(ctx context.Context, videoID string) (*Result, error) {
	if !youtube.ValidVideoID(videoID) {
		return nil, fmt.Errorf("%w: bad video id", ErrNoTranscript)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	url := youtube.CanonicalURL(videoID)
	outputTemplate := filepath.Join(f.tempDir, "cap-%(id)s")

	for _, subFlag := range []string{"--write-subs", "--write-auto-subs"} {
		cmd := exec.CommandContext(ctx, f.ytDlpPath,
			"--skip-download",
			subFlag,
			"--sub-langs", "en.*,en",
			"--sub-format", "vtt",
			"--output", outputTemplate,
			"--no-warnings",
			"--no-playlist",
			"--", url,
		)

		if output, err := cmd.CombinedOutput(); err != nil {
			log.Printf("⚠️  Subtitle extraction (%s) failed for %s: %s", subFlag, videoID, strings.TrimSpace(string(output)))
			continue
		}

		matches, err := filepath.Glob(filepath.Join(f.tempDir, "cap-"+videoID+"*.vtt"))
		if err != nil || len(matches) == 0 {
			continue
		}

		content, err := os.ReadFile(matches[0])
		for _, m := range matches {
			os.Remove(m)
		}
		if err != nil {
			continue
		}

		segments := ParseVTT(string(content))
		if len(segments) == 0 {
			continue
		}

		return buildResult(videoID, segments), nil
	}

	return nil, fmt.Errorf("%w: video %s", ErrNoTranscript, videoID)
}

// buildResult flattens caption segments into the transcript result.
func buildResult(videoID string, segments []Segment) *Result {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	text := cleanTranscript(strings.Join(parts, " "))

	// Duration comes from the captions themselves, not external metadata:
	// the last cue's offset plus its length.
	last := segments[len(segments)-1]
	duration := int(math.Ceil(last.Start + last.Dur))

	return &Result{
		VideoID:         videoID,
		Text:            text,
		WordCount:       len(strings.Fields(text)),
		DurationSeconds: duration,
		SegmentCount:    len(segments),
	}
}

// timestampLine matches VTT cue timing lines like
// "00:00:01.000 --> 00:00:04.000 align:start position:0%".
var timestampLine = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}\.\d{3})\s+-->\s+(\d{2}:\d{2}:\d{2}\.\d{3})`)

// vttTag matches inline formatting tags like <c> and <00:00:01.319>.
var vttTag = regexp.MustCompile(`<[^>]+>`)

// cueIdentifier matches bare numeric cue counters.
var cueIdentifier = regexp.MustCompile(`^\d+$`)

// ParseVTT extracts timed text segments from a WebVTT subtitle file.
// Repeated lines (common in auto-generated rolling captions) are kept once.
func ParseVTT(vtt string) []Segment {
	var segments []Segment
	seen := make(map[string]bool)

	var curStart, curEnd float64
	inCue := false

	for _, line := range strings.Split(vtt, "\n") {
		line = strings.TrimSpace(line)

		if m := timestampLine.FindStringSubmatch(line); m != nil {
			curStart = parseTimestamp(m[1])
			curEnd = parseTimestamp(m[2])
			inCue = true
			continue
		}

		if line == "" || line == "WEBVTT" || strings.HasPrefix(line, "Kind:") ||
			strings.HasPrefix(line, "Language:") || strings.HasPrefix(line, "NOTE") ||
			cueIdentifier.MatchString(line) {
			if line == "" {
				inCue = false
			}
			continue
		}

		if !inCue {
			continue
		}

		text := strings.TrimSpace(vttTag.ReplaceAllString(line, ""))
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		segments = append(segments, Segment{
			Text:  text,
			Start: curStart,
			Dur:   curEnd - curStart,
		})
	}

	return segments
}

// parseTimestamp converts "hh:mm:ss.mmm" to seconds.
func parseTimestamp(ts string) float64 {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0
	}
	hours, _ := strconv.ParseFloat(parts[0], 64)
	minutes, _ := strconv.ParseFloat(parts[1], 64)
	seconds, _ := strconv.ParseFloat(parts[2], 64)
	return hours*3600 + minutes*60 + seconds
}

// whitespaceRun collapses any run of whitespace to a single space.
var whitespaceRun = regexp.MustCompile(`\s+`)

// cleanTranscript normalizes whitespace and strips common caption artifacts.
func cleanTranscript(text string) string {
	for _, artifact := range []string{"[Music]", "[Applause]", "[Laughter]"} {
		text = strings.ReplaceAll(text, artifact, "")
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
