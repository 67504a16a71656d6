// Package media downloads bounded YouTube media files using yt-dlp.
//
// This is the slow path of the fact-check pipeline, used when no caption
// track exists. Downloads are kept cheap on purpose: audio-only first,
// lowest-quality video as fallback, with hard ceilings on both video
// duration and resulting file size.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/veritube/factcheck-api/internal/services/youtube"
)

var (
	// ErrInfoFetchFailed means no extraction persona could retrieve metadata.
	ErrInfoFetchFailed = errors.New("could not fetch video info")
	// ErrTooLong means the video exceeds the duration ceiling.
	ErrTooLong = errors.New("video exceeds maximum duration")
	// ErrTooLarge means the downloaded file exceeds the size ceiling.
	ErrTooLarge = errors.New("downloaded file exceeds maximum size")
	// ErrDownloadFailed means every format in the ladder failed.
	ErrDownloadFailed = errors.New("video download failed")
)

const (
	infoTimeout     = 30 * time.Second
	downloadTimeout = 300 * time.Second

	// maxDurationSeconds rejects long videos before any bytes move.
	maxDurationSeconds = 3600
	// maxFileBytes rejects oversized results after download.
	maxFileBytes = 100 * 1024 * 1024

	// staleAge is how old a temp file must be before the sweep removes it.
	staleAge = time.Hour
)

// Info is the metadata yt-dlp reports for a video.
type Info struct {
	ID              string
	Title           string
	DurationSeconds int
	// Persona is the extraction client that successfully produced this
	// metadata. The download reuses it instead of probing again.
	Persona string
}

// File is a downloaded media file in the temp directory.
type File struct {
	Path      string
	MimeType  string
	SizeBytes int64
}

// Acquirer defines the media acquisition interface used by the pipeline.
type Acquirer interface {
	FetchInfo(ctx context.Context, videoID string) (*Info, error)
	Download(ctx context.Context, videoID string, info *Info) (*File, error)
	SweepStale() int
}

// Downloader acquires media via the yt-dlp CLI tool.
type Downloader struct {
	ytDlpPath string
	tempDir   string
	personas  []string // extraction clients, tried in order; "web" means default
	formats   []string // yt-dlp format selectors, tried in order
}

// NewDownloader creates a yt-dlp based media acquirer. personas and formats
// come from configuration and are tried in the given order.
func NewDownloader(ytDlpPath, tempDir string, personas, formats []string) *Downloader {
	return &Downloader{
		ytDlpPath: ytDlpPath,
		tempDir:   tempDir,
		personas:  personas,
		formats:   formats,
	}
}

// personaArgs returns the extractor arguments for a persona. The "web"
// persona is yt-dlp's default and needs no flag.
func personaArgs(persona string) []string {
	if persona == "" || persona == "web" {
		return nil
	}
	return []string{"--extractor-args", "youtube:player_client=" + persona}
}

// ytDlpInfo is the subset of yt-dlp's --dump-json output we care about.
type ytDlpInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// FetchInfo retrieves video metadata, trying each extraction persona in
// order until one succeeds. The video ID is re-validated here: this package
// builds command lines and does not trust its callers.
func (d *Downloader) FetchInfo(ctx context.Context, videoID string) (*Info, error) {
	if !youtube.ValidVideoID(videoID) {
		return nil, youtube.ErrInvalidURL
	}
	url := youtube.CanonicalURL(videoID)

	var lastErr error
	for _, persona := range d.personas {
		infoCtx, cancel := context.WithTimeout(ctx, infoTimeout)

		args := []string{"--dump-json", "--no-download", "--no-warnings"}
		args = append(args, personaArgs(persona)...)
		args = append(args, "--", url)

		output, err := exec.CommandContext(infoCtx, d.ytDlpPath, args...).Output()
		cancel()
		if err != nil {
			lastErr = err
			log.Printf("⚠️  Info fetch failed for %s (persona=%s): %v", videoID, persona, err)
			continue
		}

		var raw ytDlpInfo
		if err := json.Unmarshal(output, &raw); err != nil {
			lastErr = err
			continue
		}

		return &Info{
			ID:              videoID,
			Title:           raw.Title,
			DurationSeconds: int(raw.Duration),
			Persona:         persona,
		}, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrInfoFetchFailed, lastErr)
}

// Download fetches the media file for a video, walking the format ladder
// until one selector produces a file. The caller owns the returned file and
// must delete it when done.
func (d *Downloader) Download(ctx context.Context, videoID string, info *Info) (*File, error) {
	if !youtube.ValidVideoID(videoID) {
		return nil, youtube.ErrInvalidURL
	}
	if info.DurationSeconds > maxDurationSeconds {
		return nil, fmt.Errorf("%w: %ds > %ds", ErrTooLong, info.DurationSeconds, maxDurationSeconds)
	}

	url := youtube.CanonicalURL(videoID)

	// Salt the output name with a timestamp so the hourly sweep can age
	// files and concurrent runs never collide.
	baseName := fmt.Sprintf("%s_%d", videoID, time.Now().UnixMilli())
	outputTemplate := filepath.Join(d.tempDir, baseName+".%(ext)s")

	var lastErr error
	for _, format := range d.formats {
		dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)

		args := []string{
			"-f", format,
			"-o", outputTemplate,
			"--no-playlist",
			"--no-warnings",
		}
		args = append(args, personaArgs(info.Persona)...)
		args = append(args, "--", url)

		output, err := exec.CommandContext(dlCtx, d.ytDlpPath, args...).CombinedOutput()
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("%v: %s", err, strings.TrimSpace(string(output)))
			log.Printf("⚠️  Download failed for %s (format=%q): %v", videoID, format, err)
			continue
		}

		file, err := d.locateDownload(baseName)
		if err != nil {
			lastErr = err
			continue
		}
		return file, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, lastErr)
}

// mimeTypes maps media extensions to content types for the upload.
var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
}

// locateDownload finds the file yt-dlp produced. The extension is chosen by
// yt-dlp, so we scan for the known prefix instead of guessing.
func (d *Downloader) locateDownload(baseName string) (*File, error) {
	matches, err := filepath.Glob(filepath.Join(d.tempDir, baseName+".*"))
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("no output file found for %s", baseName)
	}

	path := matches[0]

	// The resolved path must stay inside the temp directory.
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	absTemp, err := filepath.Abs(d.tempDir)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(absPath, absTemp+string(filepath.Separator)) {
		return nil, fmt.Errorf("output file %s escapes temp directory", path)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if stat.Size() > maxFileBytes {
		os.Remove(absPath)
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, stat.Size())
	}

	mime, ok := mimeTypes[strings.ToLower(filepath.Ext(absPath))]
	if !ok {
		mime = "application/octet-stream"
	}

	return &File{Path: absPath, MimeType: mime, SizeBytes: stat.Size()}, nil
}

// tempFilePattern matches files this service creates: downloads and the
// transcript fetcher's subtitle files. Anything else in the temp directory
// is left alone.
var tempFilePattern = regexp.MustCompile(`^(cap-)?[a-zA-Z0-9_.-]+\.(mp4|m4a|webm|mkv|mp3|aac|ogg|wav|vtt)$`)

// SweepStale removes temp files older than one hour and returns how many
// were deleted. Active downloads are never touched: their files are younger
// than the cutoff by construction.
func (d *Downloader) SweepStale() int {
	entries, err := os.ReadDir(d.tempDir)
	if err != nil {
		log.Printf("⚠️  Temp sweep failed to read %s: %v", d.tempDir, err)
		return 0
	}

	cutoff := time.Now().Add(-staleAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !tempFilePattern.MatchString(entry.Name()) {
			continue
		}
		fileInfo, err := entry.Info()
		if err != nil || fileInfo.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.tempDir, entry.Name())); err == nil {
			removed++
		}
	}

	if removed > 0 {
		log.Printf("🧹 Temp sweep removed %d stale file(s)", removed)
	}
	return removed
}
