// Package youtube validates YouTube URLs and extracts video identifiers.
//
// The identifier this package produces is later interpolated into yt-dlp
// command lines, so validation here is deliberately paranoid: the regex
// match alone is not trusted, and the caller's original string is never
// reused downstream — only the rebuilt canonical URL.
package youtube

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned for any input that does not resolve to a safe
// 11-character video identifier.
var ErrInvalidURL = errors.New("invalid YouTube URL")

// maxURLLength bounds the input before any regex runs (ReDoS cost bound).
const maxURLLength = 200

// urlPatterns are the five canonical YouTube URL shapes, tried in order.
// The first capture group that yields a valid 11-character identifier wins.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/v/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

// videoIDPattern is the exact shape of a YouTube video identifier.
var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// dangerousPatterns reject inputs that could smuggle shell syntax or
// path traversal past the extractor, independent of the URL match.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile("[;&|`$(){}\\[\\]<>]"), // shell metacharacters
	regexp.MustCompile(`\.\.`),                // path traversal
	regexp.MustCompile(`%00`),                 // encoded null byte
	regexp.MustCompile(`%0[aAdD]`),            // encoded newline / carriage return
}

// ExtractVideoID parses a YouTube URL and returns the validated
// 11-character video identifier.
func ExtractVideoID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)

	if rawURL == "" || len(rawURL) > maxURLLength {
		return "", ErrInvalidURL
	}

	// Defense in depth: reject unsafe bytes before pattern matching.
	if !isSafeInput(rawURL) {
		return "", ErrInvalidURL
	}

	for _, pattern := range urlPatterns {
		matches := pattern.FindStringSubmatch(rawURL)
		if len(matches) >= 2 && videoIDPattern.MatchString(matches[1]) {
			return matches[1], nil
		}
	}

	return "", ErrInvalidURL
}

// Normalize parses a YouTube URL and returns both the video identifier and
// the rebuilt canonical watch URL. Downstream components only ever see the
// canonical form — the caller's original string is discarded.
func Normalize(rawURL string) (videoID, canonicalURL string, err error) {
	videoID, err = ExtractVideoID(rawURL)
	if err != nil {
		return "", "", err
	}
	return videoID, CanonicalURL(videoID), nil
}

// CanonicalURL rebuilds the safe watch URL from a validated identifier.
func CanonicalURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// ValidVideoID reports whether s is exactly an 11-character video
// identifier with no unsafe bytes.
func ValidVideoID(s string) bool {
	return videoIDPattern.MatchString(s) && isSafeInput(s)
}

// isSafeInput rejects control characters and known injection sequences.
func isSafeInput(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(s) {
			return false
		}
	}
	return true
}
