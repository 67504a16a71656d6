package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSafetyBlocked means the model refused the content on safety grounds.
	ErrSafetyBlocked = errors.New("content blocked due to safety concerns")
	// ErrFileNotFound means the uploaded file handle no longer exists.
	ErrFileNotFound = errors.New("file not found in Gemini")
	// ErrMediaProcessingFailed means Gemini could not process the media file.
	ErrMediaProcessingFailed = errors.New("file processing failed by Gemini")
	// ErrBackendUnavailable covers transport failures and persistent bad
	// responses from the Gemini API.
	ErrBackendUnavailable = errors.New("Gemini API unavailable")
	// ErrProcessingTimeout means the file never became ACTIVE in time.
	ErrProcessingTimeout = errors.New("file processing timeout")
)

// ParseError means the model answered but the answer was not usable JSON.
// Excerpt carries the start of the raw response for the logs.
type ParseError struct {
	Excerpt string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse analysis response: %s", e.Excerpt)
}

// excerptLen bounds how much raw response text error values carry around.
const excerptLen = 500

func excerpt(s string) string {
	if len(s) > excerptLen {
		return s[:excerptLen]
	}
	return s
}

// parseAnalysis turns the model's text answer into an Analysis. JSON mode
// usually returns clean JSON, but the model sometimes wraps it in prose or
// markdown fences, so a balanced-brace extraction runs as fallback.
func parseAnalysis(text string) (*Analysis, error) {
	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err == nil {
		normalize(&analysis)
		return &analysis, nil
	}

	if extracted := extractJSON(text); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), &analysis); err == nil {
			normalize(&analysis)
			return &analysis, nil
		}
	}

	return nil, &ParseError{Excerpt: excerpt(text)}
}

// normalize fills fields the model occasionally omits.
func normalize(a *Analysis) {
	if a.SpeculativeClaims == nil {
		a.SpeculativeClaims = []Claim{}
	}
	if a.CorrectClaims == nil {
		a.CorrectClaims = []Claim{}
	}
	if a.IncorrectClaims == nil {
		a.IncorrectClaims = []Claim{}
	}
}

// extractJSON finds the first balanced {...} block in text. String
// literals are tracked so braces inside claim text don't break the count.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
