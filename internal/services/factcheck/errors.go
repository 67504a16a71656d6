package factcheck

import (
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure for response mapping.
type Kind int

const (
	// KindInvalidInput covers bad URLs and content the backend refuses.
	KindInvalidInput Kind = iota
	// KindUpstreamUnavailable covers YouTube and Gemini being unreachable
	// or failing to serve.
	KindUpstreamUnavailable
	// KindResourceLimitExceeded covers the duration and file-size ceilings.
	KindResourceLimitExceeded
	// KindParseFailure means the AI answered but not in the agreed format.
	KindParseFailure
	// KindInternal is everything else. Details stay in the logs.
	KindInternal
)

// Error is a classified pipeline failure. Msg is safe to show callers;
// Err carries the cause for the logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the failure kind to an HTTP status for the envelope.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindResourceLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case KindParseFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}
