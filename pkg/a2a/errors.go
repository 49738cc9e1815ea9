package a2a

import (
	"errors"
	"fmt"
)

// Agent card validation errors.
var (
	ErrMissingName    = errors.New("agent card: missing name")
	ErrMissingURL     = errors.New("agent card: missing url")
	ErrMissingVersion = errors.New("agent card: missing version")
)

// Protocol errors.
var (
	// ErrRemoteUnavailable means the remote agent could not be reached.
	ErrRemoteUnavailable = errors.New("a2a: remote agent unavailable")
	// ErrInvalidMessage means a request or response body could not be read.
	ErrInvalidMessage = errors.New("a2a: invalid message format")
	// ErrEmptyResult means the agent answered but produced no text.
	ErrEmptyResult = errors.New("a2a: no content received from agent")
	// ErrAgentFailed means the agent ended its stream with a failed task
	// state. Any text streamed before the failure is incomplete.
	ErrAgentFailed = errors.New("a2a: agent reported failure")
)

// maxErrorBody caps how much of a failed response is kept in an error.
const maxErrorBody = 500

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent error: HTTP %d: %s", e.StatusCode, e.Body)
}

func newStatusError(code int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{StatusCode: code, Body: string(body)}
}
