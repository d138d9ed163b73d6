package formbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrNotForm         = errors.New("element is not a form")
	ErrUnknownTrigger  = errors.New("unknown trigger")
	ErrWrongKind       = errors.New("trigger does not handle this event")
)

// RequestError reports a request that never produced a response.
type RequestError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// DecodeError reports a response body that is not JSON.
type DecodeError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %s: invalid JSON response: %v", e.Method, e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RenderError reports a response the render step could not display.
type RenderError struct {
	Trigger string
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Trigger, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// errorMessage pulls the "error" field out of an error body, falling back to
// a trimmed copy of the body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
