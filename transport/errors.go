package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a request failure. The distinction matters to
// callers: network errors carry no HTTP status, HTTP errors carry the
// parsed body for inspection, app errors are a 2xx response whose
// envelope reported failure, and validation errors never left the
// client.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindHTTP       ErrorKind = "http"
	KindApp        ErrorKind = "app"
	KindValidation ErrorKind = "validation"
)

// Error is the single failure type surfaced by the transport and by
// everything layered on top of it.
type Error struct {
	Kind       ErrorKind
	Message    string
	Status     int
	StatusText string
	Data       json.RawMessage // raw response body, if any
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.StatusText)
	}
	return e.Message
}

// NewValidationError reports a failure detected before any network call.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func newNetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "network error: " + err.Error()}
}

func newHTTPError(status int, body []byte) *Error {
	msg := http.StatusText(status)
	var parsed struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			msg = parsed.Message
		} else if parsed.Detail != "" {
			msg = parsed.Detail
		}
	} else if len(body) > 0 {
		msg = string(body)
	}
	return &Error{
		Kind:       KindHTTP,
		Message:    msg,
		Status:     status,
		StatusText: http.StatusText(status),
		Data:       json.RawMessage(body),
	}
}

// AsError converts any error into a *Error, wrapping unknown errors as
// network failures so callers always see the same taxonomy.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return newNetworkError(err)
}

// IsStatus reports whether err is an HTTP error with the given status.
func IsStatus(err error, status int) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == KindHTTP && te.Status == status
}
