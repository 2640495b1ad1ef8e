package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyID is returned when a thread or workflow id is empty.
	ErrEmptyID = errors.New("empty id")

	// ErrInvalidPage is returned for a page number or page size below 1.
	ErrInvalidPage = errors.New("invalid page")

	// ErrEmptyBaseURL is returned when the client has no base URL.
	ErrEmptyBaseURL = errors.New("empty base URL")
)

// TransportError is the single error kind returned by Client. It names the
// operation that failed and carries the underlying cause.
type TransportError struct {
	// Op is the operation name, e.g. "list_messages".
	Op string

	// StatusCode is the HTTP status when the server answered, zero for
	// failures before or during the round trip.
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap returns the cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// StatusError is the cause of a TransportError for non-2xx answers.
type StatusError struct {
	// Status is the status line text, e.g. "404 Not Found".
	Status string

	// Body is a bounded snippet of the response body.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return "unexpected response " + e.Status
	}

	return fmt.Sprintf("unexpected response %s: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status of err when it is a TransportError from
// a server answer, and zero otherwise.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}

	return 0
}
