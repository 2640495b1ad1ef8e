package threadsync

import "errors"

var (
	// ErrInvalidPageSize is returned by New for a page size below 1.
	ErrInvalidPageSize = errors.New("page size must be at least 1")

	// ErrNoActiveThread is returned by Send before any thread is loaded.
	ErrNoActiveThread = errors.New("no active thread")

	// ErrEmptyContent is returned by Send for blank message content.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("controller closed")
)
