package xkit

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed reports that the connection was shut down, either by an
	// explicit Close or after a fatal transport error.
	ErrClosed = errors.New("connection closed")

	// ErrDuplicateFilter reports an AddEventFilter call whose tag is
	// already registered.
	ErrDuplicateFilter = errors.New("event filter already registered")

	// ErrFilterNotFound reports a strict removal of a filter tag that is
	// not registered.
	ErrFilterNotFound = errors.New("event filter not registered")

	// ErrSelectorMismatch reports a merge or subtract between a wildcard
	// selector and an explicit event-code set.
	ErrSelectorMismatch = errors.New("event selector wildcard mismatch")
)

// ConnectionError wraps the fault that killed a connection. Once it appears,
// every pending wait rejects with it and every registered filter sees it
// once; all later waits fail immediately.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("x11 connection broken: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
