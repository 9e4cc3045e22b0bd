package feedhub

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("resource not found")
	// The acting user doesn't exist, say from a session that outlived its account.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	ErrConflict = errors.New("resource already exists")
	// The store could not get its lock in time. The whole unit of work can be replayed.
	ErrBusy = errors.New("store is busy")

	ErrAlreadyFollowing = errors.New("already following this feed")
	ErrNotFollowing     = errors.New("not following this feed")
	ErrNoEntries        = errors.New("no valid feed entries found")
)

// ValidationError reports input rejected before the store was touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError is an unrecoverable persistence failure. The unit of work it happened in is rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ParseError means an uploaded document could not be read as OPML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing opml: %s", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
