package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParser is returned when no candidate dialect produced a document
	// with content.
	ErrNoParser = errors.New("no suitable parser")

	// ErrNoDialect is returned by Detect when the document matches no known
	// dialect.
	ErrNoDialect = errors.New("no recognized dialect")

	// ErrUnreadable is returned when the input cannot be read or is not
	// well-formed XML.
	ErrUnreadable = errors.New("unreadable stream")
)

// unreadableError carries the read or syntax failure behind ErrUnreadable.
// It also matches ErrNoDialect since an unreadable stream has no dialect.
type unreadableError struct {
	cause error
}

func (e *unreadableError) Error() string {
	return fmt.Sprintf("%v: %v", ErrUnreadable, e.cause)
}

func (e *unreadableError) Is(target error) bool {
	return target == ErrUnreadable || target == ErrNoDialect
}

func (e *unreadableError) Unwrap() error {
	return e.cause
}

func unreadable(cause error) error {
	return &unreadableError{cause: cause}
}
