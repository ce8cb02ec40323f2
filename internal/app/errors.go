package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrUnknownKind indicates a completion kind that is not configured.
	ErrUnknownKind = errors.New("unknown completion kind")

	// ErrClosed indicates the application has been closed.
	ErrClosed = errors.New("application closed")
)

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
