package interfaces

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrPreconditionFailed is returned by conditional updates whose filter
	// no longer matches, typically because another caller got there first.
	ErrPreconditionFailed = errors.New("precondition failed")
)
