package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrResourceNotFound = errors.New("resource not found")

	// ErrStatusChanged is returned by a conditional status write when the
	// booking no longer has the expected status.
	ErrStatusChanged = errors.New("booking status changed concurrently")

	ErrLockTimeout = errors.New("timed out waiting for resource lock")
)
