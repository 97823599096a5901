package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrStalePrice          = errors.New("stale price")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExecutionTimeout    = errors.New("execution timeout")
	ErrRiskLimitExceeded   = errors.New("risk limit exceeded")
	ErrEnginePaused        = errors.New("engine paused")
	ErrLockHeld            = errors.New("execution lock already held")
	ErrInvalidOrder        = errors.New("invalid order parameters")
)

// VenueError wraps a failure from a venue client with the venue and the
// operation that failed, so callers and logs can tell the two venues apart.
type VenueError struct {
	Venue string
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *VenueError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Venue, e.Op, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *VenueError) Unwrap() error { return e.Err }

// NewVenueError wraps err with venue and operation context. It returns nil
// when err is nil.
func NewVenueError(venue, op string, err error) error {
	if err == nil {
		return nil
	}
	return &VenueError{Venue: venue, Op: op, Err: err}
}
