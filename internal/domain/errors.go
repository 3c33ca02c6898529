package domain

import "errors"

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrSlotTaken              = errors.New("slot_taken")
	ErrStoreUnavailable       = errors.New("reservation store unavailable")
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrForbidden              = errors.New("forbidden")
	ErrRateLimited            = errors.New("rate limit exceeded")
)
