package store

import "errors"

var (
	ErrEntryNotFound          = errors.New("queue entry not found")
	ErrIllegalTransition      = errors.New("illegal transition")
	ErrValidationFailed       = errors.New("validation failed")
	ErrSessionNotFound        = errors.New("session not found")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
