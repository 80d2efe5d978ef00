package domain

import "errors"

// Sentinel errors shared by the grove packages.
// Use errors.Is to check: errors.Is(err, domain.ErrNotFound)
var (
	// ErrNotFound covers missing, deleted and foreign-owned records alike.
	ErrNotFound      = errors.New("grove: not found")
	ErrValidation    = errors.New("grove: validation failed")
	ErrInvalidRating = errors.New("grove: invalid rating")
	ErrPersistence   = errors.New("grove: persistence failure")
	ErrConflict      = errors.New("grove: concurrent update")
)
