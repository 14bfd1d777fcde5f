package repository

import "errors"

var (
	// ErrNotFound is returned when a requested slot or entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned when a write would grow the store past its byte quota
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)
