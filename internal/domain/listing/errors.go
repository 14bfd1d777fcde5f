package listing

import (
	"errors"
	"strings"
)

var (
	// ErrListingNotFound indicates no listing has the requested id.
	ErrListingNotFound = errors.New("listing not found")
	// ErrInvalidInput indicates listing input or a collection failed validation.
	ErrInvalidInput = errors.New("invalid listing input")
	// ErrNotRepostable indicates a repost of a listing that is not expired.
	ErrNotRepostable = errors.New("listing is not expired")
	// ErrSaveFailed indicates the collection could not be written; the slot keeps its previous content.
	ErrSaveFailed = errors.New("listings could not be saved")
	// ErrStorageUnavailable indicates the listing slot could not be read even after recovery.
	// The accompanying empty collection does not mean that no listings exist.
	ErrStorageUnavailable = errors.New("listing storage unavailable")
)

// FieldError describes one rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field in form order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrInvalidInput.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
