package mcp

import (
	"errors"
	"fmt"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/domain/listing"
)

const (
	CodeListingNotFound    = "LISTING_NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotRepostable      = "NOT_REPOSTABLE"
	CodeSaveFailed         = "SAVE_FAILED"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var verr *listing.ValidationError
	if errors.As(err, &verr) {
		return &APIError{Code: CodeInvalidInput, Message: "listing input is invalid", Details: verr.Fields, RecoveryHint: "Fix the listed fields and resubmit"}
	}

	switch {
	case errors.Is(err, listing.ErrListingNotFound):
		return &APIError{Code: CodeListingNotFound, Message: "listing not found", RecoveryHint: "Call list_listings to find current ids"}
	case errors.Is(err, listing.ErrInvalidInput), errors.Is(err, activity.ErrInvalidInput):
		return &APIError{Code: CodeInvalidInput, Message: err.Error()}
	case errors.Is(err, listing.ErrNotRepostable):
		return &APIError{Code: CodeNotRepostable, Message: "only expired listings can be reposted", RecoveryHint: "Use the expired_ids from list_listings"}
	case errors.Is(err, listing.ErrSaveFailed):
		return &APIError{Code: CodeSaveFailed, Message: "listings could not be saved; nothing was changed", RecoveryHint: "Delete closed listings or reduce photos, then retry"}
	case errors.Is(err, listing.ErrStorageUnavailable):
		return &APIError{Code: CodeStorageUnavailable, Message: "listing storage could not be read; an empty result does not mean there are no listings", RecoveryHint: "Retry later or restore the slot"}
	default:
		return nil
	}
}
