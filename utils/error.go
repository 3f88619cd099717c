package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Receipt pipeline error taxonomy. Intake-time errors abort the whole call;
// extraction-time errors leave the receipt row in place for later correction.
var (
	ErrQuotaExceeded       = errors.New("monthly quota exceeded")
	ErrUnsupportedMedia    = errors.New("unsupported media type")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrStorageError        = errors.New("storage error")
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrExtractionTimeout   = errors.New("extraction timed out")
	ErrNotFoundOrForbidden = errors.New("not found or forbidden")
)

// ValidationError is field-scoped: a bad extracted or corrected field is
// dropped, never fatal to the surrounding record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
