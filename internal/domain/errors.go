package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code and message so wrapped copies still compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewRetryableError creates a DomainError the caller may retry.
func NewRetryableError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewValidationError is a shorthand for a VALIDATION_ERROR with a formatted message.
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ErrorCode returns the code of the first DomainError in err's chain, or "".
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether err carries a retryable DomainError.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeIngestion         = "INGESTION_ERROR"
	ErrCodeRetrieval         = "RETRIEVAL_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeIndexIncompatible = "INDEX_INCOMPATIBLE"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyDocument        = NewDomainError(ErrCodeValidation, "document has no extractable text")
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question is required")
	ErrQuestionTooLong      = NewDomainError(ErrCodeValidation, "question exceeds maximum length")
)

// Not found errors
var (
	ErrDocumentNotFound       = NewDomainError(ErrCodeNotFound, "document not found")
	ErrSourceNotFound         = NewDomainError(ErrCodeNotFound, "document source not found")
	ErrReplayRunNotFound      = NewDomainError(ErrCodeNotFound, "replay run not found")
	ErrIndexSignatureNotFound = NewDomainError(ErrCodeNotFound, "index signature not found")
	ErrOrganizationNotFound   = NewDomainError(ErrCodeNotFound, "organization not found")
	ErrAPIKeyNotFound         = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrOrganizationAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "organization already exists")
	ErrAPIKeyAlreadyExists       = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Write-path errors
var (
	ErrVersionConflict   = NewDomainError(ErrCodeConflict, "document was modified concurrently")
	ErrDocumentOwnership = NewDomainError(ErrCodeConflict, "document id belongs to another organization")
	ErrIndexIncompatible = NewDomainError(ErrCodeIndexIncompatible, "chunking configuration differs from the indexed corpus; run a forced replay after clearing the index")
	ErrSignatureChanged  = NewDomainError(ErrCodeConflict, "index signature changed during ingestion")
)

// Authorization errors
var (
	ErrAPIKeyRevoked    = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey    = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrIngestNotAllowed = NewDomainError(ErrCodeForbidden, "api key is not allowed to ingest")
)

// Infrastructure errors
var (
	ErrEmbeddingUnavailable = NewRetryableError(ErrCodeIngestion, "embedding backend unavailable", nil)
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
