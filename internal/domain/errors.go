package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
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

// Common domain error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyExists   = "ALREADY_EXISTS"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeQuotaExceeded   = "QUOTA_EXCEEDED"
	ErrCodeUpstreamFailure = "UPSTREAM_FAILURE"
	ErrCodeStorageFailure  = "STORAGE_FAILURE"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingQueryText     = NewDomainError(ErrCodeValidation, "query_text is required")
	ErrInvalidMinSimilarity = NewDomainError(ErrCodeValidation, "min_similarity must be between 0 and 1")
	ErrInvalidResultCount   = NewDomainError(ErrCodeValidation, "n_results must be at least 1")
	ErrInvalidTemperature   = NewDomainError(ErrCodeValidation, "temperature must be between 0 and 2")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrTenantNotFound   = NewDomainError(ErrCodeNotFound, "tenant not found")
	ErrAPIKeyNotFound   = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrTenantAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "tenant already exists")
	ErrAPIKeyAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrAdminRequired = NewDomainError(ErrCodeForbidden, "admin api key required")
)

// Upstream / storage errors
var (
	ErrEmbeddingFailed      = NewDomainError(ErrCodeUpstreamFailure, "embedding service call failed")
	ErrGenerationFailed     = NewDomainError(ErrCodeUpstreamFailure, "generative service call failed")
	ErrStorageOperationFail = NewDomainError(ErrCodeStorageFailure, "storage operation failed")
	ErrWrongDistanceMetric  = NewDomainError(ErrCodeStorageFailure, "chunk collection exists with a different distance metric")
)
