package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryPrecondition represents caller-ordering bugs (e.g. users before schools)
	CategoryPrecondition ErrorCategory = "precondition"
	// CategoryValidation represents invalid arguments to a sampling or generation call
	CategoryValidation ErrorCategory = "validation"
	// CategoryConfig represents invalid or unreadable configuration
	CategoryConfig ErrorCategory = "config"
	// CategoryStorage represents failures of an external sink (database, cache, bucket)
	CategoryStorage ErrorCategory = "storage"
	// CategoryIO represents local filesystem failures
	CategoryIO ErrorCategory = "io"
	// CategoryInternal represents anything not categorized above
	CategoryInternal ErrorCategory = "internal"
)

// Error codes
const (
	CodePrecondition     = "PRECONDITION_FAILED"
	CodeInvalidWeights   = "INVALID_WEIGHTS"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeConfig           = "CONFIG_ERROR"
	CodeStorage          = "STORAGE_ERROR"
	CodeIO               = "IO_ERROR"
	CodeValidationFailed = "DATASET_VALIDATION_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrInvalidWeights is returned by weighted sampling when the weight vector is unusable.
// Match with errors.Is; any CategorizedError carrying CodeInvalidWeights matches.
var ErrInvalidWeights = &CategorizedError{
	Category: CategoryValidation,
	Code:     CodeInvalidWeights,
	Message:  "invalid weights",
}

// CategorizedError represents an error with a category and a stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so sentinels compare equal to detailed instances
func (e *CategorizedError) Is(target error) bool {
	t, ok := target.(*CategorizedError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Generation Errors

// NewPreconditionError creates an error for a stage invoked before its inputs exist
func NewPreconditionError(stage string, requirement string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryPrecondition,
		Code:     CodePrecondition,
		Message:  fmt.Sprintf("%s: %s", stage, requirement),
		Details: map[string]interface{}{
			"stage":       stage,
			"requirement": requirement,
		},
	}
}

// NewInvalidWeightsError creates an invalid weights error
func NewInvalidWeightsError(reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     CodeInvalidWeights,
		Message:  fmt.Sprintf("invalid weights: %s", reason),
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     CodeInvalidParameter,
		Message:  fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewDatasetValidationError creates an error for a generated dataset that broke an invariant
func NewDatasetValidationError(failedChecks []string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     CodeValidationFailed,
		Message:  fmt.Sprintf("dataset failed %d consistency checks", len(failedChecks)),
		Details: map[string]interface{}{
			"checks": failedChecks,
		},
	}
}

// Configuration Errors

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConfig,
		Code:     CodeConfig,
		Message:  message,
		Cause:    cause,
	}
}

// Sink Errors

// NewStorageError creates a storage error for an external sink operation
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryStorage,
		Code:     CodeStorage,
		Message:  fmt.Sprintf("storage error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewIOError creates a local filesystem error
func NewIOError(operation string, path string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryIO,
		Code:     CodeIO,
		Message:  fmt.Sprintf("%s %s", operation, path),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
			"path":      path,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryInternal,
		Code:     CodeInternal,
		Message:  message,
		Cause:    cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized (possibly wrapped), return it
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Category == CategoryStorage
}

// IsFatal determines if an error must abort the run without any retry
func IsFatal(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryPrecondition, CategoryConfig, CategoryValidation:
		return true
	default:
		return false
	}
}
