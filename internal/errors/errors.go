package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	ErrorTypeConfig      ErrorType = "CONFIG_ERROR"
	ErrorTypeResource    ErrorType = "RESOURCE_ERROR"
	ErrorTypeIO          ErrorType = "IO_ERROR"
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
	ErrorTypeServiceDown ErrorType = "SERVICE_DOWN"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitUsage   = 1
	ExitRuntime = 2
	ExitUnknown = 3
)

// AppError represents an application error with additional context.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCode adds an error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// New creates a new AppError.
func New(errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error.
func Wrap(err error, errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Pipeline error constructors.

// NewConfigError creates a configuration error. It is reported before any
// pipeline stage starts.
func NewConfigError(message string) *AppError {
	return New(ErrorTypeConfig, message, http.StatusBadRequest)
}

// WrapConfigError wraps an error raised while loading or validating configuration.
func WrapConfigError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeConfig, message, http.StatusBadRequest)
}

// WrapResourceError wraps a socket bind or file open failure.
func WrapResourceError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeResource, message, http.StatusServiceUnavailable)
}

// WrapIOError wraps a read or write failure on an already acquired resource.
func WrapIOError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeIO, message, http.StatusInternalServerError)
}

// HTTP error constructors used by the admin server.

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewInternalError creates an internal server error.
func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// WrapInternalError wraps an error as internal server error.
func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, http.StatusInternalServerError)
}

// NewServiceDownError creates a service down error.
func NewServiceDownError(service string) *AppError {
	return New(ErrorTypeServiceDown, fmt.Sprintf("%s service is currently unavailable", service), http.StatusServiceUnavailable)
}

// IsAppError checks if an error is, or wraps, an AppError.
func IsAppError(err error) bool {
	_, ok := GetAppError(err)
	return ok
}

// GetAppError extracts the first AppError in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Type == errType
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	appErr, ok := GetAppError(err)
	if !ok {
		return ExitRuntime
	}
	switch appErr.Type {
	case ErrorTypeConfig, ErrorTypeValidation:
		return ExitUsage
	default:
		return ExitRuntime
	}
}
