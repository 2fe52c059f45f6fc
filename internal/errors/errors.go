package errors

import (
	"fmt"
	"net/http"
)

// APIError is a transport-level failure: a fixed HTTP status and a stable
// machine-readable code. Domain failures use AppError instead.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.ErrorCode
	}
	return e.Message
}

// ProblemType is the RFC 7807 type URI implied by the status code
func (e *APIError) ProblemType() string {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return TypeValidation
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusConflict:
		return TypeConflict
	case http.StatusRequestEntityTooLarge:
		return TypePayloadTooLarge
	case http.StatusUnsupportedMediaType:
		return TypeUnsupportedMedia
	case http.StatusTooManyRequests:
		return TypeRateLimit
	case http.StatusGatewayTimeout:
		return TypeTimeout
	default:
		return TypeInternal
	}
}

// ValidationError is one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the details payload of a multi-field validation failure
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message, Details: details}
}

// Session lifecycle and transport errors
var (
	ErrSessionNotFound   = New(http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
	ErrNoTableLoaded     = New(http.StatusConflict, "NO_TABLE_LOADED", "No file has been uploaded to this session")
	ErrNoResult          = New(http.StatusConflict, "NO_RESULT", "No revision has been applied in this session")
	ErrPayloadTooLarge   = New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Uploaded file exceeds the maximum allowed size")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
)

// InvalidRequestWithError wraps a body decoding failure
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// ErrValidation rejects a single field
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed",
		ValidationError{Field: field, Message: message})
}

// NewValidationErrors rejects several fields at once
func NewValidationErrors(errs []ValidationError) *APIError {
	msg := "Request validation failed"
	if len(errs) == 1 {
		msg = fmt.Sprintf("Request validation failed: %s", errs[0].Message)
	}
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", msg, ValidationErrors{Errors: errs})
}
