package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeUnreadableFormat ErrorType = "UNREADABLE_FORMAT"
	ErrTypeInvalidParameter ErrorType = "INVALID_PARAMETER"
	ErrTypeNoNumericColumns ErrorType = "NO_NUMERIC_COLUMNS"
)

// Sentinels for errors.Is checks. An *AppError matches the sentinel of its Type.
var (
	ErrUnreadableFormat = errors.New("unreadable format")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNoNumericColumns = errors.New("no numeric columns")
)

var sentinels = map[ErrorType]error{
	ErrTypeUnreadableFormat: ErrUnreadableFormat,
	ErrTypeInvalidParameter: ErrInvalidParameter,
	ErrTypeNoNumericColumns: ErrNoNumericColumns,
}

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's type.
func (e *AppError) Is(target error) bool {
	s, ok := sentinels[e.Type]
	return ok && s == target
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewUnreadableFormatError is returned when no supported encoding, delimiter or
// sheet yields a usable table.
func NewUnreadableFormatError(message string, cause error) *AppError {
	return NewAppError(ErrTypeUnreadableFormat, message, cause)
}

// NewInvalidParameterError is returned for rejected user parameters.
func NewInvalidParameterError(format string, args ...interface{}) *AppError {
	return NewAppError(ErrTypeInvalidParameter, fmt.Sprintf(format, args...), nil)
}

// NewNoNumericColumnsError is returned when a table carries no numeric column.
func NewNoNumericColumnsError(message string) *AppError {
	return NewAppError(ErrTypeNoNumericColumns, message, nil)
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}
