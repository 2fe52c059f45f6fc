package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name: "error without cause",
			appError: &AppError{
				Type:    ErrTypeInvalidParameter,
				Message: "percent must not be negative",
			},
			wantMessage: "[INVALID_PARAMETER] percent must not be negative",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeUnreadableFormat,
				Message: "cannot open workbook",
				Cause:   fmt.Errorf("zip: not a valid zip file"),
			},
			wantMessage: "[UNREADABLE_FORMAT] cannot open workbook: zip: not a valid zip file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"unreadable matches its sentinel", NewUnreadableFormatError("bad", nil), ErrUnreadableFormat, true},
		{"invalid parameter matches its sentinel", NewInvalidParameterError("percent %v", -1), ErrInvalidParameter, true},
		{"no numeric matches its sentinel", NewNoNumericColumnsError("none"), ErrNoNumericColumns, true},
		{"type mismatch", NewInvalidParameterError("x"), ErrUnreadableFormat, false},
		{"wrapped app error", fmt.Errorf("ingest: %w", NewUnreadableFormatError("bad", nil)), ErrUnreadableFormat, true},
		{"unknown type has no sentinel", NewAppError("OTHER", "x", nil), ErrInvalidParameter, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestAppError_UnwrapCause(t *testing.T) {
	cause := errors.New("utf-8 decode failed")
	err := NewUnreadableFormatError("no usable encoding", cause)

	assert.True(t, errors.Is(err, cause))

	var appErr *AppError
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &appErr))
	assert.Equal(t, ErrTypeUnreadableFormat, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewInvalidParameterError("sheet is required").
		WithContext("sheets", []string{"Sheet1", "Stores"})

	assert.Equal(t, []string{"Sheet1", "Stores"}, err.Context["sheets"])

	empty := &AppError{Type: ErrTypeNoNumericColumns}
	empty.WithContext("k", 1)
	assert.Equal(t, 1, empty.Context["k"])
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrTypeNoNumericColumns, TypeOf(fmt.Errorf("x: %w", NewNoNumericColumnsError("none"))))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}
