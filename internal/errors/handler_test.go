package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allocator/internal/shared/testutil"
)

func TestNewErrorHandler(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	handler := NewErrorHandler(logger, true)

	assert.NotNil(t, handler)
	assert.True(t, handler.includeStack)
	assert.NotNil(t, handler.logger)
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantType      string
		wantTitle     string
		wantErrorCode string
	}{
		{
			name:       "nil error writes nothing",
			err:        nil,
			wantStatus: http.StatusOK,
		},
		{
			name:       "context deadline exceeded",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
			wantTitle:  "Request Timeout",
		},
		{
			name:          "unreadable format",
			err:           NewUnreadableFormatError("no encoding and delimiter combination produced two or more columns", nil),
			wantStatus:    http.StatusUnprocessableEntity,
			wantType:      TypeUnreadableFormat,
			wantTitle:     "Unreadable File Format",
			wantErrorCode: "UNREADABLE_FORMAT",
		},
		{
			name:          "invalid parameter wrapped",
			err:           fmt.Errorf("apply: %w", NewInvalidParameterError("percent must be greater than zero")),
			wantStatus:    http.StatusBadRequest,
			wantType:      TypeInvalidParameter,
			wantTitle:     "Invalid Parameter",
			wantErrorCode: "INVALID_PARAMETER",
		},
		{
			name:          "no numeric columns",
			err:           NewNoNumericColumnsError("uploaded table has no numeric columns"),
			wantStatus:    http.StatusUnprocessableEntity,
			wantType:      TypeNoNumericColumns,
			wantTitle:     "No Numeric Columns",
			wantErrorCode: "NO_NUMERIC_COLUMNS",
		},
		{
			name:          "api error session not found",
			err:           ErrSessionNotFound,
			wantStatus:    http.StatusNotFound,
			wantType:      TypeNotFound,
			wantTitle:     "Not Found",
			wantErrorCode: "SESSION_NOT_FOUND",
		},
		{
			name:          "api error no table loaded",
			err:           ErrNoTableLoaded,
			wantStatus:    http.StatusConflict,
			wantType:      TypeConflict,
			wantTitle:     "Conflict",
			wantErrorCode: "NO_TABLE_LOADED",
		},
		{
			name:          "transport error typed by status",
			err:           New(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Unsupported content type"),
			wantStatus:    http.StatusUnsupportedMediaType,
			wantType:      TypeUnsupportedMedia,
			wantTitle:     "Unsupported Media Type",
			wantErrorCode: "UNSUPPORTED_MEDIA_TYPE",
		},
		{
			name:       "generic error",
			err:        fmt.Errorf("something went wrong"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
			wantTitle:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logHandler := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, false)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil)

			handler.HandleError(w, r, tt.err)

			if tt.err == nil {
				assert.Equal(t, 0, w.Body.Len())
				assert.Equal(t, 0, logHandler.Count())
				return
			}

			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))

			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, tt.wantTitle, body["title"])
			assert.EqualValues(t, tt.wantStatus, body["status"])
			assert.Equal(t, "/api/sessions/abc", body["instance"])
			assert.Contains(t, body, "trace_id")
			if tt.wantErrorCode != "" {
				assert.Equal(t, tt.wantErrorCode, body["error_code"])
			}

			assert.True(t, logHandler.ContainsMessage("request failed"))
		})
	}
}

func TestProblem_AppErrorContextBecomesDetails(t *testing.T) {
	err := NewInvalidParameterError("a sheet must be selected").WithContext("sheets", []string{"Sales", "Stores"})

	problem := Problem(err, "/api/sessions/abc/upload")

	assert.Equal(t, http.StatusBadRequest, problem.Status)
	details, ok := problem.Extensions["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []string{"Sales", "Stores"}, details["sheets"])
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	tests := []struct {
		name         string
		includeStack bool
	}{
		{name: "production hides panic value", includeStack: false},
		{name: "development exposes panic value", includeStack: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logHandler := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, tt.includeStack)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/boom", nil)

			handler.HandlePanic(w, r, "index out of range")

			assert.Equal(t, http.StatusInternalServerError, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, TypeInternal, body["type"])

			_, hasPanic := body["panic"]
			assert.Equal(t, tt.includeStack, hasPanic)
			testutil.AssertLogContains(t, logHandler, slog.LevelError, "panic recovered")
		})
	}
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	w := httptest.NewRecorder()
	handler.NotFound(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), TypeNotFound)

	w = httptest.NewRecorder()
	handler.MethodNotAllowed(w, httptest.NewRequest(http.MethodPatch, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), TypeMethodNotAllowed)
	assert.Contains(t, w.Body.String(), "Method PATCH is not allowed")
}
