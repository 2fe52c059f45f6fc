package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Problem type URIs
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeMethodNotAllowed = "/errors/method-not-allowed"
	TypeRateLimit        = "/errors/rate-limit"
	TypeInternal         = "/errors/internal"
	TypeTimeout          = "/errors/timeout"
	TypeConflict         = "/errors/conflict"
	TypePayloadTooLarge  = "/errors/payload-too-large"
	TypeUnsupportedMedia = "/errors/unsupported-media-type"

	TypeUnreadableFormat = "/errors/unreadable-format"
	TypeInvalidParameter = "/errors/invalid-parameter"
	TypeNoNumericColumns = "/errors/no-numeric-columns"
)

// appErrorStatus maps each domain error type to its status, problem type and title
var appErrorStatus = map[ErrorType]struct {
	status int
	typ    string
	title  string
}{
	ErrTypeUnreadableFormat: {http.StatusUnprocessableEntity, TypeUnreadableFormat, "Unreadable File Format"},
	ErrTypeInvalidParameter: {http.StatusBadRequest, TypeInvalidParameter, "Invalid Parameter"},
	ErrTypeNoNumericColumns: {http.StatusUnprocessableEntity, TypeNoNumericColumns, "No Numeric Columns"},
}

// ErrorHandler renders every failure as application/problem+json
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a handler. includeStack adds stack traces to 5xx
// problems and is meant for development.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and responds with its problem form
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	problem := Problem(err, r.URL.Path)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", string(debug.Stack()))
	}
	h.respond(w, r, problem)
}

// Problem converts err to problem details. instance need not be an HTTP path.
func Problem(err error, instance string) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request took too long to process and was cancelled", instance)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		problem := NewProblemDetails(apiErr.StatusCode, apiErr.ProblemType(),
			http.StatusText(apiErr.StatusCode), apiErr.Message, instance).
			WithExtension("error_code", apiErr.ErrorCode)
		if apiErr.Details != nil {
			problem.WithExtension("details", apiErr.Details)
		}
		return problem
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if m, ok := appErrorStatus[appErr.Type]; ok {
			detail := appErr.Message
			if appErr.Cause != nil {
				detail = fmt.Sprintf("%s: %v", appErr.Message, appErr.Cause)
			}
			problem := NewProblemDetails(m.status, m.typ, m.title, detail, instance).
				WithExtension("error_code", string(appErr.Type))
			if len(appErr.Context) > 0 {
				problem.WithExtension("details", appErr.Context)
			}
			return problem
		}
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"An unexpected error occurred while processing your request", instance)
}

// HandlePanic responds 500 for a value recovered from a handler panic
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	stack := string(debug.Stack())
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", stack),
	)

	problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"An unexpected error occurred", r.URL.Path)
	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", stack)
	}
	h.respond(w, r, problem)
}

// NotFound is the router's fallback for unknown paths
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"The requested resource was not found", r.URL.Path))
}

// MethodNotAllowed is the router's fallback for known paths with the wrong verb
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeMethodNotAllowed, "Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method), r.URL.Path))
}

// respond stamps the request ID as trace_id and renders the problem
func (h *ErrorHandler) respond(w http.ResponseWriter, r *http.Request, problem *ProblemDetails) {
	problem.WithExtension("trace_id", middleware.GetReqID(r.Context()))
	render.Render(w, r, problem)
}
