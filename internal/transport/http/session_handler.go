package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	apierrors "allocator/internal/errors"
	"allocator/internal/exporter"
	appmiddleware "allocator/internal/middleware"
	"allocator/internal/services"
	api "allocator/pkg/contracts/api/v1"
)

// multipartOverhead is the slack allowed on top of the file size for
// boundaries and the other form fields
const multipartOverhead = 64 << 10

// multipartMemory is how much of an upload is kept in memory before spilling to disk
const multipartMemory = 8 << 20

// SessionHandler handles session, upload, filter and revision requests
type SessionHandler struct {
	service      AllocationServiceInterface
	validator    *appmiddleware.ValidationMiddleware
	query        *appmiddleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	maxUpload    int64
	logger       *slog.Logger
}

// NewSessionHandler creates a session handler. maxUpload bounds the uploaded
// file size, zero disables the transport limit.
func NewSessionHandler(
	service AllocationServiceInterface,
	validator *appmiddleware.ValidationMiddleware,
	errorHandler *apierrors.ErrorHandler,
	maxUpload int64,
	logger *slog.Logger,
) *SessionHandler {
	return &SessionHandler{
		service:      service,
		validator:    validator,
		query:        appmiddleware.NewQueryParamValidator(errorHandler),
		errorHandler: errorHandler,
		maxUpload:    maxUpload,
		logger:       logger.With(slog.String("component", "session_handler")),
	}
}

// Routes returns the session routes, mounted under /api/sessions
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", h.CreateSession)

	jsonBody := chi.Chain(
		appmiddleware.ContentTypeValidator(h.errorHandler, "application/json"),
		h.validator.ValidateRequest,
	)
	formBody := appmiddleware.ContentTypeValidator(h.errorHandler, "multipart/form-data")

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Use(h.SessionCtx)

		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)

		r.With(formBody).Post("/upload", h.Upload)
		r.With(jsonBody...).Post("/sheet", h.SelectSheet)
		r.Get("/columns", h.GetColumns)

		r.Get("/filters", h.GetFilters)
		r.Delete("/filters", h.ClearFilters)
		r.With(jsonBody...).Put("/filters/{column}", h.SetFilter)

		r.With(jsonBody...).Post("/revisions", h.Revise)
		r.Get("/download", h.Download)
	})

	return r
}

// SessionCtx rejects malformed session identifiers
func (h *SessionHandler) SessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := uuid.Parse(chi.URLParam(r, "sessionID")); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrSessionNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// CreateSession handles POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.CreateSession(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+created.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

// GetSession handles GET /api/sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSession(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// DeleteSession handles DELETE /api/sessions/{sessionID}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.Context(), sessionID(r)); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upload handles POST /api/sessions/{sessionID}/upload
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			h.errorHandler.HandleError(w, r, apierrors.ErrPayloadTooLarge)
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "file is required"))
		return
	}
	defer file.Close()

	h.logger.InfoContext(r.Context(), "upload received",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("session_id", sessionID(r)),
		slog.String("file", header.Filename),
		slog.Int64("size", header.Size))

	resp, err := h.service.Upload(r.Context(), sessionID(r), services.Upload{
		Name:  header.Filename,
		Size:  header.Size,
		Body:  file,
		Sheet: r.FormValue("sheet"),
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// SelectSheet handles POST /api/sessions/{sessionID}/sheet
func (h *SessionHandler) SelectSheet(w http.ResponseWriter, r *http.Request) {
	var req api.SelectSheetRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.service.SelectSheet(r.Context(), sessionID(r), req.Sheet)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// GetColumns handles GET /api/sessions/{sessionID}/columns
func (h *SessionHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := h.service.Columns(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"columns": cols,
		"count":   len(cols),
	})
}

// GetFilters handles GET /api/sessions/{sessionID}/filters
func (h *SessionHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.Filters(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, state)
}

// SetFilter handles PUT /api/sessions/{sessionID}/filters/{column}
func (h *SessionHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	column, err := url.PathUnescape(chi.URLParam(r, "column"))
	if err != nil || column == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("column", "column must be a valid path segment"))
		return
	}

	var req api.SelectionRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	state, err := h.service.SetSelection(r.Context(), sessionID(r), column, req.Values)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, state)
}

// ClearFilters handles DELETE /api/sessions/{sessionID}/filters
func (h *SessionHandler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.ClearSelections(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, state)
}

// Revise handles POST /api/sessions/{sessionID}/revisions
func (h *SessionHandler) Revise(w http.ResponseWriter, r *http.Request) {
	var req api.RevisionRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.service.Revise(r.Context(), sessionID(r), services.RevisionInput{
		Percent:         *req.Percent,
		Mode:            req.Mode,
		Targets:         req.Targets,
		ApplyAllNumeric: req.ApplyAllNumeric,
		PreviewRows:     req.PreviewRows,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Download handles GET /api/sessions/{sessionID}/download
func (h *SessionHandler) Download(w http.ResponseWriter, r *http.Request) {
	format, ok := h.query.ValidateEnum(w, r, "format", []string{exporter.FormatCSV, exporter.FormatXLSX}, "")
	if !ok {
		return
	}

	artifact, err := h.service.Export(r.Context(), sessionID(r), format)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		h.logger.WarnContext(r.Context(), "download interrupted",
			slog.String("session_id", sessionID(r)),
			slog.String("error", err.Error()))
	}
}
