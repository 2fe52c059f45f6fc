// Package http implements the HTTP handlers of the allocation revise service.
// Handlers stay thin: they parse and validate requests, call the allocation
// service and render its results or errors.
//
// # Routes
//
// SessionHandler serves everything under /api/sessions:
//
//	POST   /                        create a session
//	GET    /{id}                    session summary
//	DELETE /{id}                    discard a session
//	POST   /{id}/upload             multipart "file" plus optional "sheet"
//	POST   /{id}/sheet              pick a sheet of the pending workbook
//	GET    /{id}/columns            columns with their kinds
//	GET    /{id}/filters            cascading filter state
//	PUT    /{id}/filters/{column}   replace one selection
//	DELETE /{id}/filters            clear every selection
//	POST   /{id}/revisions          apply a revision
//	GET    /{id}/download           last result as csv or xlsx
//
// HealthHandler serves /api/health, /api/health/ready, /api/health/live,
// /api/health/stats and /api/version.
//
// # Error Handling
//
// Every failure is written by errors.ErrorHandler as RFC 7807 problem details:
//
//	{
//	    "type": "/errors/invalid-parameter",
//	    "title": "Invalid Parameter",
//	    "status": 400,
//	    "detail": "target column \"STORE\" is not numeric",
//	    "instance": "/api/sessions/4f0c.../revisions",
//	    "error_code": "INVALID_PARAMETER",
//	    "trace_id": "host/abc-000001"
//	}
//
// # Testing
//
// Handlers are tested with httptest against a testify mock of
// AllocationServiceInterface.
package http
