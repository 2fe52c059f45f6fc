package http

import (
	"context"

	"allocator/internal/services"
	api "allocator/pkg/contracts/api/v1"
)

// AllocationServiceInterface defines the session operations used by SessionHandler
type AllocationServiceInterface interface {
	CreateSession(ctx context.Context) (api.SessionCreated, error)
	GetSession(ctx context.Context, id string) (api.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error

	Upload(ctx context.Context, id string, up services.Upload) (api.UploadResponse, error)
	SelectSheet(ctx context.Context, id, sheet string) (api.UploadResponse, error)
	Columns(ctx context.Context, id string) ([]api.ColumnInfo, error)

	Filters(ctx context.Context, id string) (api.FilterState, error)
	SetSelection(ctx context.Context, id, column string, values []string) (api.FilterState, error)
	ClearSelections(ctx context.Context, id string) (api.FilterState, error)

	Revise(ctx context.Context, id string, in services.RevisionInput) (api.RevisionResponse, error)
	Export(ctx context.Context, id, format string) (*services.Artifact, error)
}

var _ AllocationServiceInterface = (*services.AllocationService)(nil)
