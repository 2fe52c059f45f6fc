// Package api contains the HTTP contract of the allocation revise service.
// Version v1 is the current API version.
package api

import "time"

// SelectSheetRequest picks the sheet of a pending workbook
type SelectSheetRequest struct {
	Sheet string `json:"sheet" validate:"required"`
}

// SelectionRequest sets the selected values of one filter column
type SelectionRequest struct {
	Values []string `json:"values" validate:"omitempty,dive,max=1024"`
}

// RevisionRequest applies a percentage adjustment to the filtered rows.
// Targets may be omitted; the service then falls back to the profile defaults
// or rejects the request.
type RevisionRequest struct {
	Percent         *float64 `json:"percent" validate:"required,gte=0"`
	Mode            string   `json:"mode" validate:"required,revision_mode"`
	Targets         []string `json:"targets,omitempty" validate:"omitempty,dive,column_name"`
	ApplyAllNumeric bool     `json:"apply_all_numeric"`
	PreviewRows     int      `json:"preview_rows,omitempty" validate:"omitempty,min=1,max=1000"`
}

// SessionCreated is returned when a session is opened
type SessionCreated struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ColumnInfo describes one column of the loaded table
type ColumnInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// FileInfo describes the loaded file
type FileInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Encoding  string `json:"encoding,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	Sheet     string `json:"sheet,omitempty"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
}

// SessionSummary is the state of one session
type SessionSummary struct {
	ID           string              `json:"id"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
	File         *FileInfo           `json:"file,omitempty"`
	PendingSheet []string            `json:"pending_sheets,omitempty"`
	Columns      []ColumnInfo        `json:"columns,omitempty"`
	Selections   map[string][]string `json:"selections"`
	MatchedRows  int                 `json:"matched_rows"`
	HasResult    bool                `json:"has_result"`
}

// Upload statuses
const (
	UploadStatusLoaded        = "loaded"
	UploadStatusSheetRequired = "sheet_required"
)

// UploadResponse reports the outcome of an upload or sheet selection
type UploadResponse struct {
	Status  string       `json:"status"`
	Sheets  []string     `json:"sheets,omitempty"`
	File    *FileInfo    `json:"file,omitempty"`
	Columns []ColumnInfo `json:"columns,omitempty"`
}

// FilterState is the cascading filter view of a session
type FilterState struct {
	Options     map[string][]string `json:"options"`
	Selections  map[string][]string `json:"selections"`
	MatchedRows int                 `json:"matched_rows"`
	TotalRows   int                 `json:"total_rows"`
}

// RevisionSummary mirrors the engine summary for clients
type RevisionSummary struct {
	Mode        string   `json:"mode"`
	Percent     float64  `json:"percent"`
	Multiplier  float64  `json:"multiplier"`
	Targets     []string `json:"targets"`
	Columns     []string `json:"columns"`
	RowsRevised int      `json:"rows_revised"`
	RowsTotal   int      `json:"rows_total"`
}

// RevisionResponse is returned after a revision is applied
type RevisionResponse struct {
	Summary  RevisionSummary `json:"summary"`
	Header   []string        `json:"header"`
	Preview  [][]string      `json:"preview"`
	FileName string          `json:"file_name"`
}
