package session

import (
	"time"

	apperrors "allocator/internal/errors"
	"allocator/internal/filter"
	"allocator/internal/ingest"
	"allocator/internal/revision"
	"allocator/internal/table"
)

// State is everything one user interaction cycle reads and writes.
// It is not safe for concurrent use; Session serializes access to it.
type State struct {
	identity   string
	selections filter.Selection

	FileName string
	Report   ingest.Report
	Table    *table.Table

	// Pending holds a workbook uploaded without a sheet
	Pending *ingest.Source

	Result    *table.Table
	Summary   *revision.Summary
	RevisedAt time.Time
}

// NewState returns an empty state with no file loaded
func NewState() *State {
	return &State{selections: filter.Selection{}}
}

// Identity returns the fingerprint of the loaded file, or "" when none is loaded
func (s *State) Identity() string { return s.identity }

// OnFileChanged records a new file identity. A different identity clears every
// selection and the previous revision; the same identity leaves state untouched.
// It reports whether the identity changed.
func (s *State) OnFileChanged(identity string) bool {
	if identity == s.identity {
		return false
	}
	s.identity = identity
	s.selections = filter.Selection{}
	s.Result = nil
	s.Summary = nil
	s.RevisedAt = time.Time{}
	return true
}

// GetOrInit reconciles selections with columns: columns without an entry get an
// empty one and entries for columns no longer present are dropped. Calling it
// again with the same columns changes nothing.
func (s *State) GetOrInit(columns []string) filter.Selection {
	keep := make(map[string]bool, len(columns))
	for _, c := range columns {
		keep[c] = true
		if _, ok := s.selections[c]; !ok {
			s.selections[c] = []string{}
		}
	}
	for c := range s.selections {
		if !keep[c] {
			delete(s.selections, c)
		}
	}
	return s.selections.Clone()
}

// Selections returns a copy of the current selections
func (s *State) Selections() filter.Selection {
	return s.selections.Clone()
}

// SetSelection replaces the selection of one tracked column. Duplicate values
// are collapsed, first occurrence wins.
func (s *State) SetSelection(column string, values []string) error {
	if _, ok := s.selections[column]; !ok {
		return apperrors.NewInvalidParameterError("column %q is not a filter column", column)
	}
	seen := make(map[string]bool, len(values))
	set := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		set = append(set, v)
	}
	s.selections[column] = set
	return nil
}

// ClearSelections empties every selection while keeping the tracked columns
func (s *State) ClearSelections() {
	for c := range s.selections {
		s.selections[c] = []string{}
	}
}
