package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "allocator/internal/errors"
	"allocator/internal/filter"
	"allocator/internal/revision"
)

func TestState_OnFileChanged(t *testing.T) {
	s := NewState()
	s.GetOrInit([]string{"STORE", "DEPARTMENT"})
	require.NoError(t, s.SetSelection("STORE", []string{"S1"}))
	s.Summary = &revision.Summary{RowsRevised: 3}

	assert.True(t, s.OnFileChanged("file-a"))
	assert.Equal(t, "file-a", s.Identity())
	assert.Empty(t, s.Selections())
	assert.Nil(t, s.Summary)

	s.GetOrInit([]string{"STORE"})
	require.NoError(t, s.SetSelection("STORE", []string{"S2"}))

	assert.False(t, s.OnFileChanged("file-a"))
	assert.Equal(t, filter.Selection{"STORE": {"S2"}}, s.Selections())

	assert.True(t, s.OnFileChanged("file-b"))
	assert.Empty(t, s.Selections())
}

func TestState_GetOrInit(t *testing.T) {
	s := NewState()

	first := s.GetOrInit([]string{"STORE", "DEPARTMENT"})
	assert.Equal(t, filter.Selection{"STORE": {}, "DEPARTMENT": {}}, first)

	require.NoError(t, s.SetSelection("STORE", []string{"S1"}))
	again := s.GetOrInit([]string{"STORE", "DEPARTMENT"})
	assert.Equal(t, filter.Selection{"STORE": {"S1"}, "DEPARTMENT": {}}, again)
	assert.Equal(t, again, s.GetOrInit([]string{"STORE", "DEPARTMENT"}))

	narrowed := s.GetOrInit([]string{"STORE", "CONCEPT"})
	assert.Equal(t, filter.Selection{"STORE": {"S1"}, "CONCEPT": {}}, narrowed)

	// The returned selection is a copy.
	narrowed["STORE"][0] = "changed"
	assert.Equal(t, []string{"S1"}, s.Selections()["STORE"])
}

func TestState_SetSelection(t *testing.T) {
	s := NewState()
	s.GetOrInit([]string{"STORE"})

	require.NoError(t, s.SetSelection("STORE", []string{"S2", "S1", "S2"}))
	assert.Equal(t, []string{"S2", "S1"}, s.Selections()["STORE"])

	err := s.SetSelection("REGION", []string{"N"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
	assert.Equal(t, []string{"S2", "S1"}, s.Selections()["STORE"])
}

func TestState_ClearSelections(t *testing.T) {
	s := NewState()
	s.GetOrInit([]string{"STORE", "CONCEPT"})
	require.NoError(t, s.SetSelection("STORE", []string{"S1"}))
	require.NoError(t, s.SetSelection("CONCEPT", []string{"Core"}))

	s.ClearSelections()

	assert.Equal(t, filter.Selection{"STORE": {}, "CONCEPT": {}}, s.Selections())
	assert.False(t, s.Selections().Active())
}
