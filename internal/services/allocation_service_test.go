package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"allocator/internal/config"
	apperrors "allocator/internal/errors"
	"allocator/internal/ingest"
	"allocator/internal/session"
	"allocator/internal/shared/testutil"
	"allocator/internal/validation"
	api "allocator/pkg/contracts/api/v1"
	"allocator/pkg/contracts/events"
)

// MockNotifier is a mock for the StateNotifier interface
type MockNotifier struct {
	mock.Mock
	mu sync.Mutex
}

func (m *MockNotifier) BroadcastToSession(sessionID string, msgType events.MessageType, data interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(sessionID, msgType, data)
}

type serviceFixture struct {
	svc      *AllocationService
	store    *session.Store
	notifier *MockNotifier
}

func newFixture(t *testing.T, mutate func(*config.Config)) serviceFixture {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return newFixtureWithLogger(logger, mutate)
}

func newFixtureWithLogger(logger *slog.Logger, mutate func(*config.Config)) serviceFixture {
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	store := session.NewStore(session.Options{TTL: cfg.Session.TTL, Max: cfg.Session.Max}, logger)
	notifier := &MockNotifier{}
	notifier.On("BroadcastToSession", mock.Anything, mock.Anything, mock.Anything).Return()

	svc := NewAllocationService(AllocationDeps{
		Store:    store,
		Ingestor: ingest.New(ingest.Options{MaxRows: cfg.Engine.MaxRows, MaxColumns: cfg.Engine.MaxColumns}, logger),
		Validator: validation.NewFileValidator(validation.UploadRules{
			MaxBytes:          cfg.Upload.MaxBytes,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
		}, logger),
		Engine:   cfg.Engine,
		Export:   cfg.Export,
		Notifier: notifier,
		Logger:   logger,
		Now:      func() time.Time { return time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC) },
	})
	return serviceFixture{svc: svc, store: store, notifier: notifier}
}

func csvUpload(body string) Upload {
	return Upload{Name: "sales.csv", Size: int64(len(body)), Body: strings.NewReader(body)}
}

func (f serviceFixture) loadedSession(t *testing.T) string {
	t.Helper()
	created, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)
	resp, err := f.svc.Upload(context.Background(), created.ID, csvUpload(testutil.SalesCSV(",")))
	require.NoError(t, err)
	require.Equal(t, api.UploadStatusLoaded, resp.Status)
	return created.ID
}

func TestAllocationService_UploadCSV(t *testing.T) {
	f := newFixture(t, nil)
	created, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)
	assert.True(t, created.ExpiresAt.After(time.Now()))

	resp, err := f.svc.Upload(context.Background(), created.ID, csvUpload(testutil.SalesCSV(";")))
	require.NoError(t, err)

	assert.Equal(t, api.UploadStatusLoaded, resp.Status)
	require.NotNil(t, resp.File)
	assert.Equal(t, ";", resp.File.Delimiter)
	assert.Equal(t, 5, resp.File.Rows)

	kinds := map[string]string{}
	for _, c := range resp.Columns {
		kinds[c.Name] = c.Kind
	}
	assert.Equal(t, "numeric", kinds["SL_Q"])
	assert.Equal(t, "numeric", kinds["SL_V"])
	assert.Equal(t, "categorical", kinds["STORE"])

	f.notifier.AssertCalled(t, "BroadcastToSession", created.ID, events.MessageTypeFilterState, mock.Anything)
}

func TestAllocationService_UploadErrors(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Upload.MaxBytes = 64 })
	created, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name   string
		upload Upload
		want   error
	}{
		{
			name:   "unknown session",
			upload: csvUpload("a,b\n1,2\n"),
			want:   apperrors.ErrSessionNotFound,
		},
		{
			name:   "unsupported extension",
			upload: Upload{Name: "notes.pdf", Size: 3, Body: strings.NewReader("abc")},
			want:   apperrors.ErrUnreadableFormat,
		},
		{
			name:   "declared size too large",
			upload: Upload{Name: "big.csv", Size: 65, Body: strings.NewReader("a,b\n")},
			want:   apperrors.ErrPayloadTooLarge,
		},
		{
			name:   "stream larger than declared",
			upload: Upload{Name: "big.csv", Size: 10, Body: strings.NewReader(strings.Repeat("a,b\n", 40))},
			want:   apperrors.ErrPayloadTooLarge,
		},
		{
			name:   "single column",
			upload: csvUpload("STORE\nS1\n"),
			want:   apperrors.ErrUnreadableFormat,
		},
		{
			name:   "no numeric columns",
			upload: csvUpload("STORE,ITEM\nS1,A\nS2,B\n"),
			want:   apperrors.ErrNoNumericColumns,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := created.ID
			if tt.want == apperrors.ErrSessionNotFound {
				id = "missing"
			}
			_, err := f.svc.Upload(context.Background(), id, tt.upload)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()
	require.NoError(t, wb.SetSheetName("Sheet1", "Sales"))
	require.NoError(t, wb.SetSheetRow("Sales", "A1", &[]interface{}{"STORE", "SL_Q"}))
	require.NoError(t, wb.SetSheetRow("Sales", "A2", &[]interface{}{"S1", 10}))
	require.NoError(t, wb.SetSheetRow("Sales", "A3", &[]interface{}{"S2", 20}))
	_, err := wb.NewSheet("Notes")
	require.NoError(t, err)
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestAllocationService_WorkbookNeedsSheet(t *testing.T) {
	f := newFixture(t, nil)
	created, _ := f.svc.CreateSession(context.Background())
	data := workbookBytes(t)

	_, err := f.svc.SelectSheet(context.Background(), created.ID, "Sales")
	assert.ErrorIs(t, err, ErrNoPendingWorkbook)

	resp, err := f.svc.Upload(context.Background(), created.ID, Upload{Name: "sales.xlsx", Size: int64(len(data)), Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Equal(t, api.UploadStatusSheetRequired, resp.Status)
	assert.Equal(t, []string{"Sales", "Notes"}, resp.Sheets)

	summary, err := f.svc.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sales", "Notes"}, summary.PendingSheet)
	assert.Nil(t, summary.File)

	_, err = f.svc.SelectSheet(context.Background(), created.ID, "Missing")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	resp, err = f.svc.SelectSheet(context.Background(), created.ID, "Sales")
	require.NoError(t, err)
	assert.Equal(t, api.UploadStatusLoaded, resp.Status)
	assert.Equal(t, "Sales", resp.File.Sheet)
	assert.Equal(t, 2, resp.File.Rows)
}

func TestAllocationService_FiltersCascade(t *testing.T) {
	f := newFixture(t, nil)
	id := f.loadedSession(t)

	state, err := f.svc.Filters(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"S001", "S002", "S003"}, state.Options["STORE"])
	assert.Equal(t, 5, state.MatchedRows)
	assert.NotContains(t, state.Options, "SL_Q")

	state, err = f.svc.SetSelection(context.Background(), id, "STORE", []string{"S001"})
	require.NoError(t, err)
	assert.Equal(t, 2, state.MatchedRows)
	assert.Equal(t, []string{"S001", "S002", "S003"}, state.Options["STORE"])
	assert.Equal(t, []string{"DRESSES", "SHIRTS"}, state.Options["DEPARTMENT"])

	_, err = f.svc.SetSelection(context.Background(), id, "SL_Q", []string{"10"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	// A rejected selection keeps the previous one.
	state, err = f.svc.Filters(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"S001"}, state.Selections["STORE"])

	state, err = f.svc.ClearSelections(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 5, state.MatchedRows)
}

func TestAllocationService_NoTable(t *testing.T) {
	f := newFixture(t, nil)
	created, _ := f.svc.CreateSession(context.Background())

	_, err := f.svc.Filters(context.Background(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNoTableLoaded)

	_, err = f.svc.Revise(context.Background(), created.ID, RevisionInput{Percent: 10, Mode: "increase", Targets: []string{"SL_Q"}})
	assert.ErrorIs(t, err, apperrors.ErrNoTableLoaded)

	_, err = f.svc.Export(context.Background(), created.ID, "csv")
	assert.ErrorIs(t, err, apperrors.ErrNoResult)
}

func TestAllocationService_ReviseAndExport(t *testing.T) {
	f := newFixture(t, nil)
	id := f.loadedSession(t)

	_, err := f.svc.SetSelection(context.Background(), id, "STORE", []string{"S001"})
	require.NoError(t, err)

	resp, err := f.svc.Revise(context.Background(), id, RevisionInput{
		Percent: 50, Mode: "Increase %", Targets: []string{"SL_Q"}, PreviewRows: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "increase", resp.Summary.Mode)
	assert.Equal(t, 2, resp.Summary.RowsRevised)
	assert.Equal(t, 5, resp.Summary.RowsTotal)
	assert.Equal(t, []string{"SL_Q_REVISED", "STATUS"}, resp.Summary.Columns)
	assert.Len(t, resp.Preview, 2)
	assert.Equal(t, "output_20261014_083000.csv", resp.FileName)

	artifact, err := f.svc.Export(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, "output_20261014_083000.csv", artifact.FileName)
	assert.Contains(t, artifact.ContentType, "text/csv")

	lines := strings.Split(strings.TrimSpace(string(artifact.Data)), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasSuffix(lines[0], "SL_Q_REVISED,STATUS"))
	assert.True(t, strings.HasSuffix(lines[1], ",15,REVISED"), lines[1])
	assert.True(t, strings.HasSuffix(lines[3], ",7,SAME"), lines[3])

	xlsx, err := f.svc.Export(context.Background(), id, "xlsx")
	require.NoError(t, err)
	assert.Equal(t, "output_20261014_083000.xlsx", xlsx.FileName)

	_, err = f.svc.Export(context.Background(), id, "pdf")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
}

func TestAllocationService_ExportFile(t *testing.T) {
	f := newFixture(t, nil)
	id := f.loadedSession(t)
	dir := filepath.Join(t.TempDir(), "out")

	_, err := f.svc.ExportFile(context.Background(), id, "csv", dir)
	assert.ErrorIs(t, err, apperrors.ErrNoResult)

	_, err = f.svc.Revise(context.Background(), id, RevisionInput{Percent: 50, Mode: "decrease", ApplyAllNumeric: true})
	require.NoError(t, err)

	path, err := f.svc.ExportFile(context.Background(), id, "", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "output_20261014_083000.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "STATUS")
}

func TestAllocationService_ReviseRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		input  RevisionInput
		want   error
	}{
		{
			name:  "zero percent rejected",
			input: RevisionInput{Percent: 0, Mode: "increase", Targets: []string{"SL_Q"}},
			want:  apperrors.ErrInvalidParameter,
		},
		{
			name:  "unknown mode",
			input: RevisionInput{Percent: 5, Mode: "sideways", Targets: []string{"SL_Q"}},
			want:  apperrors.ErrInvalidParameter,
		},
		{
			name:   "filter required",
			mutate: func(c *config.Config) { c.Engine.RequireFilter = true },
			input:  RevisionInput{Percent: 5, Mode: "increase", Targets: []string{"SL_Q"}},
			want:   apperrors.ErrInvalidParameter,
		},
		{
			name:  "categorical target",
			input: RevisionInput{Percent: 5, Mode: "increase", Targets: []string{"STORE"}},
			want:  apperrors.ErrInvalidParameter,
		},
		{
			name:  "no targets",
			input: RevisionInput{Percent: 5, Mode: "increase"},
			want:  apperrors.ErrInvalidParameter,
		},
		{
			name:   "zero percent allowed when configured",
			mutate: func(c *config.Config) { c.Engine.RejectZeroPercent = false },
			input:  RevisionInput{Percent: 0, Mode: "direct", Targets: []string{"SL_V"}},
		},
		{
			name:  "all numeric fallback",
			input: RevisionInput{Percent: 5, Mode: "decrease", ApplyAllNumeric: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			id := f.loadedSession(t)

			_, err := f.svc.Revise(context.Background(), id, tt.input)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestAllocationService_FileChangeResetsSelections(t *testing.T) {
	f := newFixture(t, nil)
	id := f.loadedSession(t)

	_, err := f.svc.SetSelection(context.Background(), id, "STORE", []string{"S002"})
	require.NoError(t, err)
	_, err = f.svc.Revise(context.Background(), id, RevisionInput{Percent: 5, Mode: "increase", Targets: []string{"SL_V"}})
	require.NoError(t, err)

	// Same file again keeps the selection.
	_, err = f.svc.Upload(context.Background(), id, csvUpload(testutil.SalesCSV(",")))
	require.NoError(t, err)
	summary, err := f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"S002"}, summary.Selections["STORE"])
	assert.Equal(t, 2, summary.MatchedRows)
	assert.True(t, summary.HasResult)

	// A different file clears selections and the result.
	_, err = f.svc.Upload(context.Background(), id, csvUpload("STORE,REGION,SL_Q\nS9,N,1\nS8,S,2\n"))
	require.NoError(t, err)
	summary, err = f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, summary.Selections, 2)
	assert.Empty(t, summary.Selections["STORE"])
	assert.Empty(t, summary.Selections["REGION"])
	assert.Equal(t, 2, summary.MatchedRows)
	assert.False(t, summary.HasResult)

	state, err := f.svc.Filters(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"S8", "S9"}, state.Options["STORE"])
}

func TestAllocationService_FailedUploadKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	id := f.loadedSession(t)
	_, err := f.svc.SetSelection(context.Background(), id, "STORE", []string{"S001"})
	require.NoError(t, err)

	_, err = f.svc.Upload(context.Background(), id, csvUpload("ONLY\nONE\n"))
	require.Error(t, err)

	summary, err := f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"S001"}, summary.Selections["STORE"])
	assert.Equal(t, "sales.csv", summary.File.Name)
}

func TestAllocationService_FixedProfile(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Engine.SchemaProfile = config.ProfileFixed })
	id := f.loadedSession(t)

	resp, err := f.svc.Revise(context.Background(), id, RevisionInput{Percent: 50, Mode: "direct"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SL_Q", "SL_V"}, resp.Summary.Targets)
	assert.Equal(t, []string{"SL_Q_NEW", "SL_V_NEW", "STATUS"}, resp.Summary.Columns)

	created, _ := f.svc.CreateSession(context.Background())
	_, err = f.svc.Upload(context.Background(), created.ID, csvUpload("STORE,SL_Q\nS1,1\n"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
}

func TestApplyFixedProfileCoercesTargets(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Engine.SchemaProfile = config.ProfileFixed })
	created, _ := f.svc.CreateSession(context.Background())

	// SL_Q is mostly text, so only the fixed profile makes it numeric.
	body := "STORE,DIVISION,SECTION,DEPARTMENT,ARTICLE_NAME,CONCEPT,SL_Q,SL_V\n" +
		"S1,D,S,X,A,C,n/a,10\n" +
		"S2,D,S,X,A,C,tbd,20\n" +
		"S3,D,S,X,A,C,4,30\n"
	resp, err := f.svc.Upload(context.Background(), created.ID, csvUpload(body))
	require.NoError(t, err)
	for _, c := range resp.Columns {
		if c.Name == "SL_Q" {
			assert.Equal(t, "numeric", c.Kind)
		}
	}

	out, err := f.svc.Revise(context.Background(), created.ID, RevisionInput{Percent: 10, Mode: "increase"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Summary.RowsRevised)
	assert.Equal(t, "", out.Preview[0][8], "missing stays missing")
	assert.False(t, math.IsNaN(out.Summary.Multiplier))
}

func TestAllocationService_NoNumericUploadKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	id := f.loadedSession(t)
	_, err := f.svc.SetSelection(context.Background(), id, "STORE", []string{"S002"})
	require.NoError(t, err)

	_, err = f.svc.Upload(context.Background(), id, csvUpload("STORE,ITEM\nS1,A\nS2,B\n"))
	require.ErrorIs(t, err, apperrors.ErrNoNumericColumns)
	assert.Equal(t, apperrors.ErrTypeNoNumericColumns, apperrors.TypeOf(err))

	summary, err := f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", summary.File.Name)
	assert.Equal(t, []string{"S002"}, summary.Selections["STORE"])
}

func TestAllocationService_FixedProfileKeepsCodesCategorical(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Engine.SchemaProfile = config.ProfileFixed })
	created, _ := f.svc.CreateSession(context.Background())

	body := "STORE,DIVISION,SECTION,DEPARTMENT,ARTICLE_NAME,CONCEPT,SL_Q,SL_V\n" +
		"1001,10,S,X,A,C,4,10\n" +
		"1002,20,S,X,A,C,6,20\n" +
		"1001,20,S,X,B,C,8,30\n"
	resp, err := f.svc.Upload(context.Background(), created.ID, csvUpload(body))
	require.NoError(t, err)

	kinds := map[string]string{}
	for _, c := range resp.Columns {
		kinds[c.Name] = c.Kind
	}
	assert.Equal(t, "categorical", kinds["STORE"])
	assert.Equal(t, "categorical", kinds["DIVISION"])
	assert.Equal(t, "numeric", kinds["SL_Q"])
	assert.Equal(t, "numeric", kinds["SL_V"])

	state, err := f.svc.SetSelection(context.Background(), created.ID, "STORE", []string{"1001"})
	require.NoError(t, err)
	assert.Equal(t, 2, state.MatchedRows)
	assert.Equal(t, []string{"1001", "1002"}, state.Options["STORE"])
	assert.Equal(t, []string{"10", "20"}, state.Options["DIVISION"])

	out, err := f.svc.Revise(context.Background(), created.ID, RevisionInput{Percent: 50, Mode: "increase"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Summary.RowsRevised)
	assert.Equal(t, []string{"SL_Q", "SL_V"}, out.Summary.Targets)
}

func TestAllocationService_DeleteSession(t *testing.T) {
	f := newFixture(t, nil)
	created, _ := f.svc.CreateSession(context.Background())

	require.NoError(t, f.svc.DeleteSession(context.Background(), created.ID))
	assert.ErrorIs(t, f.svc.DeleteSession(context.Background(), created.ID), apperrors.ErrSessionNotFound)
	_, err := f.svc.GetSession(context.Background(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
