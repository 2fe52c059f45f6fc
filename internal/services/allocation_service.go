package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"allocator/internal/config"
	apperrors "allocator/internal/errors"
	"allocator/internal/exporter"
	"allocator/internal/filter"
	"allocator/internal/infrastructure"
	"allocator/internal/ingest"
	"allocator/internal/normalize"
	"allocator/internal/revision"
	"allocator/internal/session"
	"allocator/internal/table"
	"allocator/internal/validation"
	api "allocator/pkg/contracts/api/v1"
	"allocator/pkg/contracts/events"
)

// StateNotifier pushes session events to live clients
type StateNotifier interface {
	BroadcastToSession(sessionID string, msgType events.MessageType, data interface{})
}

type noopNotifier struct{}

func (noopNotifier) BroadcastToSession(string, events.MessageType, interface{}) {}

// Upload is one file received from a client
type Upload struct {
	Name  string
	Size  int64
	Body  io.Reader
	Sheet string
}

// RevisionInput is a parsed revision request
type RevisionInput struct {
	Percent         float64
	Mode            string
	Targets         []string
	ApplyAllNumeric bool
	PreviewRows     int
}

// Artifact is a serialized revision result
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// AllocationService runs the upload, filter and revise cycle for sessions
type AllocationService struct {
	store      *session.Store
	ingestor   *ingest.Ingestor
	normalizer *normalize.Normalizer
	validator  *validation.FileValidator
	engine     config.EngineConfig
	export     config.ExportConfig
	metrics    *infrastructure.BusinessMetrics
	notifier   StateNotifier
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
}

// AllocationDeps are the collaborators of AllocationService
type AllocationDeps struct {
	Store     *session.Store
	Ingestor  *ingest.Ingestor
	Validator *validation.FileValidator
	Engine    config.EngineConfig
	Export    config.ExportConfig
	Metrics   *infrastructure.BusinessMetrics
	Notifier  StateNotifier
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewAllocationService creates the service. Metrics and Notifier are optional.
func NewAllocationService(deps AllocationDeps) *AllocationService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AllocationService{
		store:      deps.Store,
		ingestor:   deps.Ingestor,
		normalizer: normalize.New(deps.Engine.NumericThreshold),
		validator:  deps.Validator,
		engine:     deps.Engine,
		export:     deps.Export,
		metrics:    deps.Metrics,
		notifier:   notifier,
		tracer:     otel.Tracer("allocator/services"),
		logger:     logger.With(slog.String("component", "allocation_service")),
		now:        now,
	}
}

// SetNotifier replaces the live event sink
func (s *AllocationService) SetNotifier(n StateNotifier) {
	if n == nil {
		n = noopNotifier{}
	}
	s.notifier = n
}

// CreateSession opens a new session
func (s *AllocationService) CreateSession(ctx context.Context) (api.SessionCreated, error) {
	sess := s.store.Create()
	infrastructure.RecordSessionDelta(ctx, s.metrics, 1)
	s.logger.InfoContext(ctx, "session created", slog.String("session_id", sess.ID))
	return api.SessionCreated{ID: sess.ID, ExpiresAt: s.store.ExpiresAt(sess)}, nil
}

// DeleteSession discards a session
func (s *AllocationService) DeleteSession(ctx context.Context, id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session deleted", slog.String("session_id", id))
	return nil
}

// GetSession summarizes a session
func (s *AllocationService) GetSession(ctx context.Context, id string) (api.SessionSummary, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return api.SessionSummary{}, err
	}

	summary := api.SessionSummary{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: s.store.ExpiresAt(sess),
	}
	err = sess.Do(func(st *session.State) error {
		summary.Selections = st.Selections()
		summary.HasResult = st.Result != nil
		if st.Pending != nil {
			sheets, err := s.ingestor.ListSheets(*st.Pending)
			if err == nil {
				summary.PendingSheet = sheets
			}
		}
		if st.Table == nil {
			return nil
		}
		summary.File = fileInfo(st.FileName, st.Report)
		summary.Columns = columnInfo(st.Table)
		mask, err := filter.ComputeMask(st.Table, st.Selections())
		if err != nil {
			return err
		}
		summary.MatchedRows = mask.Count()
		return nil
	})
	return summary, err
}

// Upload validates and ingests a file. A workbook without a sheet is held
// pending and the available sheets are returned instead.
func (s *AllocationService) Upload(ctx context.Context, id string, up Upload) (api.UploadResponse, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return api.UploadResponse{}, err
	}

	name := validation.CleanName(up.Name)
	if err := s.validator.ValidateUpload(name, up.Size); err != nil {
		infrastructure.RecordUpload(ctx, s.metrics, "unknown", "rejected")
		return api.UploadResponse{}, err
	}
	kind, err := ingest.KindOf(name)
	if err != nil {
		infrastructure.RecordUpload(ctx, s.metrics, "unknown", "rejected")
		return api.UploadResponse{}, err
	}

	data, err := s.readAll(up.Body)
	if err != nil {
		infrastructure.RecordUpload(ctx, s.metrics, kind.String(), "rejected")
		return api.UploadResponse{}, err
	}

	src := ingest.Source{Name: name, Data: data}
	if kind == ingest.Workbook {
		src.Sheet = up.Sheet
	}

	var resp api.UploadResponse
	err = sess.Do(func(st *session.State) error {
		if kind == ingest.Workbook && src.Sheet == "" {
			sheets, err := s.ingestor.ListSheets(src)
			if err != nil {
				return err
			}
			pending := src
			st.Pending = &pending
			resp = api.UploadResponse{Status: api.UploadStatusSheetRequired, Sheets: sheets}
			s.logger.InfoContext(ctx, "workbook awaiting sheet selection",
				slog.String("session_id", id),
				slog.String("file", name),
				slog.Int("sheets", len(sheets)))
			return nil
		}
		resp, err = s.load(ctx, id, st, src)
		return err
	})

	outcome := "loaded"
	switch {
	case err != nil:
		outcome = "failed"
	case resp.Status == api.UploadStatusSheetRequired:
		outcome = "sheet_required"
	}
	infrastructure.RecordUpload(ctx, s.metrics, kind.String(), outcome)
	if err != nil {
		return api.UploadResponse{}, err
	}
	if resp.Status == api.UploadStatusLoaded {
		s.broadcastState(ctx, sess)
	}
	return resp, nil
}

// SelectSheet ingests the chosen sheet of the pending workbook
func (s *AllocationService) SelectSheet(ctx context.Context, id, sheet string) (api.UploadResponse, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return api.UploadResponse{}, err
	}

	var resp api.UploadResponse
	err = sess.Do(func(st *session.State) error {
		if st.Pending == nil {
			return ErrNoPendingWorkbook
		}
		src := *st.Pending
		src.Sheet = sheet
		resp, err = s.load(ctx, id, st, src)
		return err
	})
	infrastructure.RecordUpload(ctx, s.metrics, ingest.Workbook.String(), outcomeOf(err))
	if err != nil {
		return api.UploadResponse{}, err
	}
	s.broadcastState(ctx, sess)
	return resp, nil
}

// load ingests src into st. State is only touched once ingestion succeeds.
func (s *AllocationService) load(ctx context.Context, id string, st *session.State, src ingest.Source) (api.UploadResponse, error) {
	start := time.Now()
	kind, _ := ingest.KindOf(src.Name)
	raw, report, err := s.ingestor.Ingest(ctx, src)
	if err != nil {
		infrastructure.RecordIngest(ctx, s.metrics, kind.String(), time.Since(start), string(apperrors.TypeOf(err)))
		return api.UploadResponse{}, err
	}

	tbl, err := s.classify(raw)
	if err != nil {
		infrastructure.RecordIngest(ctx, s.metrics, kind.String(), time.Since(start), string(apperrors.TypeOf(err)))
		return api.UploadResponse{}, err
	}
	infrastructure.RecordIngest(ctx, s.metrics, kind.String(), time.Since(start), "")

	if st.OnFileChanged(ingest.Identity(src)) {
		s.logger.InfoContext(ctx, "file changed, selections reset", slog.String("session_id", id))
	}
	st.FileName = src.Name
	st.Report = report
	st.Table = tbl
	st.Pending = nil
	st.GetOrInit(tbl.NamesOfKind(table.Categorical))

	s.logger.InfoContext(ctx, "table loaded",
		slog.String("session_id", id),
		slog.String("file", src.Name),
		slog.Int("rows", tbl.Rows()),
		slog.Int("numeric_columns", len(tbl.NamesOfKind(table.Numeric))),
		slog.Int("categorical_columns", len(tbl.NamesOfKind(table.Categorical))))

	return api.UploadResponse{
		Status:  api.UploadStatusLoaded,
		File:    fileInfo(src.Name, report),
		Columns: columnInfo(tbl),
	}, nil
}

// classify decides the kind of every ingested column. A table without a
// numeric column cannot be revised and is rejected.
func (s *AllocationService) classify(raw *table.Table) (*table.Table, error) {
	var tbl *table.Table
	if s.engine.SchemaProfile == config.ProfileFixed {
		var err error
		if tbl, err = applyFixedProfile(raw); err != nil {
			return nil, err
		}
	} else {
		tbl = s.normalizer.Table(raw)
	}

	if len(tbl.NamesOfKind(table.Numeric)) == 0 {
		return nil, apperrors.NewNoNumericColumnsError("uploaded table has no numeric columns").
			WithContext("columns", tbl.Names())
	}
	return tbl, nil
}

// applyFixedProfile checks the retail schema and forces its value columns
// numeric. Every other column stays categorical so numeric store or article
// codes remain filterable.
func applyFixedProfile(t *table.Table) (*table.Table, error) {
	var missing []string
	for _, name := range config.FixedSchemaColumns {
		if _, ok := t.Column(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewInvalidParameterError("file is missing required columns %v", missing).
			WithContext("missing_columns", missing)
	}

	out := t.Clone()
	for _, name := range config.FixedSchemaTargets {
		col, _ := out.Column(name)
		if err := out.Set(normalize.Coerce(col)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Columns lists the columns of the loaded table
func (s *AllocationService) Columns(ctx context.Context, id string) ([]api.ColumnInfo, error) {
	var cols []api.ColumnInfo
	err := s.withTable(id, func(st *session.State) error {
		cols = columnInfo(st.Table)
		return nil
	})
	return cols, err
}

// Filters returns the cascading filter state of a session
func (s *AllocationService) Filters(ctx context.Context, id string) (api.FilterState, error) {
	var state api.FilterState
	err := s.withTable(id, func(st *session.State) error {
		var err error
		state, err = filterState(st)
		return err
	})
	return state, err
}

// SetSelection replaces one column's selection and returns the recomputed state
func (s *AllocationService) SetSelection(ctx context.Context, id, column string, values []string) (api.FilterState, error) {
	var state api.FilterState
	sess, err := s.store.Get(id)
	if err != nil {
		return state, err
	}
	err = sess.Do(func(st *session.State) error {
		if st.Table == nil {
			return apperrors.ErrNoTableLoaded
		}
		st.GetOrInit(st.Table.NamesOfKind(table.Categorical))
		if err := st.SetSelection(column, values); err != nil {
			return err
		}
		state, err = filterState(st)
		return err
	})
	if err != nil {
		return api.FilterState{}, err
	}

	s.logger.DebugContext(ctx, "selection updated",
		slog.String("session_id", id),
		slog.String("column", column),
		slog.Int("values", len(values)),
		slog.Int("matched_rows", state.MatchedRows))
	s.notifier.BroadcastToSession(id, events.MessageTypeFilterState, state)
	return state, nil
}

// ClearSelections empties every selection of a session
func (s *AllocationService) ClearSelections(ctx context.Context, id string) (api.FilterState, error) {
	var state api.FilterState
	err := s.withTable(id, func(st *session.State) error {
		st.ClearSelections()
		var err error
		state, err = filterState(st)
		return err
	})
	if err != nil {
		return api.FilterState{}, err
	}
	s.notifier.BroadcastToSession(id, events.MessageTypeFilterState, state)
	return state, nil
}

// Revise applies a percentage adjustment to the rows matching the current selections
func (s *AllocationService) Revise(ctx context.Context, id string, in RevisionInput) (api.RevisionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "revise",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("revision.mode", in.Mode),
			attribute.Float64("revision.percent", in.Percent),
		))
	defer span.End()

	mode, err := revision.ParseMode(in.Mode)
	if err != nil {
		return api.RevisionResponse{}, err
	}
	if s.engine.RejectZeroPercent && in.Percent == 0 {
		return api.RevisionResponse{}, apperrors.NewInvalidParameterError("percent must be greater than zero")
	}

	var resp api.RevisionResponse
	err = s.withTable(id, func(st *session.State) error {
		sel := st.Selections()
		if s.engine.RequireFilter && !sel.Active() {
			return apperrors.NewInvalidParameterError("select at least one filter value before revising")
		}
		mask, err := filter.ComputeMask(st.Table, sel)
		if err != nil {
			return err
		}

		targets := in.Targets
		if len(targets) == 0 && !in.ApplyAllNumeric && s.engine.SchemaProfile == config.ProfileFixed {
			targets = config.FixedSchemaTargets
		}

		result, summary, err := revision.Apply(st.Table, mask, revision.Params{
			Targets:         targets,
			Percent:         in.Percent,
			Mode:            mode,
			ApplyAllNumeric: in.ApplyAllNumeric,
			Suffix:          s.engine.Suffix(),
			StatusColumn:    s.engine.StatusColumn,
		})
		if err != nil {
			return err
		}

		st.Result = result
		st.Summary = &summary
		st.RevisedAt = s.now()

		resp = api.RevisionResponse{
			Summary:  revisionSummary(summary),
			Header:   result.Names(),
			Preview:  preview(result, s.previewRows(in.PreviewRows)),
			FileName: exporter.FileName(st.RevisedAt, s.defaultFormat()),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return api.RevisionResponse{}, err
	}

	span.SetAttributes(
		attribute.Int("revision.rows_revised", resp.Summary.RowsRevised),
		attribute.Int("revision.rows_total", resp.Summary.RowsTotal),
	)
	infrastructure.RecordRevision(ctx, s.metrics, mode.String(), resp.Summary.RowsRevised)
	s.logger.InfoContext(ctx, "revision applied",
		slog.String("session_id", id),
		slog.String("mode", mode.String()),
		slog.Float64("percent", in.Percent),
		slog.Float64("multiplier", resp.Summary.Multiplier),
		slog.Any("targets", resp.Summary.Targets),
		slog.Int("rows_revised", resp.Summary.RowsRevised),
		slog.Int("rows_total", resp.Summary.RowsTotal))
	return resp, nil
}

// Export serializes the last revision result of a session
func (s *AllocationService) Export(ctx context.Context, id, format string) (*Artifact, error) {
	if format == "" {
		format = s.defaultFormat()
	}
	w, err := exporter.ForFormat(format, exporter.WriteOptions{BOMPrefix: s.export.CSVBOM})
	if err != nil {
		return nil, err
	}

	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	var artifact *Artifact
	err = sess.Do(func(st *session.State) error {
		if st.Result == nil {
			return apperrors.ErrNoResult
		}
		var buf bytes.Buffer
		if err := w.WriteTable(&buf, st.Result); err != nil {
			return fmt.Errorf("export %s: %w", format, err)
		}
		artifact = &Artifact{
			FileName:    exporter.FileName(st.RevisedAt, w.Extension()),
			ContentType: w.ContentType(),
			Data:        buf.Bytes(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "result exported",
		slog.String("session_id", id),
		slog.String("file", artifact.FileName),
		slog.Int("bytes", len(artifact.Data)))
	return artifact, nil
}

// ExportFile writes the last revision result of a session into dir and
// returns the artifact path
func (s *AllocationService) ExportFile(ctx context.Context, id, format, dir string) (string, error) {
	if format == "" {
		format = s.defaultFormat()
	}
	w, err := exporter.ForFormat(format, exporter.WriteOptions{BOMPrefix: s.export.CSVBOM})
	if err != nil {
		return "", err
	}
	if err := s.validator.ValidateOutputDirectory(dir); err != nil {
		return "", err
	}

	sess, err := s.store.Get(id)
	if err != nil {
		return "", err
	}

	var path string
	err = sess.Do(func(st *session.State) error {
		if st.Result == nil {
			return apperrors.ErrNoResult
		}
		path, err = exporter.WriteFile(dir, st.RevisedAt, w, st.Result)
		return err
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "result written", slog.String("session_id", id), slog.String("path", path))
	return path, nil
}

func (s *AllocationService) withTable(id string, fn func(*session.State) error) error {
	sess, err := s.store.Get(id)
	if err != nil {
		return err
	}
	return sess.Do(func(st *session.State) error {
		if st.Table == nil {
			return apperrors.ErrNoTableLoaded
		}
		return fn(st)
	})
}

func (s *AllocationService) broadcastState(ctx context.Context, sess *session.Session) {
	var state api.FilterState
	err := sess.Do(func(st *session.State) error {
		var err error
		state, err = filterState(st)
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "filter state unavailable for broadcast",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
		return
	}
	s.notifier.BroadcastToSession(sess.ID, events.MessageTypeFilterState, state)
}

// readAll buffers the upload once, enforcing the size limit on the stream itself
func (s *AllocationService) readAll(r io.Reader) ([]byte, error) {
	limit := s.validator.MaxBytes()
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, apperrors.ErrPayloadTooLarge
	}
	return data, nil
}

func (s *AllocationService) previewRows(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.engine.PreviewRows
}

func (s *AllocationService) defaultFormat() string {
	if s.export.DefaultFormat == "" {
		return exporter.FormatCSV
	}
	return s.export.DefaultFormat
}

func filterState(st *session.State) (api.FilterState, error) {
	sel := st.GetOrInit(st.Table.NamesOfKind(table.Categorical))
	mask, err := filter.ComputeMask(st.Table, sel)
	if err != nil {
		return api.FilterState{}, err
	}
	return api.FilterState{
		Options:     filter.AllOptions(st.Table, sel),
		Selections:  sel,
		MatchedRows: mask.Count(),
		TotalRows:   st.Table.Rows(),
	}, nil
}

func fileInfo(name string, r ingest.Report) *api.FileInfo {
	return &api.FileInfo{
		Name:      name,
		Kind:      r.Kind,
		Encoding:  r.Encoding,
		Delimiter: r.Delimiter,
		Sheet:     r.Sheet,
		Rows:      r.Rows,
		Columns:   r.Columns,
	}
}

func columnInfo(t *table.Table) []api.ColumnInfo {
	cols := make([]api.ColumnInfo, 0, t.Width())
	for _, c := range t.Columns() {
		cols = append(cols, api.ColumnInfo{Name: c.Name, Kind: c.Kind.String()})
	}
	return cols
}

func revisionSummary(s revision.Summary) api.RevisionSummary {
	return api.RevisionSummary{
		Mode:        s.Mode,
		Percent:     s.Percent,
		Multiplier:  s.Multiplier,
		Targets:     s.Targets,
		Columns:     s.Columns,
		RowsRevised: s.RowsRevised,
		RowsTotal:   s.RowsTotal,
	}
}

func preview(t *table.Table, n int) [][]string {
	if n > t.Rows() {
		n = t.Rows()
	}
	rows := make([][]string, n)
	for i := 0; i < n; i++ {
		rows[i] = t.Row(i)
	}
	return rows
}

func outcomeOf(err error) string {
	if err != nil {
		return "failed"
	}
	return "loaded"
}
