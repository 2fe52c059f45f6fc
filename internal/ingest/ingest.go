// Package ingest turns uploaded bytes into a table of raw text columns.
//
// Delimited text is decoded by trying each supported encoding against each
// supported delimiter until one combination yields a header of at least two
// columns. Workbooks are read through excelize and need an explicit sheet.
// Every cell comes out categorical; numeric inference is left to the
// normalize package.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "allocator/internal/errors"
	"allocator/internal/table"
)

// FileKind classifies a source by extension
type FileKind int

const (
	// Delimited is CSV-like text
	Delimited FileKind = iota + 1
	// Workbook is an Excel file that needs a sheet
	Workbook
)

// String returns the kind name used in logs and metrics
func (k FileKind) String() string {
	switch k {
	case Delimited:
		return "csv"
	case Workbook:
		return "workbook"
	default:
		return "unknown"
	}
}

// KindOf classifies a file name by extension
func KindOf(name string) (FileKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return Delimited, nil
	case ".xlsx", ".xlsm", ".xls":
		return Workbook, nil
	default:
		return 0, apperrors.NewUnreadableFormatError(
			fmt.Sprintf("unsupported file type %q", filepath.Ext(name)), nil)
	}
}

// Source is an uploaded file held fully in memory
type Source struct {
	Name  string
	Data  []byte
	Sheet string
}

// Identity fingerprints the source by name, size, sheet and content
func Identity(src Source) string {
	h := sha256.New()
	h.Write([]byte(src.Name))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(len(src.Data))))
	h.Write([]byte{0})
	h.Write([]byte(src.Sheet))
	h.Write([]byte{0})
	h.Write(src.Data)
	return hex.EncodeToString(h.Sum(nil))
}

// Report describes how a source was decoded
type Report struct {
	Kind      string `json:"kind"`
	Encoding  string `json:"encoding,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	Sheet     string `json:"sheet,omitempty"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
}

// Options bounds what an upload may contain
type Options struct {
	MaxRows    int
	MaxColumns int
}

// DefaultOptions returns the stock limits
func DefaultOptions() Options {
	return Options{MaxRows: 200000, MaxColumns: 512}
}

// Ingestor decodes sources into tables
type Ingestor struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an Ingestor
func New(opts Options, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		opts:   opts,
		logger: logger.With(slog.String("component", "ingest")),
		tracer: otel.Tracer("allocator/ingest"),
	}
}

// Ingest decodes src into a table of categorical columns
func (in *Ingestor) Ingest(ctx context.Context, src Source) (*table.Table, Report, error) {
	ctx, span := in.tracer.Start(ctx, "ingest",
		trace.WithAttributes(
			attribute.String("file.name", src.Name),
			attribute.Int("file.size", len(src.Data)),
		))
	defer span.End()

	start := time.Now()
	kind, err := KindOf(src.Name)
	if err != nil {
		return nil, Report{}, err
	}

	var (
		header []string
		rows   [][]string
		report Report
	)
	switch kind {
	case Delimited:
		header, rows, report, err = in.readDelimited(ctx, src.Data)
	case Workbook:
		header, rows, report, err = readWorkbook(src.Data, src.Sheet)
	}
	if err != nil {
		span.RecordError(err)
		in.logger.WarnContext(ctx, "ingest failed",
			slog.String("file", src.Name),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
		return nil, Report{}, err
	}
	report.Kind = kind.String()

	rows = dropTrailingBlankRows(rows)
	if err := in.checkLimits(len(header), len(rows)); err != nil {
		return nil, Report{}, err
	}

	tbl, err := build(header, rows)
	if err != nil {
		return nil, Report{}, apperrors.NewUnreadableFormatError("could not assemble table", err)
	}
	report.Rows, report.Columns = tbl.Rows(), tbl.Width()

	span.SetAttributes(
		attribute.String("ingest.encoding", report.Encoding),
		attribute.String("ingest.delimiter", report.Delimiter),
		attribute.String("ingest.sheet", report.Sheet),
		attribute.Int("ingest.rows", report.Rows),
		attribute.Int("ingest.columns", report.Columns),
	)
	in.logger.InfoContext(ctx, "file ingested",
		slog.String("file", src.Name),
		slog.String("kind", report.Kind),
		slog.String("encoding", report.Encoding),
		slog.String("delimiter", report.Delimiter),
		slog.String("sheet", report.Sheet),
		slog.Int("rows", report.Rows),
		slog.Int("columns", report.Columns),
		slog.Duration("duration", time.Since(start)))

	return tbl, report, nil
}

// ListSheets returns the sheet names of a workbook source
func (in *Ingestor) ListSheets(src Source) ([]string, error) {
	kind, err := KindOf(src.Name)
	if err != nil {
		return nil, err
	}
	if kind != Workbook {
		return nil, apperrors.NewInvalidParameterError("%s is not a workbook", src.Name)
	}
	return listSheets(src.Data)
}

func (in *Ingestor) checkLimits(columns, rows int) error {
	if in.opts.MaxColumns > 0 && columns > in.opts.MaxColumns {
		return apperrors.NewUnreadableFormatError(
			fmt.Sprintf("file has %d columns, the limit is %d", columns, in.opts.MaxColumns), nil)
	}
	if in.opts.MaxRows > 0 && rows > in.opts.MaxRows {
		return apperrors.NewUnreadableFormatError(
			fmt.Sprintf("file has %d rows, the limit is %d", rows, in.opts.MaxRows), nil)
	}
	return nil
}

// build pads short rows and assembles one categorical column per header
func build(header []string, rows [][]string) (*table.Table, error) {
	names := normalizeHeaders(header)
	cols := make([]*table.Column, len(names))
	for j, name := range names {
		cells := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				cells[i] = row[j]
			}
		}
		cols[j] = table.NewCategorical(name, cells)
	}
	return table.New(cols...)
}

// normalizeHeaders trims names, fills blanks with Column_<n> and suffixes duplicates with .1, .2, ...
func normalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Column_%d", i+1)
		}
		if seen[name] {
			base := name
			for n := 1; seen[name]; n++ {
				name = fmt.Sprintf("%s.%d", base, n)
			}
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

func dropTrailingBlankRows(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && isBlankRow(rows[end-1]) {
		end--
	}
	return rows[:end]
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
