package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"allocator/internal/table"
)

// DefaultSheetName names the single sheet of exported workbooks
const DefaultSheetName = "output"

// XLSXWriter writes a table as a single-sheet workbook
type XLSXWriter struct {
	sheet string
}

// NewXLSXWriter creates a workbook writer
func NewXLSXWriter(opts WriteOptions) *XLSXWriter {
	sheet := opts.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return &XLSXWriter{sheet: sheet}
}

// Extension returns the file extension without the dot
func (x *XLSXWriter) Extension() string { return FormatXLSX }

// ContentType returns the MIME type for download responses
func (x *XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// WriteTable streams t into one sheet. Numeric cells are stored as numbers and
// missing cells are left empty.
func (x *XLSXWriter) WriteTable(w io.Writer, t *table.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", x.sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(x.sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	header := make([]interface{}, t.Width())
	for j, name := range t.Names() {
		header[j] = name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	cols := t.Columns()
	for i := 0; i < t.Rows(); i++ {
		row := make([]interface{}, len(cols))
		for j, col := range cols {
			switch {
			case col.IsMissing(i):
				row[j] = nil
			case col.Kind == table.Numeric:
				row[j] = col.Values[i]
			default:
				row[j] = col.Text[i]
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
