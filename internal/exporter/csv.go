package exporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"allocator/internal/table"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	opts WriteOptions
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(opts WriteOptions) *CSVWriter {
	return &CSVWriter{opts: opts}
}

// Extension returns the file extension without the dot
func (c *CSVWriter) Extension() string { return FormatCSV }

// ContentType returns the MIME type for download responses
func (c *CSVWriter) ContentType() string { return "text/csv; charset=utf-8" }

// WriteTable writes the header and every row of t. Numeric cells use the
// shortest round-trip form and missing cells are empty.
func (c *CSVWriter) WriteTable(w io.Writer, t *table.Table) error {
	if c.opts.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(t.Names()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i := 0; i < t.Rows(); i++ {
		if err := writer.Write(t.Row(i)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
