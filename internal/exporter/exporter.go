package exporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "allocator/internal/errors"
	"allocator/internal/table"
)

// Supported artifact formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// TableWriter serializes a table into one artifact format
type TableWriter interface {
	WriteTable(w io.Writer, t *table.Table) error
	Extension() string
	ContentType() string
}

// WriteOptions configures artifact writing
type WriteOptions struct {
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
	SheetName string
}

// ForFormat returns the writer for format, csv or xlsx
func ForFormat(format string, opts WriteOptions) (TableWriter, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return NewCSVWriter(opts), nil
	case FormatXLSX:
		return NewXLSXWriter(opts), nil
	default:
		return nil, apperrors.NewInvalidParameterError("unsupported export format %q", format)
	}
}

// FileName returns the artifact name for a result produced at now
func FileName(now time.Time, ext string) string {
	return fmt.Sprintf("output_%s.%s", now.Format("20060102_150405"), ext)
}

// WriteFile writes t into dir under FileName and returns the full path
func WriteFile(dir string, now time.Time, w TableWriter, t *table.Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, FileName(now, w.Extension()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if err := w.WriteTable(file, t); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return path, nil
}
