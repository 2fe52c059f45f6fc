package exporter

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "allocator/internal/errors"
	"allocator/internal/table"
)

func resultTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New(
		table.NewCategorical("STORE", []string{"S1", "S2, North", "Café"}),
		table.NewNumeric("SL_Q", []float64{10, math.NaN(), 2.5}),
		table.NewNumeric("SL_Q_REVISED", []float64{11, math.NaN(), 2.5}),
		table.NewCategorical("STATUS", []string{"REVISED", "SAME", "SAME"}),
	)
	require.NoError(t, err)
	return tbl
}

func TestFileName(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 5, 7, 0, time.UTC)

	assert.Equal(t, "output_20261014_090507.csv", FileName(now, "csv"))
	assert.Regexp(t, regexp.MustCompile(`^output_\d{8}_\d{6}\.csv$`), FileName(time.Now(), FormatCSV))
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{format: "", wantExt: "csv"},
		{format: "csv", wantExt: "csv"},
		{format: "XLSX", wantExt: "xlsx"},
		{format: "pdf", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, err := ForFormat(tt.format, WriteOptions{})
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, w.Extension())
			assert.NotEmpty(t, w.ContentType())
		})
	}
}

func TestCSVWriter_WriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(WriteOptions{}).WriteTable(&buf, resultTable(t)))

	want := "STORE,SL_Q,SL_Q_REVISED,STATUS\n" +
		"S1,10,11,REVISED\n" +
		"\"S2, North\",,,SAME\n" +
		"Café,2.5,2.5,SAME\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVWriter_BOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(WriteOptions{BOMPrefix: true}).WriteTable(&buf, resultTable(t)))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte{0xEF, 0xBB, 0xBF}))
	assert.Contains(t, buf.String(), "STORE,SL_Q")
}

func TestCSVWriter_Float(t *testing.T) {
	a, b := 0.1, 0.2
	tbl, err := table.New(table.NewNumeric("V", []float64{a + b, 1e21, -0.5}))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(WriteOptions{}).WriteTable(&buf, tbl))
	assert.Equal(t, "V\n0.30000000000000004\n1000000000000000000000\n-0.5\n", buf.String())
}

func TestXLSXWriter_WriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewXLSXWriter(WriteOptions{}).WriteTable(&buf, resultTable(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DefaultSheetName}, f.GetSheetList())

	rows, err := f.GetRows(DefaultSheetName, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"STORE", "SL_Q", "SL_Q_REVISED", "STATUS"}, rows[0])
	assert.Equal(t, []string{"S1", "10", "11", "REVISED"}, rows[1])
	assert.Equal(t, "", rows[2][1])
	assert.Equal(t, "2.5", rows[3][1])
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := WriteFile(dir, now, NewCSVWriter(WriteOptions{}), resultTable(t))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "output_20260102_030405.csv"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "S1,10,11,REVISED")
}
