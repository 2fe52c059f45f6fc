package ingest

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	apperrors "allocator/internal/errors"
)

func openWorkbook(data []byte) (*excelize.File, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewUnreadableFormatError("cannot open workbook", err)
	}
	return f, nil
}

func listSheets(data []byte) ([]string, error) {
	f, err := openWorkbook(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewUnreadableFormatError("workbook has no sheets", nil)
	}
	return sheets, nil
}

// readWorkbook reads one sheet. The first row with any content is the header;
// a header narrower than the data is widened with blank names.
func readWorkbook(data []byte, sheet string) ([]string, [][]string, Report, error) {
	f, err := openWorkbook(data)
	if err != nil {
		return nil, nil, Report{}, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, Report{}, apperrors.NewUnreadableFormatError("workbook has no sheets", nil)
	}
	if sheet == "" {
		return nil, nil, Report{}, apperrors.NewInvalidParameterError("a sheet must be selected").
			WithContext("sheets", sheets)
	}
	if !contains(sheets, sheet) {
		return nil, nil, Report{}, apperrors.NewInvalidParameterError("sheet %q does not exist", sheet).
			WithContext("sheets", sheets)
	}

	all, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, Report{}, apperrors.NewUnreadableFormatError(fmt.Sprintf("cannot read sheet %q", sheet), err)
	}

	start := 0
	for start < len(all) && isBlankRow(all[start]) {
		start++
	}
	if start == len(all) {
		return nil, nil, Report{}, apperrors.NewUnreadableFormatError(fmt.Sprintf("sheet %q has no header row", sheet), nil)
	}

	header := all[start]
	rows := all[start+1:]
	width := len(header)
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for len(header) < width {
		header = append(header, "")
	}

	return header, rows, Report{Sheet: sheet}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
