package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	apperrors "allocator/internal/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decoder turns raw bytes into UTF-8 text, or reports that the encoding does not fit
type decoder struct {
	name   string
	decode func([]byte) ([]byte, bool)
}

// encodings are tried in priority order
var encodings = []decoder{
	{name: "utf-8", decode: decodeUTF8},
	{name: "latin-1", decode: decodeLatin1},
	{name: "windows-1252", decode: decodeWindows1252},
}

// delimiters are tried in priority order for every encoding
var delimiters = []rune{',', ';', '\t', '|'}

func decodeUTF8(data []byte) ([]byte, bool) {
	data = bytes.TrimPrefix(data, utf8BOM)
	return data, utf8.Valid(data)
}

// decodeLatin1 refuses input with bytes in 0x80-0x9F: ISO-8859-1 maps them to C1
// controls, which in practice means the file is Windows-1252.
func decodeLatin1(data []byte) ([]byte, bool) {
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			return nil, false
		}
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return out, err == nil
}

func decodeWindows1252(data []byte) ([]byte, bool) {
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	return out, err == nil
}

// delimiterName renders a delimiter for reports
func delimiterName(d rune) string {
	if d == '\t' {
		return `\t`
	}
	return string(d)
}

func (in *Ingestor) readDelimited(ctx context.Context, data []byte) ([]string, [][]string, Report, error) {
	for _, enc := range encodings {
		text, ok := enc.decode(data)
		if !ok {
			in.logger.DebugContext(ctx, "encoding rejected", "encoding", enc.name)
			continue
		}
		for _, delim := range delimiters {
			if err := ctx.Err(); err != nil {
				return nil, nil, Report{}, err
			}
			// Each attempt reads from the start of its own reader.
			header, rows, ok := parseDelimited(text, delim)
			if !ok {
				continue
			}
			return header, rows, Report{Encoding: enc.name, Delimiter: delimiterName(delim)}, nil
		}
	}
	return nil, nil, Report{}, apperrors.NewUnreadableFormatError(
		"no supported encoding and delimiter combination produced two or more columns", nil)
}

// parseDelimited accepts text when the header has at least two fields and no
// data row is wider than the header
func parseDelimited(text []byte, delim rune) ([]string, [][]string, bool) {
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil || len(header) < 2 {
		return nil, nil, false
	}

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, false
		}
		if len(record) > len(header) {
			return nil, nil, false
		}
		rows = append(rows, record)
	}
	return header, rows, true
}
