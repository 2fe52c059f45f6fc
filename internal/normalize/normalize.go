// Package normalize converts text columns that mostly hold numbers into numeric columns.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"allocator/internal/table"
)

// DefaultThreshold is the parse ratio a column must exceed to become numeric
const DefaultThreshold = 0.5

// stripped are removed from a cell before parsing
var stripped = map[rune]bool{
	'₹': true,
	'$': true,
	'€': true,
	'%': true,
	',': true,
}

// Normalizer decides, per column, whether text becomes numeric
type Normalizer struct {
	// Threshold is compared with parsed/non-blank cells; the column converts only when the ratio is strictly greater
	Threshold float64
}

// New returns a Normalizer with the given threshold
func New(threshold float64) *Normalizer {
	return &Normalizer{Threshold: threshold}
}

// Column returns a numeric copy of col when enough of its cells parse, otherwise col itself.
// Numeric columns are returned unchanged. Cells that do not parse become NaN.
func (n *Normalizer) Column(col *table.Column) *table.Column {
	if col.Kind == table.Numeric {
		return col
	}

	values, parsed, nonBlank := convert(col.Text)
	if nonBlank == 0 || float64(parsed)/float64(nonBlank) <= n.Threshold {
		return col
	}
	return table.NewNumeric(col.Name, values)
}

// Coerce converts col to numeric whatever its parse ratio. Cells that do not
// parse become NaN.
func Coerce(col *table.Column) *table.Column {
	if col.Kind == table.Numeric {
		return col
	}
	values, _, _ := convert(col.Text)
	return table.NewNumeric(col.Name, values)
}

func convert(cells []string) (values []float64, parsed, nonBlank int) {
	values = make([]float64, len(cells))
	for i, cell := range cells {
		values[i] = math.NaN()
		if strings.TrimSpace(cell) == "" {
			continue
		}
		nonBlank++
		if v, ok := parse(Clean(cell)); ok {
			values[i] = v
			parsed++
		}
	}
	return values, parsed, nonBlank
}

// Table applies Column to every column and returns a new table
func (n *Normalizer) Table(t *table.Table) *table.Table {
	cols := make([]*table.Column, 0, t.Width())
	for _, c := range t.Columns() {
		cols = append(cols, n.Column(c))
	}
	// Names and lengths come from a valid table, so New cannot fail.
	out, _ := table.New(cols...)
	return out
}

// Clean removes currency symbols, percent signs, thousands separators and whitespace
func Clean(cell string) string {
	return strings.Map(func(r rune) rune {
		if stripped[r] || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cell)
}

// parse accepts finite decimal numbers only; "NaN", "Inf" and hex floats are text
func parse(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E' {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
