// Package table holds the in-memory tabular model shared by the engine.
//
// A Table is an ordered list of equal-length columns. Each column is either
// numeric ([]float64, NaN marks a missing cell) or categorical ([]string, an
// empty or whitespace-only cell is missing). Kinds are never mixed within a
// column.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the inferred type of a column
type Kind int

const (
	// Categorical columns hold raw text
	Categorical Kind = iota
	// Numeric columns hold float64 values with NaN as missing
	Numeric
)

// String returns the lower-case kind name used in API responses
func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

// Column is a tagged union: exactly one of Text or Values is populated, according to Kind
type Column struct {
	Name   string
	Kind   Kind
	Text   []string
	Values []float64
}

// NewCategorical builds a categorical column over values. The slice is not copied.
func NewCategorical(name string, values []string) *Column {
	return &Column{Name: name, Kind: Categorical, Text: values}
}

// NewNumeric builds a numeric column over values. The slice is not copied.
func NewNumeric(name string, values []float64) *Column {
	return &Column{Name: name, Kind: Numeric, Values: values}
}

// Len returns the number of cells
func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Values)
	}
	return len(c.Text)
}

// IsMissing reports whether cell i is missing
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Values[i])
	}
	return strings.TrimSpace(c.Text[i]) == ""
}

// Cell renders cell i as text. Numeric cells use the shortest representation
// that round-trips; missing numeric cells render as the empty string.
func (c *Column) Cell(i int) string {
	if c.Kind == Numeric {
		return FormatFloat(c.Values[i])
	}
	return c.Text[i]
}

// Clone returns a deep copy of the column
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Text != nil {
		out.Text = append([]string(nil), c.Text...)
	}
	if c.Values != nil {
		out.Values = append([]float64(nil), c.Values...)
	}
	return out
}

// FormatFloat renders v in shortest round-trip form, or "" for NaN
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Table is an ordered set of equal-length columns
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New builds a table, rejecting duplicate names and ragged columns
func New(columns ...*Column) (*Table, error) {
	t := &Table{
		columns: make([]*Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		if err := t.add(col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) add(col *Column) error {
	if _, dup := t.index[col.Name]; dup {
		return fmt.Errorf("duplicate column %q", col.Name)
	}
	if len(t.columns) > 0 && col.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", col.Name, col.Len(), t.rows)
	}
	if len(t.columns) == 0 {
		t.rows = col.Len()
	}
	t.index[col.Name] = len(t.columns)
	t.columns = append(t.columns, col)
	return nil
}

// Rows returns the row count
func (t *Table) Rows() int { return t.rows }

// Width returns the column count
func (t *Table) Width() int { return len(t.columns) }

// Columns returns the columns in order. Callers must not modify the returned slice.
func (t *Table) Columns() []*Column { return t.columns }

// Names returns the column names in order
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// NamesOfKind returns the names of all columns of kind k, in table order
func (t *Table) NamesOfKind(k Kind) []string {
	var names []string
	for _, c := range t.columns {
		if c.Kind == k {
			names = append(names, c.Name)
		}
	}
	return names
}

// Clone returns a deep copy sharing no slices with t
func (t *Table) Clone() *Table {
	out := &Table{
		columns: make([]*Column, len(t.columns)),
		index:   make(map[string]int, len(t.columns)),
		rows:    t.rows,
	}
	for i, c := range t.columns {
		out.columns[i] = c.Clone()
		out.index[c.Name] = i
	}
	return out
}

// Set places col in the table: an existing column of the same name is replaced in
// position, otherwise col is appended. The column length must match the row count.
func (t *Table) Set(col *Column) error {
	if col.Len() != t.rows && len(t.columns) > 0 {
		return fmt.Errorf("column %q has %d rows, table has %d", col.Name, col.Len(), t.rows)
	}
	if i, ok := t.index[col.Name]; ok {
		t.columns[i] = col
		return nil
	}
	return t.add(col)
}

// Row renders row i as text in column order
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.columns))
	for j, c := range t.columns {
		out[j] = c.Cell(i)
	}
	return out
}
