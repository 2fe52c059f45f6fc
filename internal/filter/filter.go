// Package filter computes cascading categorical filters over a table.
package filter

import (
	"sort"

	apperrors "allocator/internal/errors"
	"allocator/internal/table"
)

// Selection maps a categorical column to the values picked for it.
// An empty or absent entry places no constraint on that column.
type Selection map[string][]string

// Clone returns a deep copy
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for k, v := range s {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Active reports whether any column carries a constraint
func (s Selection) Active() bool {
	for _, v := range s {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

// Mask selects rows, one entry per table row
type Mask []bool

// Count returns the number of selected rows
func (m Mask) Count() int {
	n := 0
	for _, ok := range m {
		if ok {
			n++
		}
	}
	return n
}

// All returns a mask selecting every one of n rows
func All(n int) Mask {
	m := make(Mask, n)
	for i := range m {
		m[i] = true
	}
	return m
}

// ComputeMask ANDs the selections of every constrained column. Within a column a
// row matches when its text equals any selected value; missing cells never match.
func ComputeMask(t *table.Table, sel Selection) (Mask, error) {
	if err := validateKeys(t, sel); err != nil {
		return nil, err
	}
	return mask(t, sel, ""), nil
}

// ComputeOptions returns the sorted distinct values of target among the rows that
// satisfy every selection except target's own.
func ComputeOptions(t *table.Table, sel Selection, target string) ([]string, error) {
	col, err := categorical(t, target)
	if err != nil {
		return nil, err
	}
	if err := validateKeys(t, sel); err != nil {
		return nil, err
	}
	return options(col, mask(t, sel, target)), nil
}

// AllOptions computes options for every categorical column of t.
// Selection keys that do not name a categorical column are ignored.
func AllOptions(t *table.Table, sel Selection) map[string][]string {
	clean := make(Selection, len(sel))
	for k, v := range sel {
		if col, ok := t.Column(k); ok && col.Kind == table.Categorical {
			clean[k] = v
		}
	}

	out := make(map[string][]string)
	for _, name := range t.NamesOfKind(table.Categorical) {
		col, _ := t.Column(name)
		out[name] = options(col, mask(t, clean, name))
	}
	return out
}

func mask(t *table.Table, sel Selection, skip string) Mask {
	m := All(t.Rows())
	for name, values := range sel {
		if name == skip || len(values) == 0 {
			continue
		}
		col, _ := t.Column(name)
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		for i := range m {
			if !m[i] {
				continue
			}
			if col.IsMissing(i) {
				m[i] = false
				continue
			}
			_, ok := set[col.Cell(i)]
			m[i] = ok
		}
	}
	return m
}

func options(col *table.Column, m Mask) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for i, ok := range m {
		if !ok || col.IsMissing(i) {
			continue
		}
		v := col.Cell(i)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func validateKeys(t *table.Table, sel Selection) error {
	for name := range sel {
		if _, err := categorical(t, name); err != nil {
			return err
		}
	}
	return nil
}

func categorical(t *table.Table, name string) (*table.Column, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, apperrors.NewInvalidParameterError("unknown column %q", name)
	}
	if col.Kind != table.Categorical {
		return nil, apperrors.NewInvalidParameterError("column %q is not categorical", name)
	}
	return col, nil
}
