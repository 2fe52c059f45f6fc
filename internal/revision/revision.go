// Package revision applies a percentage adjustment to numeric columns over a
// row mask and flags every row as REVISED or SAME.
//
// Apply is pure: it returns a new table and never touches its input.
package revision

import (
	"math"

	apperrors "allocator/internal/errors"
	"allocator/internal/filter"
	"allocator/internal/table"
)

const (
	// DefaultSuffix names derived columns unless Params.Suffix is set
	DefaultSuffix = "_REVISED"
	// DefaultStatusColumn names the audit column unless Params.StatusColumn is set
	DefaultStatusColumn = "STATUS"

	StatusRevised = "REVISED"
	StatusSame    = "SAME"
)

// Params configures one revision
type Params struct {
	Targets         []string
	Percent         float64
	Mode            Mode
	ApplyAllNumeric bool
	Suffix          string
	StatusColumn    string
}

// Summary describes a finished revision
type Summary struct {
	Mode        string   `json:"mode"`
	Percent     float64  `json:"percent"`
	Multiplier  float64  `json:"multiplier"`
	Targets     []string `json:"targets"`
	Columns     []string `json:"columns"`
	RowsRevised int      `json:"rows_revised"`
	RowsTotal   int      `json:"rows_total"`
}

// Apply computes the revised table for the rows selected by mask
func Apply(t *table.Table, mask filter.Mask, p Params) (*table.Table, Summary, error) {
	if err := validate(t, mask, p); err != nil {
		return nil, Summary{}, err
	}

	targets, err := resolveTargets(t, p)
	if err != nil {
		return nil, Summary{}, err
	}

	suffix := p.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	statusName := p.StatusColumn
	if statusName == "" {
		statusName = DefaultStatusColumn
	}

	factor := p.Mode.Multiplier(p.Percent)
	out := t.Clone()
	derived := make([]string, 0, len(targets))

	for _, name := range targets {
		src, _ := t.Column(name)
		values := make([]float64, len(src.Values))
		copy(values, src.Values)
		for i, selected := range mask {
			if selected {
				values[i] = src.Values[i] * factor
			}
		}
		col := table.NewNumeric(name+suffix, values)
		if err := out.Set(col); err != nil {
			return nil, Summary{}, err
		}
		derived = append(derived, col.Name)
	}

	status := make([]string, len(mask))
	for i, selected := range mask {
		if selected {
			status[i] = StatusRevised
		} else {
			status[i] = StatusSame
		}
	}
	if err := out.Set(table.NewCategorical(statusName, status)); err != nil {
		return nil, Summary{}, err
	}

	return out, Summary{
		Mode:        p.Mode.String(),
		Percent:     p.Percent,
		Multiplier:  factor,
		Targets:     targets,
		Columns:     append(derived, statusName),
		RowsRevised: mask.Count(),
		RowsTotal:   t.Rows(),
	}, nil
}

func validate(t *table.Table, mask filter.Mask, p Params) error {
	if math.IsNaN(p.Percent) || math.IsInf(p.Percent, 0) {
		return apperrors.NewInvalidParameterError("percent must be a finite number")
	}
	if p.Percent < 0 {
		return apperrors.NewInvalidParameterError("percent must not be negative, got %v", p.Percent)
	}
	if !p.Mode.Valid() {
		return apperrors.NewInvalidParameterError("unknown revision mode")
	}
	if len(mask) != t.Rows() {
		return apperrors.NewInvalidParameterError("mask has %d entries for %d rows", len(mask), t.Rows())
	}
	if len(p.Targets) == 0 && !p.ApplyAllNumeric {
		return apperrors.NewInvalidParameterError("at least one target column is required")
	}
	return nil
}

// resolveTargets returns the distinct numeric columns to revise, in request order.
// With ApplyAllNumeric every numeric column of the table is used.
func resolveTargets(t *table.Table, p Params) ([]string, error) {
	if p.ApplyAllNumeric {
		all := t.NamesOfKind(table.Numeric)
		if len(all) == 0 {
			return nil, apperrors.NewNoNumericColumnsError("table has no numeric columns to revise")
		}
		return all, nil
	}

	seen := make(map[string]bool, len(p.Targets))
	out := make([]string, 0, len(p.Targets))
	for _, name := range p.Targets {
		if seen[name] {
			continue
		}
		col, ok := t.Column(name)
		if !ok {
			return nil, apperrors.NewInvalidParameterError("unknown target column %q", name)
		}
		if col.Kind != table.Numeric {
			return nil, apperrors.NewInvalidParameterError("target column %q is not numeric", name)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}
