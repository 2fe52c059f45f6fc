package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	apperrors "allocator/internal/errors"
	"allocator/internal/services"
	api "allocator/pkg/contracts/api/v1"
)

type applyOptions struct {
	sheet      string
	targets    []string
	percent    float64
	mode       string
	filters    []string
	allNumeric bool
	outDir     string
	format     string
}

// columnFilter is one parsed --filter flag
type columnFilter struct {
	column string
	values []string
}

func newApplyCmd(c *cli) *cobra.Command {
	var o applyOptions

	cmd := &cobra.Command{
		Use:   "apply FILE",
		Short: "Revise the filtered rows and write output_<timestamp> into --out",
		Example: `  revise apply sales.csv --target SL_Q --percent 10 --mode increase --filter STORE=S001,S002
  revise apply plan.xlsx --sheet Sales --all-numeric --percent 5 --mode decrease --format xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filters, err := parseFilters(o.filters)
			if err != nil {
				return err
			}

			id, resp, err := c.load(ctx, args[0], o.sheet)
			if err != nil {
				return err
			}
			if resp.Status == api.UploadStatusSheetRequired {
				return apperrors.NewInvalidParameterError("%s is a workbook, pick a sheet with --sheet", args[0]).
					WithContext("sheets", resp.Sheets)
			}

			for _, f := range filters {
				state, err := c.service.SetSelection(ctx, id, f.column, f.values)
				if err != nil {
					return err
				}
				c.logger.DebugContext(ctx, "filter applied",
					slog.String("column", f.column),
					slog.Int("matched_rows", state.MatchedRows))
			}

			result, err := c.service.Revise(ctx, id, services.RevisionInput{
				Percent:         o.percent,
				Mode:            o.mode,
				Targets:         o.targets,
				ApplyAllNumeric: o.allNumeric,
			})
			if err != nil {
				return err
			}

			path, err := c.service.ExportFile(ctx, id, o.format, o.outDir)
			if err != nil {
				return err
			}

			s := result.Summary
			c.logger.InfoContext(ctx, "revision written",
				slog.String("path", path),
				slog.String("mode", s.Mode),
				slog.Float64("percent", s.Percent),
				slog.Any("targets", s.Targets),
				slog.Int("rows_revised", s.RowsRevised),
				slog.Int("rows_total", s.RowsTotal))
			fmt.Fprintf(c.stdout, "%d of %d rows revised (%s %g%%, x%g) on %s\n",
				s.RowsRevised, s.RowsTotal, s.Mode, s.Percent, s.Multiplier, strings.Join(s.Targets, ", "))
			fmt.Fprintln(c.stdout, path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.sheet, "sheet", "", "workbook sheet to read")
	flags.StringSliceVarP(&o.targets, "target", "t", nil, "numeric column to revise, repeatable")
	flags.Float64VarP(&o.percent, "percent", "p", 0, "percentage to apply")
	flags.StringVarP(&o.mode, "mode", "m", "", "increase, decrease or direct")
	flags.StringArrayVarP(&o.filters, "filter", "f", nil, `COLUMN=v1,v2 selection, repeatable; quote values holding commas: COLUMN="a, b",c`)
	flags.BoolVar(&o.allNumeric, "all-numeric", false, "revise every numeric column")
	flags.StringVarP(&o.outDir, "out", "o", ".", "output directory")
	flags.StringVar(&o.format, "format", "", "csv or xlsx (default from config)")
	cmd.MarkFlagRequired("percent")
	cmd.MarkFlagRequired("mode")
	cmd.MarkFlagsMutuallyExclusive("target", "all-numeric")

	return cmd
}

// parseFilters turns COLUMN=v1,v2 flags into selections. The value list is
// read as one CSV record, so a value holding a comma is written "a, b".
// Repeating a column adds to its values.
func parseFilters(raw []string) ([]columnFilter, error) {
	var out []columnFilter
	index := make(map[string]int)
	for _, r := range raw {
		column, list, ok := strings.Cut(r, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, apperrors.NewInvalidParameterError("filter %q must look like COLUMN=value[,value]", r)
		}

		values, err := splitValues(list)
		if err != nil {
			return nil, apperrors.NewInvalidParameterError("filter %q: %v", r, err)
		}

		if i, seen := index[column]; seen {
			out[i].values = append(out[i].values, values...)
			continue
		}
		index[column] = len(out)
		out = append(out, columnFilter{column: column, values: values})
	}
	return out, nil
}

func splitValues(list string) ([]string, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	rd := csv.NewReader(strings.NewReader(list))
	rd.TrimLeadingSpace = true
	record, err := rd.Read()
	if err != nil {
		return nil, err
	}

	var values []string
	for _, v := range record {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}
