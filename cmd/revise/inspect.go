package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	api "allocator/pkg/contracts/api/v1"
)

func newInspectCmd(c *cli) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "List the sheets of a workbook or the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, resp, err := c.load(cmd.Context(), args[0], sheet)
			if err != nil {
				return err
			}

			if resp.Status == api.UploadStatusSheetRequired {
				fmt.Fprintf(c.stdout, "%s is a workbook, pick a sheet with --sheet:\n", args[0])
				for _, s := range resp.Sheets {
					fmt.Fprintf(c.stdout, "  %s\n", s)
				}
				return nil
			}

			state, err := c.service.Filters(cmd.Context(), id)
			if err != nil {
				return err
			}

			f := resp.File
			fmt.Fprintf(c.stdout, "%s: %d rows, %d columns (%s", f.Name, f.Rows, f.Columns, f.Kind)
			if f.Encoding != "" {
				fmt.Fprintf(c.stdout, ", %s, %s", f.Encoding, f.Delimiter)
			}
			if f.Sheet != "" {
				fmt.Fprintf(c.stdout, ", sheet %s", f.Sheet)
			}
			fmt.Fprintln(c.stdout, ")")

			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tKIND\tVALUES")
			for _, col := range resp.Columns {
				values := "-"
				if opts, ok := state.Options[col.Name]; ok {
					values = fmt.Sprint(len(opts))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", col.Name, col.Kind, values)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "workbook sheet to read")
	return cmd
}
