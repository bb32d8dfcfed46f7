package main

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"pivot/internal/presets"
	"pivot/internal/report"
	"pivot/pkg/records"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show how a report's columns are classified and laid out",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			table := newTable(out, []string{"Label", "Role", "Declared"})
			for i, l := range v.Set.Labels {
				role := "dimension"
				if v.Classes.IsMeasure(l) {
					role = "measure"
				}
				declared := report.TypeUnknown
				if i < len(v.Columns) {
					declared = v.Columns[i].Type
				}
				table.Append([]string{l, role, string(declared)})
			}
			table.Render()

			fmt.Fprintf(out, "rows: %v\ncols: %v\nvals: %v\naggregator: %s\nrenderer: %s\nrecords: %d of %d\n",
				v.Layout.Rows, v.Layout.Cols, v.Layout.Vals,
				v.Layout.AggregatorName, v.Layout.RendererName,
				v.Loaded, v.Total)
			return nil
		}),
	}
}

func newDrillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "List the records behind one pivot cell",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			pairs, _ := cmd.Flags().GetStringArray("filter")
			withDates, _ := cmd.Flags().GetBool("dates")
			filters, err := parsePairs(pairs)
			if err != nil {
				return err
			}

			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if withDates {
				if _, err := a.session.AddDateDerivatives(); err != nil {
					return err
				}
			}

			res := a.session.DrillDown(filters)
			out := cmd.OutOrStdout()
			if res.Empty() {
				fmt.Fprintln(out, "No matching rows for this cell.")
				return nil
			}
			table := newTable(out, v.Set.Labels)
			for _, r := range res.Rows {
				table.Append(recordRow(v.Set.Labels, r))
			}
			table.Render()
			return nil
		}),
	}
	cmd.Flags().StringArray("filter", nil, "cell filter as label=value (repeatable)")
	cmd.Flags().Bool("dates", false, "add derived date attributes so they can be filtered on")
	return cmd
}

func recordRow(labels []string, r records.Record) []string {
	row := make([]string, len(labels))
	for i, l := range labels {
		if r[l] != nil {
			row[i] = records.KeyString(r[l])
		}
	}
	return row
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert a rendered pivot table (HTML) to CSV",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			htmlPath, _ := cmd.Flags().GetString("html")
			outPath, _ := cmd.Flags().GetString("out")
			if htmlPath == "" {
				return fmt.Errorf("--html is required")
			}
			if _, err := a.open(cmd.Context()); err != nil {
				return err
			}

			f, err := os.Open(htmlPath)
			if err != nil {
				return fmt.Errorf("open rendered table: %w", err)
			}
			defer f.Close()

			csv, err := a.session.ExportHTML(f)
			if err != nil {
				return err
			}
			if outPath == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), csv)
				return err
			}
			if outPath == "" {
				if outPath, err = a.session.ExportFilename(); err != nil {
					return err
				}
			}
			if err := writeFile(outPath, csv); err != nil {
				return err
			}
			a.log.Info("exported", "path", outPath)
			return nil
		}),
	}
	cmd.Flags().String("html", "", "file holding the renderer's HTML output")
	cmd.Flags().StringP("out", "o", "", `output path ("-" for stdout, default <report>_pivot.csv)`)
	return cmd
}

func newDeriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive",
		Short: "Show the derived date attributes available for a report",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			set, err := a.session.AddDateDerivatives()
			if err != nil {
				return err
			}

			ev := a.session.Evaluator()
			table := newTable(cmd.OutOrStdout(), []string{"Attribute", "Source", "First value"})
			for _, attr := range set {
				first := ""
				if v.Set.Len() > 0 {
					if val := ev.Eval(attr, v.Set.Rows[0]); val != nil {
						first = records.KeyString(val)
					}
				}
				table.Append([]string{attr.Label(), attr.Source, first})
			}
			table.Render()
			return nil
		}),
	}
}

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage saved pivot layouts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List my presets and presets shared with me",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			if _, err := a.open(cmd.Context()); err != nil {
				return err
			}
			l, err := a.session.ListPresets(cmd.Context())
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), []string{"ID", "Name", "Owner", "Visibility", "Updated"})
			add := func(p presets.Preset) {
				table.Append([]string{p.ID, p.Name, p.Owner, string(p.Visibility), p.UpdatedAt.Format("2006-01-02 15:04")})
			}
			for _, p := range l.Mine {
				add(p)
			}
			for _, p := range l.Shared {
				add(p)
			}
			table.Render()
			return nil
		}),
	}

	save := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the report's current layout",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			shared, _ := cmd.Flags().GetBool("shared")
			vis := presets.Private
			if shared {
				vis = presets.Shared
			}
			if _, err := a.open(cmd.Context()); err != nil {
				return err
			}
			p, err := a.session.SavePreset(cmd.Context(), args[0], vis)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		}),
	}
	save.Flags().Bool("shared", false, "make the preset visible to other users")

	load := &cobra.Command{
		Use:   "load ID",
		Short: "Make a preset the report's current layout",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if _, err := a.open(cmd.Context()); err != nil {
				return err
			}
			l, err := a.session.LoadPreset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if l == nil {
				return fmt.Errorf("preset %s not found", args[0])
			}
			if err := a.session.Remember(*l); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rows: %v\ncols: %v\nvals: %v\naggregator: %s\n", l.Rows, l.Cols, l.Vals, l.AggregatorName)
			return nil
		}),
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one of my presets",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if _, err := a.open(cmd.Context()); err != nil {
				return err
			}
			return a.session.DeletePreset(cmd.Context(), args[0])
		}),
	}

	cmd.AddCommand(list, save, load, del)
	return cmd
}
