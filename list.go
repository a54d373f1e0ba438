package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jormala/tablewatch/internal/registry"
)

// listEntry is the JSON shape for one watch record.
type listEntry struct {
	Project        string `json:"projectId"`
	Table          string `json:"resourceId"`
	LocalPath      string `json:"localPath"`
	LastSignal     string `json:"lastSignal"`
	RowLimit       int    `json:"rowLimit"`
	IncludeHeaders bool   `json:"includeHeaders"`
}

func newListCmd() *cobra.Command {
	var (
		flagProject string
		flagJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List watched tables",
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := buildLogger()

			reg, err := openRegistry(logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			var records []registry.Record
			if flagProject != "" {
				records = reg.ListByProject(flagProject)
			} else {
				records = reg.ListAll()
			}

			if flagJSON {
				return printJSON(records)
			}

			printTable(records)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagProject, "project", "", "restrict to one project")
	cmd.Flags().BoolVar(&flagJSON, "json", false, "output in JSON format")

	return cmd
}

func printJSON(records []registry.Record) error {
	entries := make([]listEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, listEntry{
			Project:        r.Project,
			Table:          r.Table,
			LocalPath:      r.LocalPath,
			LastSignal:     r.LastSignal,
			RowLimit:       r.RowLimit,
			IncludeHeaders: r.IncludeHeaders,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(entries)
}

func printTable(records []registry.Record) {
	if len(records) == 0 {
		fmt.Println("No tables watched.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tTABLE\tLOCAL PATH\tLAST SIGNAL\tLIMIT\tHEADER")

	for _, r := range records {
		limit := "unlimited"
		if r.RowLimit > 0 {
			limit = fmt.Sprintf("%d", r.RowLimit)
		}

		signal := r.LastSignal
		if signal == "" {
			signal = "(unresolved)"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			r.Project, r.Table, r.LocalPath, signal, limit, r.IncludeHeaders)
	}

	w.Flush()

	fmt.Printf("\n%d watched table(s)\n", len(records))
}
