package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jormala/tablewatch/internal/engine"
	"github.com/jormala/tablewatch/internal/registry"
)

func newResyncCmd() *cobra.Command {
	var (
		flagAll     bool
		flagProject string
	)

	cmd := &cobra.Command{
		Use:   "resync [<tableID>]",
		Short: "Re-download watched tables now",
		Long: `Run the download pipeline for one watched table (or all of them with
--all) without waiting for the scheduler. Success updates the stored
freshness signal; failures leave the record untouched so the next scheduled
pass retries from the same baseline.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !flagAll {
				return fmt.Errorf("specify a table ID or --all")
			}

			if err := resolvedCfg.RequireConnection(); err != nil {
				return err
			}

			logger := buildLogger()

			reg, err := openRegistry(logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			targets, err := resolveTargets(reg, args, flagAll, flagProject)
			if err != nil {
				return err
			}

			prompter := newTerminalPrompter(logger, nil)

			pipeline := engine.NewPipeline(&engine.PipelineConfig{
				Binary:   resolvedCfg.Tool.Binary,
				Host:     resolvedCfg.Connection.Host,
				Token:    resolvedCfg.Connection.Token,
				Meta:     newMetaClient(logger),
				Runner:   engine.NewExecRunner(logger),
				Prompter: prompter,
				Logger:   logger,
			})

			return runResyncs(cmd.Context(), reg, pipeline, targets)
		},
	}

	cmd.Flags().BoolVar(&flagAll, "all", false, "resync every watched table")
	cmd.Flags().StringVar(&flagProject, "project", "", "project identifier (defaults to connection.project)")

	return cmd
}

// resolveTargets returns the records to resync: every record with --all,
// otherwise the single named table.
func resolveTargets(reg *registry.Registry, args []string, all bool, projectFlag string) ([]registry.Record, error) {
	if all {
		records := reg.ListAll()
		if len(records) == 0 {
			return nil, fmt.Errorf("no tables watched")
		}

		return records, nil
	}

	project, err := resolveProject(projectFlag)
	if err != nil {
		return nil, err
	}

	rec, ok := reg.Get(project, args[0])
	if !ok {
		return nil, fmt.Errorf("table %s is not watched (see 'tablewatch list')", args[0])
	}

	return []registry.Record{*rec}, nil
}

// runResyncs runs the pipeline per record and applies success outcomes.
// A fatal failure on any record fails the command, but only after every
// record has been attempted.
func runResyncs(ctx context.Context, reg *registry.Registry, pipeline *engine.Pipeline, targets []registry.Record) error {
	fatal := 0

	for i := range targets {
		rec := &targets[i]
		outcome := pipeline.Run(ctx, rec)

		switch {
		case outcome.Succeeded():
			if err := engine.ApplyOutcome(ctx, reg, rec, &outcome); err != nil {
				return err
			}

			note := ""
			if outcome.Status == engine.OutcomeWorkaround {
				note = " (empty table, placeholder written)"
			}

			fmt.Printf("Resynced %s%s\n", rec.Table, note)

		case outcome.Status == engine.OutcomeTransient:
			fmt.Printf("Resync of %s deferred: %s (will retry on next pass)\n",
				rec.Table, outcome.Kind)

		default:
			fatal++

			fmt.Printf("Resync of %s failed: %s\n", rec.Table, outcome.Detail)
		}
	}

	if fatal > 0 {
		return fmt.Errorf("%d of %d resyncs failed", fatal, len(targets))
	}

	return nil
}
