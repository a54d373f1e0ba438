package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/jormala/tablewatch/internal/meta"
	"github.com/jormala/tablewatch/internal/registry"
)

func newAddCmd() *cobra.Command {
	var (
		flagLimit   int
		flagHeader  bool
		flagProject string
	)

	cmd := &cobra.Command{
		Use:   "add <tableID> <localPath>",
		Short: "Watch a table, binding it to a local export file",
		Long: `Register a watch record for a previously exported table. The record's
freshness signal is resolved from the remote service when reachable, so the
first scheduled pass does not re-download an unchanged table. Adding a table
that is already watched replaces the record.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			project, err := resolveProject(flagProject)
			if err != nil {
				return err
			}

			if flagLimit < 0 {
				return fmt.Errorf("--limit must be >= 0, got %d", flagLimit)
			}

			localPath, err := normalizePath(args[1])
			if err != nil {
				return err
			}

			reg, err := openRegistry(logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			rec := &registry.Record{
				Project:        project,
				Table:          args[0],
				LocalPath:      localPath,
				LastSignal:     fetchSignalBestEffort(cmd, args[0], logger),
				RowLimit:       flagLimit,
				IncludeHeaders: flagHeader,
			}

			if err := reg.Upsert(cmd.Context(), rec); err != nil {
				return err
			}

			fmt.Printf("Watching %s -> %s\n", rec.Table, rec.LocalPath)

			return nil
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", 0, "row limit for re-exports (0 = unlimited)")
	cmd.Flags().BoolVar(&flagHeader, "header", false, "include a header row in re-exports")
	cmd.Flags().StringVar(&flagProject, "project", "", "project identifier (defaults to connection.project)")

	return cmd
}

// normalizePath makes the local path absolute and NFC-normalized, so records
// created on macOS (NFD filenames) and Linux agree on identity.
func normalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path %s: %w", path, err)
	}

	return norm.NFC.String(abs), nil
}

// fetchSignalBestEffort resolves the table's current freshness signal when
// a connection is configured. An unreachable service is not an error here:
// the record starts with an empty signal and the first pass resolves it.
func fetchSignalBestEffort(cmd *cobra.Command, tableID string, logger *slog.Logger) string {
	if resolvedCfg.RequireConnection() != nil {
		return ""
	}

	client := meta.NewClient(resolvedCfg.Connection.Host, resolvedCfg.Connection.Token, nil, logger)

	signal, err := client.FreshnessSignal(cmd.Context(), tableID)
	if err != nil {
		logger.Warn("could not resolve initial freshness signal",
			slog.String("table", tableID),
			slog.String("error", err.Error()),
		)

		return ""
	}

	return signal
}
