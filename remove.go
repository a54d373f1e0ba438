package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	var flagProject string

	cmd := &cobra.Command{
		Use:   "remove <tableID>",
		Short: "Stop watching a table",
		Long: `Delete the watch record for a table. The local export file is left in
place; only the tracking stops.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			project, err := resolveProject(flagProject)
			if err != nil {
				return err
			}

			reg, err := openRegistry(logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			if err := reg.Remove(cmd.Context(), project, args[0]); err != nil {
				return err
			}

			fmt.Printf("No longer watching %s\n", args[0])

			return nil
		},
	}

	cmd.Flags().StringVar(&flagProject, "project", "", "project identifier (defaults to connection.project)")

	return cmd
}
