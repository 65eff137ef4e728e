package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newDatabaseCmd creates the 'database' command group for schema management.
func newDatabaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "database",
		Short: "Manage the wsmonitor database schema",
	}
	cmd.AddCommand(newDatabaseInitCmd())
	cmd.AddCommand(newDatabaseResetCmd())
	return cmd
}

func newDatabaseInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the metric type and websites table",
		Long: `Creates the database schema. Safe to re-run against an already
initialized database.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Store().InitSchema(cmd.Context()); err != nil {
				return fmt.Errorf("init schema: %w", err)
			}
			cmd.Println("Schema initialized.")
			return nil
		},
	}
}

func newDatabaseResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop the websites table and the metric type",
		Long: `Drops the entire schema, destroying all websites and their metric
histories. Requires --force.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return errors.New("refusing to drop the schema without --force")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Store().ResetSchema(cmd.Context()); err != nil {
				return fmt.Errorf("reset schema: %w", err)
			}
			cmd.Println("Schema dropped.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm destroying all monitoring data")
	return cmd
}
