package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praksys/wsmonitor/internal/daemon"
)

// newDBUpdateCmd creates the 'dbupdate' subcommand, which runs the metric
// persisting daemon until interrupted.
func newDBUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dbupdate",
		Short: "Starts the metric persisting daemon",
		Long: `Runs the dbupdate daemon: consumes check results from the metric
queue and appends each one to its website's history in PostgreSQL.
Redelivered messages are filtered so every check is recorded exactly once.`,

		RunE: runDBUpdateCommand,
	}
}

func runDBUpdateCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := daemon.RunDBUpdate(cmd.Context(), a); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run dbupdate: %w", err)
	}
	return nil
}
