package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praksys/wsmonitor/internal/daemon"
)

// newCheckerCmd creates the 'checker' subcommand, which runs the website
// checking daemon until interrupted.
func newCheckerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checker",
		Short: "Starts the website checker daemon",
		Long: `Runs the checker daemon: polls the website registry, schedules each
URL on its check interval, performs the HTTP checks with a bounded worker
pool, and publishes every result to the metric queue.`,

		RunE: runCheckerCommand,
	}
}

func runCheckerCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := daemon.RunChecker(cmd.Context(), a); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run checker: %w", err)
	}
	return nil
}
