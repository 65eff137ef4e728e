package cmd

import (
	"fmt"
	"net/url"
	"regexp"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newURLCmd creates the 'url' command group for managing the watched URLs.
func newURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Manage the watched website registry",
	}
	cmd.AddCommand(newURLAddCmd())
	cmd.AddCommand(newURLRemoveCmd())
	cmd.AddCommand(newURLListCmd())
	cmd.AddCommand(newURLStatusCmd())
	return cmd
}

func newURLAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <url> [regexp]",
		Short: "Add a website to the registry",
		Long: `Adds a website. The running checker daemon picks it up on its next
registry poll. The optional regular expression is matched against each
response body.`,
		Args: cobra.RangeArgs(1, 2),

		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := url.Parse(args[0])
			if err != nil || target.Scheme == "" || target.Host == "" {
				return fmt.Errorf("invalid url %q", args[0])
			}

			var pattern *string
			if len(args) == 2 {
				if _, err := regexp.Compile(args[1]); err != nil {
					return fmt.Errorf("invalid regexp: %w", err)
				}
				pattern = &args[1]
			}

			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			id, err := a.Store().AddURL(cmd.Context(), args[0], pattern)
			if err != nil {
				return fmt.Errorf("add url: %w", err)
			}
			cmd.Printf("Added %s with id %d.\n", args[0], id)
			return nil
		},
	}
}

func newURLRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove a website from the registry",
		Long: `Removes a website and its metric history. A check already in flight
for the URL may still complete; its result is discarded at persist time.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := a.Store().RemoveURL(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("remove url: %w", err)
			}
			if !removed {
				return fmt.Errorf("%s is not in the registry", args[0])
			}
			cmd.Printf("Removed %s.\n", args[0])
			return nil
		},
	}
}

func newURLListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the watched websites",

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			urls, err := a.Store().ListURLs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list urls: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tURL\tREGEXP")
			for _, u := range urls {
				pattern := ""
				if u.Regexp != nil {
					pattern = *u.Regexp
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.URL, pattern)
			}
			return w.Flush()
		},
	}
}

func newURLStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest check result per website",

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := a.Store().Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("query status: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tURL\tLAST CHECK\tCODE\tRESPONSE MS\tREGEX")
			for _, row := range rows {
				if row.Latest == nil {
					fmt.Fprintf(w, "%d\t%s\t-\t-\t-\t-\n", row.ID, row.URL)
					continue
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%t\n",
					row.ID, row.URL,
					row.Latest.Timestamp.Format("2006-01-02 15:04:05"),
					row.Latest.ReturnCode,
					row.Latest.ResponseTime,
					row.Latest.RegexCheck,
				)
			}
			return w.Flush()
		},
	}
}
