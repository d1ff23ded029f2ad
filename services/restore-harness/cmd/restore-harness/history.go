package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/config"
	"github.com/md-rashed-zaman/restorecheck/libs/db"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		databaseURL string
		topic       string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs recorded in Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if databaseURL == "" {
				if databaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
					return fmt.Errorf("--database-url not set: %w", err)
				}
			}
			pool, err := db.Open(cmd.Context(), databaseURL)
			if err != nil {
				return fmt.Errorf("history db: %w", err)
			}
			defer pool.Close()

			runs, err := history.NewRepository(pool).Recent(cmd.Context(), topic, limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == formatJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tRUN\tTOPIC\tVERDICT\tSTEP\tRESTORED\tMISMATCHES")
			for _, r := range runs {
				verdict := "pass"
				if !r.Passed {
					verdict = "fail"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\n",
					r.StartedAt.Local().Format(time.DateTime), r.RunID, r.Topic, verdict,
					r.FailedStep, r.Restored, r.Generated, r.Mismatches)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL holding restore_runs (default $DATABASE_URL)")
	cmd.Flags().StringVar(&topic, "topic", "", "only runs against this topic")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}
