package main

import (
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/benchreport"
	"github.com/spf13/cobra"
)

func newBenchReportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "bench-report <results.json>",
		Short: "Render benchmark results as a markdown report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := benchreport.Load(args[0])
			if err != nil {
				return err
			}
			report := benchreport.Render(res, time.Now()) + "\n"
			if output == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), report)
				return err
			}
			return os.WriteFile(output, []byte(report), 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	return cmd
}
