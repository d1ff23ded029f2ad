package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/restorecheck/libs/config"
	"github.com/md-rashed-zaman/restorecheck/libs/runtime"
	"github.com/spf13/cobra"
)

const (
	serviceName = "restore-harness"

	formatPretty = "pretty"
	formatJSON   = "json"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Checks that a Kafka topic survives a backup, delete and restore intact",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("log-level", config.String("LOG_LEVEL", "info"), "log level (debug|info|warn|error)")
	persistent.String("log-format", config.String("LOG_FORMAT", "json"), "log format (json|console)")
	persistent.String("format", config.String("OUTPUT_FORMAT", formatPretty), "output format (pretty|json)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newBenchReportCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

func loggerFor(cmd *cobra.Command) (*slog.Logger, error) {
	flags := cmd.Flags()
	level, err := flags.GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("parse --log-level: %w", err)
	}
	format, err := flags.GetString("log-format")
	if err != nil {
		return nil, fmt.Errorf("parse --log-format: %w", err)
	}
	return runtime.NewLogger(serviceName, runtime.LogOptions{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	}), nil
}

func outputFormat(cmd *cobra.Command) (string, error) {
	v, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", fmt.Errorf("parse --format: %w", err)
	}
	switch f := strings.ToLower(strings.TrimSpace(v)); f {
	case formatPretty, formatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported --format %q (want pretty or json)", v)
	}
}
