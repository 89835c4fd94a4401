package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newReportWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report-worker",
		Short: "Run the report generation worker",
		Long: `Consumes report tasks from the queue and generates competitor
analysis content. Requires the pubsub queue backend when run as a
separate process from the API server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.ReportWorker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
