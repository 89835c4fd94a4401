package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the dispatch scheduler",
		Long: `Runs only the periodic dispatch loop that selects due products
and submits scrape batches. Useful when the API server and the
scheduler are deployed as separate processes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.Scheduler().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
