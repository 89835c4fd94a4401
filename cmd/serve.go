package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/api"
)

func newServeCmd() *cobra.Command {
	var withScheduler, withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Starts the HTTP server exposing the provider webhook and the
report endpoints. By default the scheduler and the report worker run in
the same process, which the in-memory queue backend requires; disable
them when running split processes over Pub/Sub.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, withScheduler, withWorker)
		},
	}

	cmd.Flags().BoolVar(&withScheduler, "scheduler", true, "run the dispatch scheduler in-process")
	cmd.Flags().BoolVar(&withWorker, "worker", true, "run the report worker in-process")
	return cmd
}

func runServe(cmd *cobra.Command, withScheduler, withWorker bool) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	server := api.NewServer(
		a.Correlator(),
		a.ReportService(),
		a.Reports,
		a.Ready,
		a.Config.HTTP.RequestTimeout,
		a.Logger,
	)
	httpServer := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)

	if withScheduler {
		go func() {
			if err := a.Scheduler().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("scheduler: %w", err)
			}
		}()
	}
	if withWorker {
		go func() {
			if err := a.ReportWorker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("report worker: %w", err)
			}
		}()
	}
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", a.Config.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.Logger.Info("http server stopped")
	return nil
}
