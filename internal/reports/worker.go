package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/metrics"
	"github.com/daniel7634/amzwatch/internal/monitor"
)

// Generator produces report content for a task.
type Generator interface {
	Generate(ctx context.Context, task monitor.ReportTask) (monitor.ReportResult, error)
}

// WorkerConfig tunes the report worker's retry envelope and timeouts.
type WorkerConfig struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	AttemptTimeout time.Duration
	SoftTimeout    time.Duration
}

// Worker consumes report tasks and drives each job to a terminal state.
type Worker struct {
	cfg       WorkerConfig
	queue     monitor.TaskQueue
	store     monitor.ReportStore
	generator Generator
	logger    *zap.Logger
}

// NewWorker creates a Worker.
func NewWorker(
	cfg WorkerConfig,
	queue monitor.TaskQueue,
	store monitor.ReportStore,
	generator Generator,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		cfg:       cfg,
		queue:     queue,
		store:     store,
		generator: generator,
		logger:    logger,
	}
}

// Run consumes tasks until the context is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("report worker started",
		zap.Int("max_attempts", w.cfg.MaxAttempts),
		zap.Duration("attempt_timeout", w.cfg.AttemptTimeout),
	)
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Info("report worker stopped")
				return ctx.Err()
			}
			return err
		}
		w.Process(ctx, task)
	}
}

// Process drives one task to completed or failed. Generation errors are
// retried inside the task with backoff; the job never goes back on the
// queue.
func (w *Worker) Process(ctx context.Context, task monitor.ReportTask) {
	logger := w.logger.With(zap.String("job_id", task.JobID))

	if err := w.store.UpdateStatus(ctx, task.JobID, monitor.ReportRunning, ""); err != nil {
		logger.Error("marking job running failed, dropping task", zap.Error(err))
		return
	}
	metrics.ObserveReportJob(string(monitor.ReportRunning))

	retry := monitor.RetryConfig{
		MaxAttempts:    w.cfg.MaxAttempts,
		InitialBackoff: w.cfg.BackoffBase,
		MaxBackoff:     w.cfg.BackoffCap,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		// Content generation failures are all worth retrying: the data
		// window and the LLM provider both recover on their own.
		ShouldRetry: func(error) bool { return true },
		OnRetry: func(attempt int, err error) {
			note := fmt.Sprintf("attempt %d of %d failed: %v", attempt, w.cfg.MaxAttempts, err)
			logger.Warn("report generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			if updateErr := w.store.UpdateStatus(ctx, task.JobID, monitor.ReportRunning, note); updateErr != nil {
				logger.Error("recording attempt failure failed", zap.Error(updateErr))
			}
		},
	}

	var result monitor.ReportResult
	err := monitor.Retry(ctx, retry, func(ctx context.Context) error {
		var attemptErr error
		result, attemptErr = w.attempt(ctx, task, logger)
		return attemptErr
	})
	if err != nil {
		logger.Error("report generation exhausted retries", zap.Error(err))
		if updateErr := w.store.UpdateStatus(ctx, task.JobID, monitor.ReportFailed, err.Error()); updateErr != nil {
			logger.Error("marking job failed failed", zap.Error(updateErr))
		}
		metrics.ObserveReportJob(string(monitor.ReportFailed))
		return
	}

	if err := w.store.SaveResult(ctx, result); err != nil {
		logger.Error("saving report result failed", zap.Error(err))
		if updateErr := w.store.UpdateStatus(ctx, task.JobID, monitor.ReportFailed, err.Error()); updateErr != nil {
			logger.Error("marking job failed failed", zap.Error(updateErr))
		}
		metrics.ObserveReportJob(string(monitor.ReportFailed))
		return
	}
	if err := w.store.UpdateStatus(ctx, task.JobID, monitor.ReportCompleted, ""); err != nil {
		logger.Error("marking job completed failed", zap.Error(err))
		return
	}
	metrics.ObserveReportJob(string(monitor.ReportCompleted))
	logger.Info("report job completed")
}

// attempt runs one generation try under the hard attempt timeout, with
// a soft-timeout warning so slow runs are visible before they are
// killed.
func (w *Worker) attempt(ctx context.Context, task monitor.ReportTask, logger *zap.Logger) (monitor.ReportResult, error) {
	attemptCtx := ctx
	if w.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, w.cfg.AttemptTimeout)
		defer cancel()
	}

	if w.cfg.SoftTimeout > 0 {
		softTimer := time.AfterFunc(w.cfg.SoftTimeout, func() {
			logger.Warn("report generation exceeding soft time limit",
				zap.Duration("soft_timeout", w.cfg.SoftTimeout),
			)
		})
		defer softTimer.Stop()
	}

	return w.generator.Generate(attemptCtx, task)
}
