// Package scheduler runs the dispatch loop: on every tick it selects
// the ASINs due for scraping, submits them as one provider batch, and
// records the run so the completion webhook can be correlated back.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/metrics"
	"github.com/daniel7634/amzwatch/internal/monitor"
)

// Config tunes the Scheduler.
type Config struct {
	Interval   time.Duration
	BatchLimit int
	WebhookURL string
}

// Scheduler drives periodic batch submission.
type Scheduler struct {
	cfg      Config
	statuses monitor.StatusStore
	provider monitor.ScrapeProvider
	runs     monitor.RunStore
	clock    monitor.Clock
	retry    monitor.RetryConfig
	logger   *zap.Logger
}

// New creates a Scheduler.
func New(
	cfg Config,
	statuses monitor.StatusStore,
	provider monitor.ScrapeProvider,
	runs monitor.RunStore,
	clock monitor.Clock,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		statuses: statuses,
		provider: provider,
		runs:     runs,
		clock:    clock,
		retry: monitor.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.25,
		},
		logger: logger,
	}
}

// Run ticks until the context is cancelled. The first tick fires
// immediately so a restart does not wait a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_limit", s.cfg.BatchLimit),
	)

	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one dispatch cycle.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()

	asins, err := s.statuses.SelectEligible(ctx, now, s.cfg.BatchLimit)
	if err != nil {
		return err
	}
	if len(asins) == 0 {
		metrics.ObserveScrapeBatch("empty")
		s.logger.Debug("no asins due for scraping")
		return nil
	}

	var handle monitor.RunHandle
	submitErr := monitor.Retry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		handle, err = s.provider.StartBatch(ctx, asins, s.cfg.WebhookURL)
		return err
	})
	if submitErr != nil {
		metrics.ObserveScrapeBatch("failed")
		s.logger.Warn("batch submission failed, marking batch failed",
			zap.Int("asin_count", len(asins)),
			zap.Error(submitErr),
		)
		if _, err := s.statuses.Transition(ctx, asins, monitor.StatusFailed, nil); err != nil {
			return err
		}
		return submitErr
	}

	// A lost correlation row is recoverable: the webhook reports a gap
	// and the stale-running reclaim puts the batch back in rotation.
	if err := s.runs.RecordRun(ctx, monitor.ScrapeRun{
		RunID:       handle.RunID,
		ASINs:       asins,
		SubmittedAt: now,
	}); err != nil {
		s.logger.Error("recording scrape run failed",
			zap.String("run_id", handle.RunID),
			zap.Error(err),
		)
	}

	result, err := s.statuses.Transition(ctx, asins, monitor.StatusRunning, &now)
	if err != nil {
		return err
	}
	if !result.OK() {
		s.logger.Warn("some asins did not transition to running",
			zap.Strings("failed", result.Failed),
		)
	}

	metrics.ObserveScrapeBatch("submitted")
	s.logger.Info("scrape batch submitted",
		zap.String("run_id", handle.RunID),
		zap.Int("asin_count", len(asins)),
	)
	return nil
}
