package reports

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/metrics"
	"github.com/daniel7634/amzwatch/internal/monitor"
)

// Request bounds.
const (
	MaxCompetitors    = 10
	MaxWindowDays     = 30
	DefaultWindowDays = 7
	DefaultReportType = "competitor_analysis"
)

var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// SubmitResult is the outcome of a report submission.
type SubmitResult struct {
	JobID string
	// Existing is true when a completed job with identical parameters
	// already ran today and its ID is returned instead of a new one.
	Existing bool
	// Warning is set when the job row exists but could not be queued.
	// The job stays pending and can be re-enqueued.
	Warning string
}

// Service accepts report requests, deduplicates them per UTC day, and
// hands accepted jobs to the worker queue.
type Service struct {
	store  monitor.ReportStore
	queue  monitor.TaskQueue
	ids    monitor.IDGenerator
	clock  monitor.Clock
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(
	store monitor.ReportStore,
	queue monitor.TaskQueue,
	ids monitor.IDGenerator,
	clock monitor.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{store: store, queue: queue, ids: ids, clock: clock, logger: logger}
}

// Submit validates and registers a report request. Identical parameters
// submitted twice on the same UTC day return the first completed job.
func (s *Service) Submit(ctx context.Context, params monitor.ReportParameters) (SubmitResult, error) {
	params, err := normalize(params)
	if err != nil {
		return SubmitResult{}, err
	}

	hash, err := ParametersHash(params)
	if err != nil {
		return SubmitResult{}, err
	}

	now := s.clock.Now().UTC()
	dayStart := now.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	existing, err := s.store.FindCompletedByHash(ctx, hash, dayStart, dayEnd)
	if err == nil {
		s.logger.Info("report request deduplicated",
			zap.String("job_id", existing.ID),
			zap.String("parameters_hash", hash),
		)
		return SubmitResult{JobID: existing.ID, Existing: true}, nil
	}
	if !errors.Is(err, monitor.ErrNotFound) {
		return SubmitResult{}, err
	}

	id, err := s.ids.NewID()
	if err != nil {
		return SubmitResult{}, err
	}
	job := monitor.ReportJob{
		ID:             id,
		JobType:        params.ReportType,
		Parameters:     params,
		ParametersHash: hash,
		Status:         monitor.ReportPending,
		CreatedAt:      now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return SubmitResult{}, err
	}
	metrics.ObserveReportJob(string(monitor.ReportPending))

	task := monitor.ReportTask{JobID: id, Parameters: params}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		// The pending row survives; operators can re-enqueue it once
		// the queue recovers.
		s.logger.Warn("report job created but not queued",
			zap.String("job_id", id),
			zap.Error(err),
		)
		return SubmitResult{JobID: id, Warning: "job accepted but queueing is delayed"}, nil
	}

	s.logger.Info("report job queued",
		zap.String("job_id", id),
		zap.String("main_asin", params.MainASIN),
		zap.Int("competitors", len(params.CompetitorASINs)),
	)
	return SubmitResult{JobID: id}, nil
}

// normalize validates a request and fills defaults.
func normalize(params monitor.ReportParameters) (monitor.ReportParameters, error) {
	if !asinPattern.MatchString(params.MainASIN) {
		return params, monitor.Validationf("main_asin must be a 10-character ASIN")
	}
	if len(params.CompetitorASINs) == 0 {
		return params, monitor.Validationf("at least one competitor ASIN is required")
	}
	if len(params.CompetitorASINs) > MaxCompetitors {
		return params, monitor.Validationf("at most %d competitor ASINs are allowed", MaxCompetitors)
	}
	for _, asin := range params.CompetitorASINs {
		if !asinPattern.MatchString(asin) {
			return params, monitor.Validationf("competitor ASIN %q is not a 10-character ASIN", asin)
		}
		if asin == params.MainASIN {
			return params, monitor.Validationf("main ASIN cannot appear among competitors")
		}
	}
	if params.WindowDays == 0 {
		params.WindowDays = DefaultWindowDays
	}
	if params.WindowDays < 1 || params.WindowDays > MaxWindowDays {
		return params, monitor.Validationf("window_size must be between 1 and %d days", MaxWindowDays)
	}
	if params.ReportType == "" {
		params.ReportType = DefaultReportType
	}
	return params, nil
}
