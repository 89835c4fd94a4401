package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// ReportStore implements monitor.ReportStore on report_jobs and
// report_results.
type ReportStore struct {
	db DB
}

// NewReportStore creates a ReportStore.
func NewReportStore(db DB) *ReportStore {
	return &ReportStore{db: db}
}

const insertJobSQL = `
INSERT INTO report_jobs (id, job_type, parameters, parameters_hash, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// CreateJob persists a new pending job.
func (s *ReportStore) CreateJob(ctx context.Context, job monitor.ReportJob) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return monitor.Persistence("encode report parameters", err)
	}
	_, err = s.db.Exec(ctx, insertJobSQL,
		job.ID,
		job.JobType,
		params,
		job.ParametersHash,
		string(job.Status),
		job.CreatedAt,
	)
	if err != nil {
		return monitor.Persistence("insert report job", err)
	}
	return nil
}

const jobColumns = `id, job_type, parameters, parameters_hash, status, created_at, started_at, completed_at, error_message, result_ref`

const getJobSQL = `
SELECT ` + jobColumns + `
FROM report_jobs
WHERE id = $1`

// GetJob loads a job by ID.
func (s *ReportStore) GetJob(ctx context.Context, id string) (*monitor.ReportJob, error) {
	return scanJob(s.db.QueryRow(ctx, getJobSQL, id))
}

const findCompletedSQL = `
SELECT ` + jobColumns + `
FROM report_jobs
WHERE parameters_hash = $1
  AND status = 'completed'
  AND created_at >= $2
  AND created_at < $3
ORDER BY created_at DESC
LIMIT 1`

// FindCompletedByHash returns the newest completed job with the given
// parameters hash created within [dayStart, dayEnd).
func (s *ReportStore) FindCompletedByHash(ctx context.Context, hash string, dayStart, dayEnd time.Time) (*monitor.ReportJob, error) {
	return scanJob(s.db.QueryRow(ctx, findCompletedSQL, hash, dayStart, dayEnd))
}

const updateStatusSQL = `
UPDATE report_jobs
SET status = $2,
    error_message = $3,
    started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
    completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
WHERE id = $1`

// UpdateStatus moves a job between states, stamping started_at on the
// first running transition and completed_at on terminal states.
func (s *ReportStore) UpdateStatus(ctx context.Context, id string, status monitor.ReportStatus, errMsg string) error {
	tag, err := s.db.Exec(ctx, updateStatusSQL, id, string(status), errMsg)
	if err != nil {
		return monitor.Persistence("update report status", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

const saveResultSQL = `
INSERT INTO report_results (job_id, report_type, content, metadata, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (job_id) DO UPDATE
SET report_type = EXCLUDED.report_type,
    content = EXCLUDED.content,
    metadata = EXCLUDED.metadata,
    created_at = EXCLUDED.created_at`

// SaveResult stores generated report content. Rerunning a job replaces
// its previous result.
func (s *ReportStore) SaveResult(ctx context.Context, result monitor.ReportResult) error {
	_, err := s.db.Exec(ctx, saveResultSQL,
		result.JobID,
		result.ReportType,
		result.Content,
		[]byte(result.Metadata),
		result.CreatedAt,
	)
	if err != nil {
		return monitor.Persistence("insert report result", err)
	}
	return nil
}

const getResultSQL = `
SELECT job_id, report_type, content, metadata, created_at
FROM report_results
WHERE job_id = $1`

// GetResult loads the generated content for a job.
func (s *ReportStore) GetResult(ctx context.Context, jobID string) (*monitor.ReportResult, error) {
	var result monitor.ReportResult
	var metadata []byte
	err := s.db.QueryRow(ctx, getResultSQL, jobID).
		Scan(&result.JobID, &result.ReportType, &result.Content, &metadata, &result.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, monitor.ErrNotFound
	}
	if err != nil {
		return nil, monitor.Persistence("scan report result", err)
	}
	result.Metadata = metadata
	return &result, nil
}

func scanJob(row pgx.Row) (*monitor.ReportJob, error) {
	var job monitor.ReportJob
	var params []byte
	var status string
	var errMsg, resultRef *string

	err := row.Scan(
		&job.ID,
		&job.JobType,
		&params,
		&job.ParametersHash,
		&status,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&errMsg,
		&resultRef,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, monitor.ErrNotFound
	}
	if err != nil {
		return nil, monitor.Persistence("scan report job", err)
	}

	job.Status = monitor.ReportStatus(status)
	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return nil, monitor.Persistence("decode report parameters", err)
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if resultRef != nil {
		job.ResultRef = *resultRef
	}
	return &job, nil
}
