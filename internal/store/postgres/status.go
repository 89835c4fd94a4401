package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// StatusStore implements monitor.StatusStore on the asin_status table.
type StatusStore struct {
	db     DB
	logger *zap.Logger
}

// NewStatusStore creates a StatusStore.
func NewStatusStore(db DB, logger *zap.Logger) *StatusStore {
	return &StatusStore{db: db, logger: logger}
}

const selectEligibleSQL = `
SELECT asin FROM asin_status
WHERE status = 'pending'
   OR (status = 'completed' AND task_timestamp <= $1)
   OR (status = 'running' AND task_timestamp < $2)
   OR (status = 'failed' AND retry_count < $3)
ORDER BY task_timestamp ASC NULLS FIRST
LIMIT $4`

// SelectEligible returns up to limit ASINs due for scraping, oldest
// transition first so starved rows surface ahead of fresh ones.
func (s *StatusStore) SelectEligible(ctx context.Context, now time.Time, limit int) ([]string, error) {
	completedBefore := now.Add(-monitor.RescrapeAfter)
	staleBefore := now.Add(-monitor.StaleRunningAfter)

	rows, err := s.db.Query(ctx, selectEligibleSQL, completedBefore, staleBefore, monitor.MaxRetries, limit)
	if err != nil {
		return nil, monitor.Persistence("select eligible asins", err)
	}
	defer rows.Close()

	var asins []string
	for rows.Next() {
		var asin string
		if err := rows.Scan(&asin); err != nil {
			return nil, monitor.Persistence("scan eligible asin", err)
		}
		asins = append(asins, asin)
	}
	if err := rows.Err(); err != nil {
		return nil, monitor.Persistence("iterate eligible asins", err)
	}
	return asins, nil
}

const selectExistingSQL = `SELECT asin FROM asin_status WHERE asin = ANY($1)`

const transitionBulkSQL = `
UPDATE asin_status
SET status = $2,
    task_timestamp = COALESCE($3, task_timestamp),
    retry_count = CASE WHEN $2 = 'failed' THEN retry_count + 1 ELSE retry_count END
WHERE asin = ANY($1)`

const transitionOneSQL = `
UPDATE asin_status
SET status = $2,
    task_timestamp = COALESCE($3, task_timestamp),
    retry_count = CASE WHEN $2 = 'failed' THEN retry_count + 1 ELSE retry_count END
WHERE asin = $1`

// Transition applies a batch status change. ASINs with no asin_status
// row are reported failed and never created; tracking membership is an
// operator decision, not a pipeline side effect. The batch is updated in
// one statement, falling back to per-row updates so a single bad row
// cannot sink the whole batch.
func (s *StatusStore) Transition(ctx context.Context, asins []string, status monitor.Status, ts *time.Time) (monitor.TransitionResult, error) {
	if len(asins) == 0 {
		return monitor.TransitionResult{}, nil
	}
	if !status.Valid() {
		return monitor.TransitionResult{}, monitor.Validationf("unknown status %q", status)
	}
	if status == monitor.StatusRunning && ts == nil {
		return monitor.TransitionResult{}, monitor.Validationf("running transition requires a timestamp")
	}

	existing, err := s.selectExisting(ctx, asins)
	if err != nil {
		return monitor.TransitionResult{}, err
	}

	var result monitor.TransitionResult
	var present []string
	for _, asin := range asins {
		if existing[asin] {
			present = append(present, asin)
		} else {
			result.Failed = append(result.Failed, asin)
		}
	}
	if len(present) == 0 {
		return result, nil
	}

	_, err = s.db.Exec(ctx, transitionBulkSQL, present, string(status), ts)
	if err == nil {
		result.Succeeded = present
		return result, nil
	}
	s.logger.Warn("bulk status transition failed, retrying per row",
		zap.String("status", string(status)),
		zap.Int("batch_size", len(present)),
		zap.Error(err),
	)

	for _, asin := range present {
		if _, err := s.db.Exec(ctx, transitionOneSQL, asin, string(status), ts); err != nil {
			s.logger.Error("status transition failed",
				zap.String("asin", asin),
				zap.String("status", string(status)),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, asin)
			continue
		}
		result.Succeeded = append(result.Succeeded, asin)
	}
	return result, nil
}

func (s *StatusStore) selectExisting(ctx context.Context, asins []string) (map[string]bool, error) {
	rows, err := s.db.Query(ctx, selectExistingSQL, asins)
	if err != nil {
		return nil, monitor.Persistence("select existing asins", err)
	}
	defer rows.Close()

	existing := make(map[string]bool, len(asins))
	for rows.Next() {
		var asin string
		if err := rows.Scan(&asin); err != nil {
			return nil, monitor.Persistence("scan existing asin", err)
		}
		existing[asin] = true
	}
	if err := rows.Err(); err != nil {
		return nil, monitor.Persistence("iterate existing asins", err)
	}
	return existing, nil
}
