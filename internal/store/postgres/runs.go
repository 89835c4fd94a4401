package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// RunStore implements monitor.RunStore on the scrape_runs table, the
// durable run-to-batch correlation written at submission time.
type RunStore struct {
	db DB
}

// NewRunStore creates a RunStore.
func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

const insertRunSQL = `
INSERT INTO scrape_runs (run_id, asins, submitted_at)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO NOTHING`

// RecordRun persists the ASIN batch submitted under a provider run ID.
func (s *RunStore) RecordRun(ctx context.Context, run monitor.ScrapeRun) error {
	asins, err := json.Marshal(run.ASINs)
	if err != nil {
		return monitor.Persistence("encode run batch", err)
	}
	if _, err := s.db.Exec(ctx, insertRunSQL, run.RunID, asins, run.SubmittedAt); err != nil {
		return monitor.Persistence("insert scrape run", err)
	}
	return nil
}

const batchForRunSQL = `SELECT asins FROM scrape_runs WHERE run_id = $1`

// BatchForRun resolves the ASIN batch submitted under runID.
func (s *RunStore) BatchForRun(ctx context.Context, runID string) ([]string, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, batchForRunSQL, runID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, monitor.ErrNotFound
	}
	if err != nil {
		return nil, monitor.Persistence("query scrape run", err)
	}

	var asins []string
	if err := json.Unmarshal(raw, &asins); err != nil {
		return nil, monitor.Persistence("decode run batch", err)
	}
	return asins, nil
}
