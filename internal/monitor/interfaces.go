package monitor

import (
	"context"
	"time"
)

// StatusStore is the authoritative state per tracked ASIN.
type StatusStore interface {
	// SelectEligible returns up to limit ASINs due for scraping, oldest
	// transition first. Eligibility: pending; completed older than a day;
	// running stale past the reclaim window; failed under the retry gate.
	SelectEligible(ctx context.Context, now time.Time, limit int) ([]string, error)
	// Transition applies a batch status change. ts is required for the
	// running transition; failed increments retry_count. ASINs missing
	// from the store are reported failed, never created.
	Transition(ctx context.Context, asins []string, status Status, ts *time.Time) (TransitionResult, error)
}

// CatalogStore persists the product catalog.
type CatalogStore interface {
	UpsertProducts(ctx context.Context, products []Product) error
	FetchProducts(ctx context.Context, asins []string) ([]Product, error)
}

// SnapshotStore persists and reads daily observations.
type SnapshotStore interface {
	UpsertSnapshots(ctx context.Context, snapshots []Snapshot) error
	// Latest returns the most recent snapshot for an ASIN, or ErrNotFound.
	Latest(ctx context.Context, asin string) (*Snapshot, error)
	// PreviousBefore returns the newest snapshot strictly older than date,
	// or ErrNotFound.
	PreviousBefore(ctx context.Context, asin string, date time.Time) (*Snapshot, error)
	// Window returns snapshots within [from, to], oldest first.
	Window(ctx context.Context, asin string, from, to time.Time) ([]Snapshot, error)
}

// RuleSource yields the active alert rules for an evaluation cycle.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]AlertRule, error)
}

// AlertSink records triggered alert events.
type AlertSink interface {
	RecordEvents(ctx context.Context, events []AlertEvent) error
}

// RunStore persists the external-run-to-batch correlation written at
// submission time.
type RunStore interface {
	RecordRun(ctx context.Context, run ScrapeRun) error
	// BatchForRun resolves the ASIN batch of a run, or ErrNotFound.
	BatchForRun(ctx context.Context, runID string) ([]string, error)
}

// ReportStore persists report jobs and their results.
type ReportStore interface {
	CreateJob(ctx context.Context, job ReportJob) error
	GetJob(ctx context.Context, id string) (*ReportJob, error)
	// FindCompletedByHash returns a completed job with the given
	// parameters hash created within [dayStart, dayEnd), or ErrNotFound.
	FindCompletedByHash(ctx context.Context, hash string, dayStart, dayEnd time.Time) (*ReportJob, error)
	// UpdateStatus moves a job between states, stamping started_at on
	// running and completed_at on terminal states.
	UpdateStatus(ctx context.Context, id string, status ReportStatus, errMsg string) error
	SaveResult(ctx context.Context, result ReportResult) error
	GetResult(ctx context.Context, jobID string) (*ReportResult, error)
}

// ScrapeProvider is the black-box external scraping service.
type ScrapeProvider interface {
	// StartBatch submits one asynchronous batch run. Completion arrives
	// later through the webhook named by webhookURL.
	StartBatch(ctx context.Context, asins []string, webhookURL string) (RunHandle, error)
}

// DatasetFetcher retrieves and normalizes the result set a webhook
// notification points at.
type DatasetFetcher interface {
	FetchDataset(ctx context.Context, datasetID string) (Dataset, error)
}

// TaskQueue carries report generation tasks to the async worker.
type TaskQueue interface {
	Enqueue(ctx context.Context, task ReportTask) error
	Dequeue(ctx context.Context) (ReportTask, error)
	Close() error
}

// Archive stores raw payloads for audit and returns a reference URI.
type Archive interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
