// Package monitor holds the domain model for the product monitoring
// pipeline: tracked identifiers, daily snapshots, alert rules and events,
// and report jobs, together with the interfaces the pipeline components
// depend on.
package monitor

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a tracked ASIN.
type Status string

// Tracked ASIN statuses persisted in asin_status.status.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// MaxRetries is the retry-count gate for failed ASINs. Once an ASIN has
// failed this many times it is no longer selected for scraping.
const MaxRetries = 3

// StaleRunningAfter is how long an ASIN may sit in running before the
// scheduler reclaims it. Covers lost webhooks and crashed ingests.
const StaleRunningAfter = 5 * time.Minute

// RescrapeAfter is the minimum age of a completed ASIN before it becomes
// eligible again.
const RescrapeAfter = 24 * time.Hour

// TrackedProduct is one row of asin_status.
type TrackedProduct struct {
	ASIN             string
	Status           Status
	RetryCount       int
	LastTransitionAt *time.Time
}

// TransitionResult reports the outcome of a batch status transition.
// ASINs missing from the store land in Failed rather than being created.
type TransitionResult struct {
	Succeeded []string
	Failed    []string
}

// OK reports whether every requested ASIN transitioned.
func (r TransitionResult) OK() bool {
	return len(r.Failed) == 0
}

// Product is one row of the product catalog, refreshed on every ingest.
type Product struct {
	ASIN       string
	Title      string
	Categories []string
}

// Ranking is a single best-seller rank mention. The first ranking of a
// snapshot is the primary one used for rank alerts.
type Ranking struct {
	Rank     int    `json:"rank"`
	Category string `json:"category"`
}

// Snapshot is one observation of an ASIN on a given day. Snapshots are
// append-only history keyed by (asin, snapshot_date); writes are upserts
// on that key so duplicated webhook deliveries rewrite the same row.
type Snapshot struct {
	ASIN         string
	SnapshotDate time.Time // date component only, UTC
	Price        *decimal.Decimal
	Rating       *decimal.Decimal
	ReviewCount  *int
	Rankings     []Ranking
	Raw          json.RawMessage
}

// PrimaryRanking returns the first ranking, or nil if there is none.
func (s Snapshot) PrimaryRanking() *Ranking {
	if len(s.Rankings) == 0 {
		return nil
	}
	return &s.Rankings[0]
}

// RuleType selects the metric an alert rule applies to.
type RuleType string

// Metric types understood by the evaluator.
const (
	RulePrice  RuleType = "price"
	RuleRank   RuleType = "rank"
	RuleRating RuleType = "rating"
)

// Direction constrains the sign of a change before a rule triggers.
type Direction string

// Change directions.
const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionAny      Direction = "any"
)

// ThresholdKind states whether a rule threshold is a percentage of the
// previous value or an absolute delta.
type ThresholdKind string

// Threshold kinds.
const (
	ThresholdPercentage ThresholdKind = "percentage"
	ThresholdAbsolute   ThresholdKind = "absolute"
)

// AlertRule is an operator-managed rule, read-only to the pipeline.
type AlertRule struct {
	ID            string
	Type          RuleType
	Direction     Direction
	Threshold     decimal.Decimal
	ThresholdKind ThresholdKind
	Active        bool
}

// AlertEvent is produced by the evaluator and written once. Duplicate
// suppression is left to the operator-facing layer.
type AlertEvent struct {
	ASIN          string
	RuleID        string
	Message       string
	PreviousValue decimal.Decimal
	CurrentValue  decimal.Decimal
	Change        decimal.Decimal
	SnapshotDate  time.Time
}

// ScrapeRun records which ASIN batch an external run was submitted for,
// so webhook signals can be correlated back deterministically.
type ScrapeRun struct {
	RunID       string
	ASINs       []string
	SubmittedAt time.Time
}

// RunHandle is what the scraping provider returns when a batch run is
// accepted.
type RunHandle struct {
	RunID     string
	StartedAt time.Time
}

// ScrapedItem is one normalized dataset item.
type ScrapedItem struct {
	ASIN        string
	Title       string
	Categories  []string
	Price       *decimal.Decimal
	Rating      *decimal.Decimal
	ReviewCount *int
	Rankings    []Ranking
	Raw         json.RawMessage
}

// Dataset is a fetched, parsed result set plus the raw payload for audit.
type Dataset struct {
	Items []ScrapedItem
	Raw   []byte
}

// ReportStatus is the lifecycle state of a report job.
type ReportStatus string

// Report job statuses persisted in report_jobs.status.
const (
	ReportPending   ReportStatus = "pending"
	ReportRunning   ReportStatus = "running"
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s ReportStatus) Terminal() bool {
	return s == ReportCompleted || s == ReportFailed
}

// ReportParameters are the client-supplied inputs of a comparison report.
// The JSON field names participate in the idempotency hash.
type ReportParameters struct {
	MainASIN        string   `json:"main_asin"`
	CompetitorASINs []string `json:"competitor_asins"`
	WindowDays      int      `json:"window_size"`
	ReportType      string   `json:"report_type"`
}

// ReportJob is one row of report_jobs.
type ReportJob struct {
	ID             string
	JobType        string
	Parameters     ReportParameters
	ParametersHash string
	Status         ReportStatus
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
	ResultRef      string
}

// ReportResult holds generated report content plus metadata.
type ReportResult struct {
	JobID      string
	ReportType string
	Content    string
	Metadata   json.RawMessage
	CreatedAt  time.Time
}

// ReportTask is the queue payload carrying a generation request to the
// async worker.
type ReportTask struct {
	JobID      string           `json:"job_id"`
	Parameters ReportParameters `json:"parameters"`
}
