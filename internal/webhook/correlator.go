// Package webhook processes completion notifications from the scraping
// provider: it correlates a run back to its submitted ASIN batch,
// ingests the finished dataset, and evaluates alert rules on the fresh
// snapshots.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/alert"
	"github.com/daniel7634/amzwatch/internal/metrics"
	"github.com/daniel7634/amzwatch/internal/monitor"
	"github.com/daniel7634/amzwatch/internal/scrape"
)

// Provider webhook constants. A run is ingested only when both the
// event type and the resource status agree it succeeded.
const (
	EventRunSucceeded = "ACTOR.RUN.SUCCEEDED"
	StatusSucceeded   = "SUCCEEDED"
)

// Event is the provider's webhook notification payload.
type Event struct {
	EventType string    `json:"eventType"`
	CreatedAt time.Time `json:"createdAt"`
	EventData struct {
		ActorID    string `json:"actorId"`
		ActorRunID string `json:"actorRunId"`
	} `json:"eventData"`
	Resource struct {
		ID               string    `json:"id"`
		Status           string    `json:"status"`
		DefaultDatasetID string    `json:"defaultDatasetId"`
		StartedAt        time.Time `json:"startedAt"`
		FinishedAt       time.Time `json:"finishedAt"`
	} `json:"resource"`
}

// RunID returns the run identifier, preferring the event data over the
// resource.
func (e Event) RunID() string {
	if e.EventData.ActorRunID != "" {
		return e.EventData.ActorRunID
	}
	return e.Resource.ID
}

// Succeeded reports whether the notification signals a successful run.
func (e Event) Succeeded() bool {
	return e.EventType == EventRunSucceeded && e.Resource.Status == StatusSucceeded
}

// Summary describes what one notification did. It is always returned,
// even when processing fails, because the provider only needs a 200.
type Summary struct {
	RunID      string   `json:"run_id"`
	Outcome    string   `json:"outcome"`
	Completed  []string `json:"completed,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	Alerts     int      `json:"alerts"`
	ArchiveRef string   `json:"archive_ref,omitempty"`
}

// Notification outcomes reported in Summary.Outcome.
const (
	OutcomeIngested   = "ingested"
	OutcomeRunFailed  = "run_failed"
	OutcomeUnknownRun = "unknown_run"
	OutcomeError      = "error"
)

// Correlator turns webhook events into status transitions, snapshots,
// and alerts.
type Correlator struct {
	runs      monitor.RunStore
	fetcher   monitor.DatasetFetcher
	archive   monitor.Archive
	catalog   monitor.CatalogStore
	snapshots monitor.SnapshotStore
	statuses  monitor.StatusStore
	rules     monitor.RuleSource
	alerts    monitor.AlertSink
	clock     monitor.Clock
	logger    *zap.Logger
}

// NewCorrelator creates a Correlator.
func NewCorrelator(
	runs monitor.RunStore,
	fetcher monitor.DatasetFetcher,
	archive monitor.Archive,
	catalog monitor.CatalogStore,
	snapshots monitor.SnapshotStore,
	statuses monitor.StatusStore,
	rules monitor.RuleSource,
	alerts monitor.AlertSink,
	clock monitor.Clock,
	logger *zap.Logger,
) *Correlator {
	return &Correlator{
		runs:      runs,
		fetcher:   fetcher,
		archive:   archive,
		catalog:   catalog,
		snapshots: snapshots,
		statuses:  statuses,
		rules:     rules,
		alerts:    alerts,
		clock:     clock,
		logger:    logger,
	}
}

// Process handles one notification. It always returns a Summary; the
// error is informational for logging and never changes the HTTP
// response to the provider.
func (c *Correlator) Process(ctx context.Context, event Event) (Summary, error) {
	runID := event.RunID()
	summary := Summary{RunID: runID}

	batch, err := c.runs.BatchForRun(ctx, runID)
	unrecorded := errors.Is(err, monitor.ErrNotFound)
	if unrecorded {
		if !event.Succeeded() {
			// Correlation gap: without a run row a failure signal maps
			// to no ASINs. The stale-running reclaim will put any
			// affected ASINs back in rotation.
			c.logger.Warn("webhook for unknown run", zap.String("run_id", runID))
			metrics.ObserveWebhookEvent(event.EventType, OutcomeUnknownRun)
			summary.Outcome = OutcomeUnknownRun
			return summary, nil
		}
		// A successful run still names its ASINs in the dataset items,
		// so the scrape is ingested even though the correlation row was
		// never written.
		c.logger.Warn("success webhook for unrecorded run, ingesting from dataset",
			zap.String("run_id", runID))
		batch = nil
		err = nil
	}
	if err != nil {
		metrics.ObserveWebhookEvent(event.EventType, OutcomeError)
		summary.Outcome = OutcomeError
		return summary, err
	}

	if !event.Succeeded() {
		c.logger.Info("scrape run did not succeed",
			zap.String("run_id", runID),
			zap.String("event_type", event.EventType),
			zap.String("status", event.Resource.Status),
		)
		summary.Outcome = OutcomeRunFailed
		summary.Failed = batch
		c.transition(ctx, batch, monitor.StatusFailed, nil)
		metrics.ObserveWebhookEvent(event.EventType, OutcomeRunFailed)
		return summary, nil
	}

	dataset, err := c.fetcher.FetchDataset(ctx, event.Resource.DefaultDatasetID)
	if err != nil {
		c.logger.Error("dataset fetch failed, failing batch",
			zap.String("run_id", runID),
			zap.String("dataset_id", event.Resource.DefaultDatasetID),
			zap.Error(err),
		)
		summary.Outcome = OutcomeError
		summary.Failed = batch
		c.transition(ctx, batch, monitor.StatusFailed, nil)
		metrics.ObserveWebhookEvent(event.EventType, OutcomeError)
		return summary, err
	}

	now := c.clock.Now()
	summary.ArchiveRef = c.archiveRaw(ctx, runID, now, dataset.Raw)

	if unrecorded {
		batch = datasetASINs(dataset.Items)
	}
	scraped, missing := splitBatch(batch, dataset.Items)
	products := make([]monitor.Product, 0, len(dataset.Items))
	snapshots := make([]monitor.Snapshot, 0, len(dataset.Items))
	for _, item := range dataset.Items {
		products = append(products, scrape.ProductFromItem(item))
		snapshots = append(snapshots, scrape.SnapshotFromItem(item, now))
	}

	if err := c.persist(ctx, products, snapshots); err != nil {
		c.logger.Error("ingest persistence failed, failing batch",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		summary.Outcome = OutcomeError
		summary.Failed = batch
		c.transition(ctx, batch, monitor.StatusFailed, nil)
		metrics.ObserveWebhookEvent(event.EventType, OutcomeError)
		return summary, err
	}
	metrics.ObserveIngest(len(products), len(snapshots))

	// Alerts only fire for ASINs whose completed transition actually
	// landed; a row stuck in running must not produce events yet.
	completed := c.transition(ctx, scraped, monitor.StatusCompleted, &now)
	c.transition(ctx, missing, monitor.StatusFailed, nil)

	summary.Outcome = OutcomeIngested
	summary.Completed = completed
	summary.Failed = missing
	summary.Alerts = c.evaluateAlerts(ctx, snapshotsFor(completed, snapshots))
	metrics.ObserveWebhookEvent(event.EventType, OutcomeIngested)

	c.logger.Info("scrape run ingested",
		zap.String("run_id", runID),
		zap.Int("completed", len(completed)),
		zap.Int("missing", len(missing)),
		zap.Int("alerts", summary.Alerts),
	)
	return summary, nil
}

// datasetASINs lists the ASINs a dataset delivered, in item order.
func datasetASINs(items []monitor.ScrapedItem) []string {
	asins := make([]string, 0, len(items))
	for _, item := range items {
		asins = append(asins, item.ASIN)
	}
	return asins
}

// snapshotsFor filters snapshots down to the given ASINs.
func snapshotsFor(asins []string, snapshots []monitor.Snapshot) []monitor.Snapshot {
	if len(asins) == 0 {
		return nil
	}
	keep := make(map[string]bool, len(asins))
	for _, asin := range asins {
		keep[asin] = true
	}
	kept := make([]monitor.Snapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if keep[snap.ASIN] {
			kept = append(kept, snap)
		}
	}
	return kept
}

// splitBatch partitions the submitted batch into ASINs the dataset
// actually delivered and ones it silently dropped.
func splitBatch(batch []string, items []monitor.ScrapedItem) (scraped, missing []string) {
	delivered := make(map[string]bool, len(items))
	for _, item := range items {
		delivered[item.ASIN] = true
	}
	for _, asin := range batch {
		if delivered[asin] {
			scraped = append(scraped, asin)
		} else {
			missing = append(missing, asin)
		}
	}
	return scraped, missing
}

func (c *Correlator) persist(ctx context.Context, products []monitor.Product, snapshots []monitor.Snapshot) error {
	if err := c.catalog.UpsertProducts(ctx, products); err != nil {
		return err
	}
	return c.snapshots.UpsertSnapshots(ctx, snapshots)
}

// archiveRaw stores the raw dataset best-effort; the archive is an
// audit trail, not part of the ingest contract.
func (c *Correlator) archiveRaw(ctx context.Context, runID string, now time.Time, raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	path := fmt.Sprintf("runs/%s/%s.json", now.UTC().Format("2006-01-02"), runID)
	ref, err := c.archive.Put(ctx, path, "application/json", raw)
	if err != nil {
		c.logger.Warn("dataset archive failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return ""
	}
	return ref
}

// evaluateAlerts runs the rule set over each fresh snapshot against its
// predecessor. Per-ASIN failures are logged and skipped; alerting never
// blocks ingestion.
func (c *Correlator) evaluateAlerts(ctx context.Context, snapshots []monitor.Snapshot) int {
	if len(snapshots) == 0 {
		return 0
	}

	rules, err := c.rules.ActiveRules(ctx)
	if err != nil {
		c.logger.Error("loading alert rules failed, skipping evaluation", zap.Error(err))
		return 0
	}
	if len(rules) == 0 {
		return 0
	}

	total := 0
	for _, latest := range snapshots {
		previous, err := c.snapshots.PreviousBefore(ctx, latest.ASIN, latest.SnapshotDate)
		if errors.Is(err, monitor.ErrNotFound) {
			continue
		}
		if err != nil {
			c.logger.Error("loading previous snapshot failed",
				zap.String("asin", latest.ASIN),
				zap.Error(err),
			)
			continue
		}

		events := alert.Evaluate(latest, *previous, rules)
		if len(events) == 0 {
			continue
		}
		if err := c.alerts.RecordEvents(ctx, events); err != nil {
			c.logger.Error("recording alerts failed",
				zap.String("asin", latest.ASIN),
				zap.Error(err),
			)
			continue
		}
		for _, ev := range events {
			for _, rule := range rules {
				if rule.ID == ev.RuleID {
					metrics.ObserveAlerts(string(rule.Type), 1)
					break
				}
			}
		}
		total += len(events)
	}
	return total
}

// transition applies a batch status change and returns the ASINs that
// actually moved.
func (c *Correlator) transition(ctx context.Context, asins []string, status monitor.Status, ts *time.Time) []string {
	if len(asins) == 0 {
		return nil
	}
	result, err := c.statuses.Transition(ctx, asins, status, ts)
	if err != nil {
		c.logger.Error("status transition failed",
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return nil
	}
	if !result.OK() {
		c.logger.Warn("some asins did not transition",
			zap.String("status", string(status)),
			zap.Strings("failed", result.Failed),
		)
	}
	return result.Succeeded
}
