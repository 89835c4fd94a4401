package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
	"github.com/daniel7634/amzwatch/internal/reports"
	"github.com/daniel7634/amzwatch/internal/webhook"
)

type fakeProcessor struct {
	summary webhook.Summary
	err     error
	event   *webhook.Event
}

func (p *fakeProcessor) Process(_ context.Context, event webhook.Event) (webhook.Summary, error) {
	p.event = &event
	return p.summary, p.err
}

type fakeSubmitter struct {
	result reports.SubmitResult
	err    error
	params monitor.ReportParameters
}

func (s *fakeSubmitter) Submit(_ context.Context, params monitor.ReportParameters) (reports.SubmitResult, error) {
	s.params = params
	return s.result, s.err
}

type fakeJobStore struct {
	jobs    map[string]*monitor.ReportJob
	results map[string]*monitor.ReportResult
}

func (s *fakeJobStore) CreateJob(context.Context, monitor.ReportJob) error { return nil }

func (s *fakeJobStore) GetJob(_ context.Context, id string) (*monitor.ReportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, monitor.ErrNotFound
	}
	return job, nil
}

func (s *fakeJobStore) FindCompletedByHash(context.Context, string, time.Time, time.Time) (*monitor.ReportJob, error) {
	return nil, monitor.ErrNotFound
}

func (s *fakeJobStore) UpdateStatus(context.Context, string, monitor.ReportStatus, string) error {
	return nil
}

func (s *fakeJobStore) SaveResult(context.Context, monitor.ReportResult) error { return nil }

func (s *fakeJobStore) GetResult(_ context.Context, jobID string) (*monitor.ReportResult, error) {
	result, ok := s.results[jobID]
	if !ok {
		return nil, monitor.ErrNotFound
	}
	return result, nil
}

type fixture struct {
	processor *fakeProcessor
	submitter *fakeSubmitter
	jobs      *fakeJobStore
}

func newFixture() *fixture {
	return &fixture{
		processor: &fakeProcessor{},
		submitter: &fakeSubmitter{},
		jobs: &fakeJobStore{
			jobs:    map[string]*monitor.ReportJob{},
			results: map[string]*monitor.ReportResult{},
		},
	}
}

func (f *fixture) server() *Server {
	return NewServer(f.processor, f.submitter, f.jobs, nil, time.Minute, zap.NewNop())
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newFixture().server(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzUnavailable(t *testing.T) {
	f := newFixture()
	srv := NewServer(f.processor, f.submitter, f.jobs,
		func(context.Context) error { return errors.New("db down") },
		time.Minute, zap.NewNop())

	rec := do(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookAlwaysAnswers200(t *testing.T) {
	f := newFixture()
	f.processor.summary = webhook.Summary{RunID: "run-1", Outcome: webhook.OutcomeError}
	f.processor.err = errors.New("dataset fetch failed")

	rec := do(t, f.server(), http.MethodPost, "/webhook/amazon-products", map[string]any{
		"eventType": "ACTOR.RUN.SUCCEEDED",
		"eventData": map[string]string{"actorRunId": "run-1"},
		"resource":  map[string]string{"status": "SUCCEEDED", "defaultDatasetId": "ds-1"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var summary webhook.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "run-1", summary.RunID)
	require.NotNil(t, f.processor.event)
	assert.Equal(t, "run-1", f.processor.event.RunID())
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/webhook/amazon-products", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.server().Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitReportAccepted(t *testing.T) {
	f := newFixture()
	f.submitter.result = reports.SubmitResult{JobID: "job-1"}

	rec := do(t, f.server(), http.MethodPost, "/api/v1/reports/competitor", map[string]any{
		"main_asin":        "B000TEST01",
		"competitor_asins": []string{"B000TEST02"},
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp submitReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "pending", resp.Status)
}

func TestSubmitReportPassesReportType(t *testing.T) {
	f := newFixture()
	f.submitter.result = reports.SubmitResult{JobID: "job-1"}

	rec := do(t, f.server(), http.MethodPost, "/api/v1/reports/competitor", map[string]any{
		"main_asin":        "B000TEST01",
		"competitor_asins": []string{"B000TEST02"},
		"window_size":      14,
		"report_type":      "price_history",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "price_history", f.submitter.params.ReportType)
	assert.Equal(t, 14, f.submitter.params.WindowDays)
}

func TestSubmitReportValidationError(t *testing.T) {
	f := newFixture()
	f.submitter.err = monitor.Validationf("main_asin must be a 10-character ASIN")

	rec := do(t, f.server(), http.MethodPost, "/api/v1/reports/competitor", map[string]any{"main_asin": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitReportExisting(t *testing.T) {
	f := newFixture()
	f.submitter.result = reports.SubmitResult{JobID: "job-old", Existing: true}

	rec := do(t, f.server(), http.MethodPost, "/api/v1/reports/competitor", map[string]any{
		"main_asin":        "B000TEST01",
		"competitor_asins": []string{"B000TEST02"},
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp submitReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Existing)
	assert.Equal(t, "completed", resp.Status)
}

func TestReportStatusNotFound(t *testing.T) {
	rec := do(t, newFixture().server(), http.MethodGet, "/api/v1/reports/ghost/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportStatusFound(t *testing.T) {
	f := newFixture()
	f.jobs.jobs["job-1"] = &monitor.ReportJob{
		ID:        "job-1",
		Status:    monitor.ReportRunning,
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	rec := do(t, f.server(), http.MethodGet, "/api/v1/reports/job-1/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp reportStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Status)
}

func TestDownloadPendingAnswers202(t *testing.T) {
	f := newFixture()
	f.jobs.jobs["job-1"] = &monitor.ReportJob{ID: "job-1", Status: monitor.ReportRunning}

	rec := do(t, f.server(), http.MethodGet, "/api/v1/reports/job-1/download", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestDownloadFailedAnswers409(t *testing.T) {
	f := newFixture()
	f.jobs.jobs["job-1"] = &monitor.ReportJob{
		ID:           "job-1",
		Status:       monitor.ReportFailed,
		ErrorMessage: "generation exhausted retries",
	}

	rec := do(t, f.server(), http.MethodGet, "/api/v1/reports/job-1/download", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "exhausted")
}

func TestDownloadCompleted(t *testing.T) {
	f := newFixture()
	f.jobs.jobs["job-1"] = &monitor.ReportJob{ID: "job-1", Status: monitor.ReportCompleted}
	f.jobs.results["job-1"] = &monitor.ReportResult{
		JobID:      "job-1",
		ReportType: "competitor_analysis",
		Content:    "Pricing position: strong.",
	}

	rec := do(t, f.server(), http.MethodGet, "/api/v1/reports/job-1/download", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp downloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Pricing position: strong.", resp.Content)
}
