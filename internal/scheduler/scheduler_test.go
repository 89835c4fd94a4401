package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeStatusStore struct {
	eligible    []string
	eligibleErr error
	transitions []transition
}

type transition struct {
	asins  []string
	status monitor.Status
	ts     *time.Time
}

func (s *fakeStatusStore) SelectEligible(context.Context, time.Time, int) ([]string, error) {
	return s.eligible, s.eligibleErr
}

func (s *fakeStatusStore) Transition(_ context.Context, asins []string, status monitor.Status, ts *time.Time) (monitor.TransitionResult, error) {
	s.transitions = append(s.transitions, transition{asins: asins, status: status, ts: ts})
	return monitor.TransitionResult{Succeeded: asins}, nil
}

type fakeProvider struct {
	handle  monitor.RunHandle
	errs    []error
	calls   int
	webhook string
}

func (p *fakeProvider) StartBatch(_ context.Context, _ []string, webhookURL string) (monitor.RunHandle, error) {
	p.webhook = webhookURL
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return monitor.RunHandle{}, err
		}
	}
	return p.handle, nil
}

type fakeRunStore struct {
	runs []monitor.ScrapeRun
	err  error
}

func (s *fakeRunStore) RecordRun(_ context.Context, run monitor.ScrapeRun) error {
	s.runs = append(s.runs, run)
	return s.err
}

func (s *fakeRunStore) BatchForRun(context.Context, string) ([]string, error) {
	return nil, monitor.ErrNotFound
}

func newScheduler(statuses *fakeStatusStore, provider *fakeProvider, runs *fakeRunStore) *Scheduler {
	s := New(
		Config{Interval: time.Minute, BatchLimit: 100, WebhookURL: "https://example.com/webhook"},
		statuses, provider, runs,
		&fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		zap.NewNop(),
	)
	s.retry.InitialBackoff = time.Millisecond
	s.retry.MaxBackoff = time.Millisecond
	return s
}

func TestTickSubmitsAndMarksRunning(t *testing.T) {
	statuses := &fakeStatusStore{eligible: []string{"B000TEST01", "B000TEST02"}}
	provider := &fakeProvider{handle: monitor.RunHandle{RunID: "run-1"}}
	runs := &fakeRunStore{}

	require.NoError(t, newScheduler(statuses, provider, runs).Tick(context.Background()))

	require.Len(t, runs.runs, 1)
	assert.Equal(t, "run-1", runs.runs[0].RunID)
	assert.Equal(t, []string{"B000TEST01", "B000TEST02"}, runs.runs[0].ASINs)

	require.Len(t, statuses.transitions, 1)
	assert.Equal(t, monitor.StatusRunning, statuses.transitions[0].status)
	require.NotNil(t, statuses.transitions[0].ts)
	assert.Equal(t, "https://example.com/webhook", provider.webhook)
}

func TestTickEmptyBatchIsNoop(t *testing.T) {
	statuses := &fakeStatusStore{}
	provider := &fakeProvider{}
	runs := &fakeRunStore{}

	require.NoError(t, newScheduler(statuses, provider, runs).Tick(context.Background()))
	assert.Zero(t, provider.calls)
	assert.Empty(t, statuses.transitions)
}

func TestTickRetriesTransientSubmission(t *testing.T) {
	statuses := &fakeStatusStore{eligible: []string{"B000TEST01"}}
	provider := &fakeProvider{
		handle: monitor.RunHandle{RunID: "run-1"},
		errs:   []error{monitor.Transient(errors.New("overloaded"), 503)},
	}
	runs := &fakeRunStore{}

	require.NoError(t, newScheduler(statuses, provider, runs).Tick(context.Background()))
	assert.Equal(t, 2, provider.calls)
	require.Len(t, statuses.transitions, 1)
	assert.Equal(t, monitor.StatusRunning, statuses.transitions[0].status)
}

func TestTickMarksBatchFailedOnExhaustion(t *testing.T) {
	transient := monitor.Transient(errors.New("overloaded"), 503)
	statuses := &fakeStatusStore{eligible: []string{"B000TEST01"}}
	provider := &fakeProvider{errs: []error{transient, transient, transient}}
	runs := &fakeRunStore{}

	err := newScheduler(statuses, provider, runs).Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.Empty(t, runs.runs)
	require.Len(t, statuses.transitions, 1)
	assert.Equal(t, monitor.StatusFailed, statuses.transitions[0].status)
	assert.Nil(t, statuses.transitions[0].ts)
}

func TestTickSurvivesRunRecordFailure(t *testing.T) {
	statuses := &fakeStatusStore{eligible: []string{"B000TEST01"}}
	provider := &fakeProvider{handle: monitor.RunHandle{RunID: "run-1"}}
	runs := &fakeRunStore{err: errors.New("db down")}

	require.NoError(t, newScheduler(statuses, provider, runs).Tick(context.Background()))
	require.Len(t, statuses.transitions, 1)
	assert.Equal(t, monitor.StatusRunning, statuses.transitions[0].status)
}
