package reports

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

type fakeGenerator struct {
	errs   []error
	calls  int
	result monitor.ReportResult
}

func (g *fakeGenerator) Generate(_ context.Context, task monitor.ReportTask) (monitor.ReportResult, error) {
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return monitor.ReportResult{}, err
		}
	}
	result := g.result
	result.JobID = task.JobID
	return result, nil
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		BackoffCap:     2 * time.Millisecond,
		AttemptTimeout: time.Second,
		SoftTimeout:    500 * time.Millisecond,
	}
}

func statusSequence(store *fakeReportStore) []monitor.ReportStatus {
	var seq []monitor.ReportStatus
	for _, change := range store.statuses {
		seq = append(seq, change.status)
	}
	return seq
}

func TestProcessCompletesJob(t *testing.T) {
	store := newFakeReportStore()
	store.jobs["job-1"] = &monitor.ReportJob{ID: "job-1", Status: monitor.ReportPending}
	gen := &fakeGenerator{result: monitor.ReportResult{Content: "analysis text", ReportType: DefaultReportType}}
	w := NewWorker(testWorkerConfig(), &fakeQueue{}, store, gen, zap.NewNop())

	w.Process(context.Background(), monitor.ReportTask{JobID: "job-1"})

	assert.Equal(t, []monitor.ReportStatus{monitor.ReportRunning, monitor.ReportCompleted}, statusSequence(store))
	require.Contains(t, store.results, "job-1")
	assert.Equal(t, "analysis text", store.results["job-1"].Content)
	assert.Equal(t, 1, gen.calls)
}

func TestProcessRetriesAndRecordsAttempts(t *testing.T) {
	store := newFakeReportStore()
	store.jobs["job-1"] = &monitor.ReportJob{ID: "job-1", Status: monitor.ReportPending}
	gen := &fakeGenerator{
		errs:   []error{errors.New("llm timeout"), nil},
		result: monitor.ReportResult{Content: "ok"},
	}
	w := NewWorker(testWorkerConfig(), &fakeQueue{}, store, gen, zap.NewNop())

	w.Process(context.Background(), monitor.ReportTask{JobID: "job-1"})

	assert.Equal(t, 2, gen.calls)
	seq := statusSequence(store)
	require.Len(t, seq, 3)
	assert.Equal(t, monitor.ReportRunning, seq[0])
	assert.Equal(t, monitor.ReportRunning, seq[1])
	assert.Contains(t, store.statuses[1].errMsg, "attempt 1 of 3 failed")
	assert.Equal(t, monitor.ReportCompleted, seq[2])
}

func TestProcessFailsAfterExhaustion(t *testing.T) {
	store := newFakeReportStore()
	store.jobs["job-1"] = &monitor.ReportJob{ID: "job-1", Status: monitor.ReportPending}
	gen := &fakeGenerator{errs: []error{
		errors.New("boom 1"), errors.New("boom 2"), errors.New("boom 3"),
	}}
	w := NewWorker(testWorkerConfig(), &fakeQueue{}, store, gen, zap.NewNop())

	w.Process(context.Background(), monitor.ReportTask{JobID: "job-1"})

	assert.Equal(t, 3, gen.calls)
	seq := statusSequence(store)
	assert.Equal(t, monitor.ReportFailed, seq[len(seq)-1])
	last := store.statuses[len(store.statuses)-1]
	assert.Contains(t, last.errMsg, "boom 3")
	assert.Empty(t, store.results)
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	store := newFakeReportStore()
	store.jobs["job-1"] = &monitor.ReportJob{ID: "job-1", Status: monitor.ReportPending}
	queue := &fakeQueue{tasks: []monitor.ReportTask{{JobID: "job-1"}}}
	gen := &fakeGenerator{result: monitor.ReportResult{Content: "ok"}}
	w := NewWorker(testWorkerConfig(), queue, store, gen, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, gen.calls)
	require.Contains(t, store.results, "job-1")
}
