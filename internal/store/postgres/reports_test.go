package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

func newReportStore(t *testing.T) (*ReportStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewReportStore(mock), mock
}

func TestFindCompletedByHashBoundsWindow(t *testing.T) {
	store, mock := newReportStore(t)

	dayStart := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	created := dayStart.Add(6 * time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM report_jobs\s+WHERE parameters_hash`).
		WithArgs("abc123", dayStart, dayEnd).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "job_type", "parameters", "parameters_hash", "status",
			"created_at", "started_at", "completed_at", "error_message", "result_ref",
		}).AddRow(
			"job-1", "competitor_analysis",
			[]byte(`{"main_asin":"B000TEST01","competitor_asins":["B000TEST02"],"window_size":7,"report_type":"competitor_analysis"}`),
			"abc123", "completed", created, nil, nil, nil, nil,
		))

	job, err := store.FindCompletedByHash(context.Background(), "abc123", dayStart, dayEnd)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, monitor.ReportCompleted, job.Status)
	assert.Equal(t, "B000TEST01", job.Parameters.MainASIN)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCompletedByHashMiss(t *testing.T) {
	store, mock := newReportStore(t)

	dayStart := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM report_jobs\s+WHERE parameters_hash`).
		WithArgs("abc123", dayStart, dayStart.Add(24*time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "job_type", "parameters", "parameters_hash", "status",
			"created_at", "started_at", "completed_at", "error_message", "result_ref",
		}))

	_, err := store.FindCompletedByHash(context.Background(), "abc123", dayStart, dayStart.Add(24*time.Hour))
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusUnknownJob(t *testing.T) {
	store, mock := newReportStore(t)

	mock.ExpectExec(`UPDATE report_jobs`).
		WithArgs("ghost", "running", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateStatus(context.Background(), "ghost", monitor.ReportRunning, "")
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobPersistsParameters(t *testing.T) {
	store, mock := newReportStore(t)

	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	job := monitor.ReportJob{
		ID:      "job-1",
		JobType: "competitor_analysis",
		Parameters: monitor.ReportParameters{
			MainASIN:        "B000TEST01",
			CompetitorASINs: []string{"B000TEST02"},
			WindowDays:      7,
			ReportType:      "competitor_analysis",
		},
		ParametersHash: "abc123",
		Status:         monitor.ReportPending,
		CreatedAt:      created,
	}

	mock.ExpectExec(`INSERT INTO report_jobs`).
		WithArgs("job-1", "competitor_analysis", pgxmock.AnyArg(), "abc123", "pending", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}
