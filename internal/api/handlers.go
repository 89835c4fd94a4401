package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
	"github.com/daniel7634/amzwatch/internal/webhook"
)

// handleWebhook accepts a provider completion notification. Processing
// failures are logged but still answered with 200: the provider cannot
// fix them by redelivering, and our status reclaim handles recovery.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var event webhook.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	summary, err := s.correlator.Process(r.Context(), event)
	if err != nil {
		s.logger.Error("webhook processing failed",
			zap.String("run_id", summary.RunID),
			zap.Error(err),
		)
	}
	s.writeJSON(w, http.StatusOK, summary)
}

type submitReportRequest struct {
	MainASIN        string   `json:"main_asin"`
	CompetitorASINs []string `json:"competitor_asins"`
	WindowDays      int      `json:"window_size"`
	ReportType      string   `json:"report_type"`
}

type submitReportResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Existing bool   `json:"existing,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	var req submitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := s.submitter.Submit(r.Context(), monitor.ReportParameters{
		MainASIN:        req.MainASIN,
		CompetitorASINs: req.CompetitorASINs,
		WindowDays:      req.WindowDays,
		ReportType:      req.ReportType,
	})
	if errors.Is(err, monitor.ErrValidation) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "report submission failed")
		return
	}

	status := string(monitor.ReportPending)
	if result.Existing {
		status = string(monitor.ReportCompleted)
	}
	s.writeJSON(w, http.StatusAccepted, submitReportResponse{
		JobID:    result.JobID,
		Status:   status,
		Existing: result.Existing,
		Warning:  result.Warning,
	})
}

type reportStatusResponse struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (s *Server) reportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, monitor.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	resp := reportStatusResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ErrorMessage: job.ErrorMessage,
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type downloadResponse struct {
	JobID      string          `json:"job_id"`
	ReportType string          `json:"report_type"`
	Content    string          `json:"content"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// downloadReport serves finished content. Unfinished jobs answer 202 so
// clients can poll the same URL; failed jobs answer 409 with the error.
func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, monitor.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	switch job.Status {
	case monitor.ReportCompleted:
	case monitor.ReportFailed:
		s.writeJSON(w, http.StatusConflict, map[string]string{
			"job_id": job.ID,
			"status": string(job.Status),
			"error":  job.ErrorMessage,
		})
		return
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": job.ID,
			"status": string(job.Status),
		})
		return
	}

	result, err := s.jobs.GetResult(r.Context(), jobID)
	if errors.Is(err, monitor.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "report content not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	s.writeJSON(w, http.StatusOK, downloadResponse{
		JobID:      result.JobID,
		ReportType: result.ReportType,
		Content:    result.Content,
		Metadata:   result.Metadata,
	})
}
