package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/devpulse/sentiment-api/internal/trigger"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type JobHandler struct {
	service *trigger.Service
	repo    repository.JobRepository
	logger  zerolog.Logger
}

func NewJobHandler(service *trigger.Service, repo repository.JobRepository, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		repo:    repo,
		logger:  logger,
	}
}

type createJobRequest struct {
	JobType    string               `json:"job_type"`
	Parameters models.JobParameters `json:"parameters"`
}

// CreateJob queues a manual job. Creation claims the single active-job
// slot, so a second request while any job is queued or running gets 409.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var payload createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	job, err := h.service.CreateJob(r.Context(), trigger.CreateRequest{
		Type:        models.JobType(payload.JobType),
		TriggerType: models.TriggerManual,
		TriggeredBy: actorOrSystem(r),
		Parameters:  payload.Parameters,
	})
	if err != nil {
		switch {
		case models.IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrJobConflict):
			http.Error(w, "Another job is already queued or running", http.StatusConflict)
		default:
			h.logger.Error().Err(err).Msg("Failed to create job")
			http.Error(w, "Failed to create job", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	job, err := h.repo.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobStatusResponse(job))
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil {
			offset = v
		}
	}
	status := models.JobStatus(r.URL.Query().Get("status"))
	triggerType := models.TriggerType(r.URL.Query().Get("trigger_type"))

	jobs, err := h.repo.List(r.Context(), status, triggerType, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

// CancelJob requests cooperative cancellation; the running job stops at
// its next checkpoint boundary, so 202 means requested, not stopped.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	err := h.service.CancelJob(r.Context(), jobID, actorOrSystem(r))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			http.Error(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, repository.ErrInvalidTransition):
			http.Error(w, "Job is already in a terminal state", http.StatusConflict)
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to request cancellation")
			http.Error(w, "Failed to request cancellation", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "cancellation_requested"})
}

type statusResponse struct {
	models.ReanalysisJob
	Percentage float64 `json:"percentage"`
	Degraded   bool    `json:"degraded"`
}

func jobStatusResponse(job models.ReanalysisJob) statusResponse {
	return statusResponse{
		ReanalysisJob: job,
		Percentage:    job.Percentage(),
		Degraded:      job.Statistics.ErrorRatio(job.ProcessedCount) > models.DegradedErrorRatio,
	}
}
