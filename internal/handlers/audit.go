package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type AuditHandler struct {
	repo   repository.AuditRepository
	logger zerolog.Logger
}

func NewAuditHandler(repo repository.AuditRepository, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		repo:   repo,
		logger: logger,
	}
}

func (h *AuditHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}

	entries, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list audit entries")
		http.Error(w, "Failed to list audit entries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (h *AuditHandler) ListForJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	entries, err := h.repo.ListForJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to list job audit entries")
		http.Error(w, "Failed to list job audit entries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
