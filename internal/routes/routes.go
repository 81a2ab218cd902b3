package routes

import (
	"database/sql"
	"net/http"

	"github.com/devpulse/sentiment-api/internal/authz"
	"github.com/devpulse/sentiment-api/internal/handlers"
	"github.com/gorilla/mux"
)

// NewRouter sets up the API routes.
func NewRouter(db *sql.DB, jwtSecret string, jobs *handlers.JobHandler, audit *handlers.AuditHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck(db)).Methods(http.MethodGet)

	// Authenticated API endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.Use(authz.JWTMiddleware(jwtSecret))

	api.HandleFunc("/jobs", jobs.CreateJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", jobs.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobID}", jobs.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobID}/cancel", jobs.CancelJob).Methods(http.MethodPost)

	api.HandleFunc("/audit", audit.ListRecent).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobID}/audit", audit.ListForJob).Methods(http.MethodGet)

	return router
}
