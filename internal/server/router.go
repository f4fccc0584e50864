package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BiliTheKid/dolpyitcs/internal/handlers"
	"github.com/BiliTheKid/dolpyitcs/internal/middleware"
)

// NewRouter constructs a ServeMux with collector routes registered.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Tracker-facing ingestion endpoint
	mux.HandleFunc("/collect", h.Collect)

	// Dashboard-facing aggregation endpoint
	mux.HandleFunc("/api/analytics", h.Analytics)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	})

	return middleware.RequestID(middleware.RequestLogging(cors(mux)))
}
