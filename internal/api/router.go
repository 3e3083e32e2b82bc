// Package api exposes the search service over HTTP.
package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/api/recovery"
)

// NewRouter registers the search, health and metrics routes.
func NewRouter(search *SearchHandler, health *HealthHandler, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware(log))

	router.HandleFunc("/api/health", health.CheckHealth).Methods("GET")
	router.HandleFunc("/api/search", search.HandleSearch).Methods("POST")
	router.HandleFunc("/api/search/image", search.HandleImageSearch).Methods("POST")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}
