package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Tracing(),
		Logging(h.logger),
	)

	// Onboarding
	mux.Handle("POST /api/v1/onboarding", chain(http.HandlerFunc(h.SubmitOnboarding)))
	mux.Handle("GET /api/v1/onboarding/{session_id}", chain(http.HandlerFunc(h.GetOnboarding)))
	mux.Handle("POST /api/v1/onboarding/{session_id}/retry", chain(http.HandlerFunc(h.RetryStep)))
	mux.Handle("POST /api/v1/onboarding/{session_id}/cancel", chain(http.HandlerFunc(h.CancelOnboarding)))

	// Properties
	mux.Handle("GET /api/v1/properties/{property_id}/missing-extractions", chain(http.HandlerFunc(h.MissingExtractions)))

	// Service
	mux.Handle("GET /healthz", http.HandlerFunc(h.Health))
	mux.Handle("GET /metrics", promhttp.Handler())
}
