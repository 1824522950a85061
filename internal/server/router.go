package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xerxes-systems/xerxes-bridge/internal/handlers"
	"github.com/xerxes-systems/xerxes-bridge/internal/middleware"
)

// NewRouter constructs a ServeMux with the bridge API routes registered.
func NewRouter(h *handlers.BridgeHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/bridge/ingest", h.HandleIngest)
	mux.HandleFunc("/bridge/devices", h.HandleDevices)

	// Health endpoints
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
