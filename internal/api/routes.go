package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		APIKey(h.apiKey),
	)

	// Requests
	mux.Handle("GET /api/v1/requests", chain(http.HandlerFunc(h.ListRequests)))
	mux.Handle("POST /api/v1/requests", chain(http.HandlerFunc(h.CreateRequest)))
	mux.Handle("GET /api/v1/requests/{protocol}", chain(http.HandlerFunc(h.GetRequest)))
	mux.Handle("DELETE /api/v1/requests/{protocol}", chain(http.HandlerFunc(h.DeleteRequest)))
	mux.Handle("GET /api/v1/requests/{protocol}/progress", chain(http.HandlerFunc(h.GetProgress)))
	mux.Handle("GET /api/v1/requests/{protocol}/result", chain(http.HandlerFunc(h.GetResult)))

	// Control
	mux.Handle("POST /api/v1/requests/{protocol}/resume", chain(http.HandlerFunc(h.ResumeRequest)))
	mux.Handle("POST /api/v1/requests/{protocol}/reprocess", chain(http.HandlerFunc(h.ReprocessRequest)))
	mux.Handle("POST /api/v1/requests/{protocol}/cancel", chain(http.HandlerFunc(h.CancelRequest)))

	// Engines
	mux.Handle("GET /api/v1/engines", chain(http.HandlerFunc(h.ListEngines)))

	// Без API key
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}
