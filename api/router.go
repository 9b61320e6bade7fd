package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/swarm"
)

// Router builds the API mux. Middleware wrapping happens in the
// server wiring; the mux itself is bare handlers.
func Router(bus *swarm.Bus, delegator *swarm.Delegator, logger *zap.Logger) *http.ServeMux {
	swarmHandler := NewSwarmHandler(delegator, logger)
	workerHandler := NewWorkerHandler(bus, logger)
	eventsHandler := NewEventsHandler(bus, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", HandleHealth)

	mux.HandleFunc("GET /api/v1/swarm/status", swarmHandler.HandleStatus)
	mux.HandleFunc("POST /api/v1/swarm/mode", swarmHandler.HandleMode)
	mux.HandleFunc("POST /api/v1/swarm/delegate", swarmHandler.HandleDelegate)
	mux.HandleFunc("GET /api/v1/swarm/alerts", swarmHandler.HandleAlerts)
	mux.Handle("GET /api/v1/swarm/events", eventsHandler)

	mux.HandleFunc("POST /api/v1/workers", workerHandler.HandleRegister)
	mux.HandleFunc("DELETE /api/v1/workers/{id}", workerHandler.HandleDeregister)
	mux.HandleFunc("POST /api/v1/workers/{id}/heartbeat", workerHandler.HandleHeartbeat)
	mux.HandleFunc("POST /api/v1/workers/{id}/bids", workerHandler.HandleBid)
	mux.HandleFunc("POST /api/v1/workers/{id}/results", workerHandler.HandleResult)
	mux.HandleFunc("POST /api/v1/workers/{id}/alerts", workerHandler.HandleAlert)

	return mux
}

// HandleHealth serves the liveness probe.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}
