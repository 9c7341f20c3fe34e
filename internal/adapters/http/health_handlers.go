package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

func (rt *Router) healthPing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "pong",
		"timestamp": rt.now().Format(time.RFC3339),
	})
}

func (rt *Router) healthDBConnection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	body := map[string]string{
		"database_status": "connected",
		"timestamp":       rt.now().Format(time.RFC3339),
		"version":         ServiceVersion,
	}
	if rt.health == nil {
		body["database_status"] = "disconnected"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	if err := rt.health.Ping(ctx); err != nil {
		slog.Warn("db_health_check_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		body["database_status"] = "disconnected"
		body["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
