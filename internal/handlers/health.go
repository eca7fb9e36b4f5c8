package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	applog "stockwright/internal/log"
)

type healthResponse struct {
	Status   string    `json:"status"`
	Database string    `json:"database"`
	Time     time.Time `json:"time"`
}

// Health is a readiness handler suitable for infrastructure probes. It pings
// the store when one is configured.
func Health(w http.ResponseWriter, r *http.Request) {
	applog.Debug(r.Context(), "health check requested", "method", r.Method)
	resp := healthResponse{
		Status:   "ok",
		Database: "unconfigured",
		Time:     nowFunc().UTC(),
	}
	status := http.StatusOK

	if services != nil && services.Store != nil {
		resp.Database = "ok"
		if err := services.Store.Ping(r.Context()); err != nil {
			applog.Error(r.Context(), "health check store ping failed", "error", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		applog.Error(r.Context(), "failed to encode health response", "error", err)
		return
	}
	applog.Debug(r.Context(), "health check responded", "status", resp.Status)
}
