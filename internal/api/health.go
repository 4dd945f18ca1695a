package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the dependency probes of GET /health.
const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version,omitempty"`
	Uptime    string         `json:"uptime"`
	MQTT      string         `json:"mqtt"`
	Entities  int            `json:"entities"`
	Clients   int            `json:"websocket_clients"`
	Gateway   *gatewayHealth `json:"gateway,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type gatewayHealth struct {
	Status       string `json:"status"`
	PID          int    `json:"pid,omitempty"`
	Uptime       string `json:"uptime,omitempty"`
	RestartCount int    `json:"restart_count"`
	LastError    string `json:"last_error,omitempty"`
}

// handleHealth reports "ok", or "degraded" with 503 when the broker link is
// down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		MQTT:      "disabled",
		Entities:  len(s.entities.Entities()),
		Clients:   s.hub.ClientCount(),
		Timestamp: time.Now().UTC(),
	}

	if s.mqtt != nil {
		resp.MQTT = "connected"
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			resp.MQTT = "disconnected"
			resp.Status = "degraded"
		}
	}

	if s.gateway != nil {
		st := s.gateway.Stats()
		gw := &gatewayHealth{
			Status:       string(st.Status),
			PID:          st.PID,
			RestartCount: st.RestartCount,
			LastError:    st.LastError,
		}
		if st.Uptime > 0 {
			gw.Uptime = st.Uptime.Round(time.Second).String()
		}
		resp.Gateway = gw
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
