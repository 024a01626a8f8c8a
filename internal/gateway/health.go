package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"` // "ok" or "degraded"
	UptimeSeconds int64  `json:"uptime_seconds"`
	Channel       string `json:"channel,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health. The process is
// "ok" while the channel session is open or still provisioning; a channel
// stuck reconnecting reports degraded with 503 so probes can flag it.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		}

		if g.channelState != nil {
			resp.Channel = g.channelState()
			if resp.Channel == "reconnecting" || resp.Channel == "terminated" {
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
