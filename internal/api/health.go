package api

import (
	"net/http"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	breakers := map[string]string{}
	if h.breakers != nil {
		breakers = h.breakers.States()
	}

	status := "healthy"
	for _, state := range breakers {
		if state == "open" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"models":           len(h.catalog.Enabled()),
		"circuit_breakers": breakers,
	})
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
