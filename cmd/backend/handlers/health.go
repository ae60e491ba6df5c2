package handlers

import (
	"net/http"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	ActiveTests int    `json:"active_tests"`
}

// Counter reports how many runs are held in memory.
type Counter interface {
	Len() int
}

// NewHealthHandler returns the liveness handler. counter may be nil.
func NewHealthHandler(counter Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "healthy"}
		if counter != nil {
			resp.ActiveTests = counter.Len()
		}
		respondJSON(w, http.StatusOK, resp)
	}
}
