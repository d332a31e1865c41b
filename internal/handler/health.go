package handler

import (
	"net/http"
)

type backendStatus struct {
	Configured bool `json:"configured"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Backend backendStatus `json:"backend"`
	Models  int           `json:"models"`
}

func Health(models ModelRegistry, backendConfigured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Backend: backendStatus{Configured: backendConfigured},
			Models:  len(models.List()),
		})
	}
}
