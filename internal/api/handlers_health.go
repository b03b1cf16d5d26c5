// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/parley/internal/models"
)

// readinessTimeout bounds all readiness probes together.
const readinessTimeout = 3 * time.Second

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// Returns 503 with the failing checks if any dependency is not ready.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			results[c.Name] = err.Error()
			ready = false
			continue
		}
		results[c.Name] = "ok"
	}

	status := http.StatusOK
	respStatus := "success"
	if !ready {
		status = http.StatusServiceUnavailable
		respStatus = "error"
	}

	resp := &models.APIResponse{
		Status: respStatus,
		Data: map[string]interface{}{
			"ready":  ready,
			"checks": results,
		},
		Metadata: models.Metadata{Timestamp: time.Now()},
	}
	if !ready {
		resp.Error = &models.APIError{Code: ErrCodeServiceUnavailable, Message: "Service is not ready"}
	}
	respondJSON(w, status, resp)
}
