/*-------------------------------------------------------------------------
 *
 * errors.go
 *    HTTP response helpers for the NeuronFlow API
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/errors.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* ErrorResponse is the uniform error body */
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

/* respondJSON writes a JSON response with the given status */
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		metrics.ErrorWithContext(context.Background(), "Response encoding failed", err, nil)
	}
}

/* respondError writes a uniform JSON error carrying the request id */
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID := metrics.GetRequestIDFromContext(r.Context())
	metrics.WarnWithContext(r.Context(), "Request failed", map[string]interface{}{
		"status":  status,
		"message": message,
	})
	respondJSON(w, status, ErrorResponse{Error: message, RequestID: requestID})
}
