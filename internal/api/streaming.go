/*-------------------------------------------------------------------------
 *
 * streaming.go
 *    Server-sent event streaming for chat messages
 *
 * Relays the gateway's chunk sequence to the client as SSE events; the
 * stream always ends with exactly one final chunk unless the client
 * disconnects first.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/streaming.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/gateway"
	"github.com/neurondb/NeuronFlow/internal/metrics"
	"github.com/neurondb/NeuronFlow/internal/validation"
)

/* StreamMessage sends one message and streams the agent reply as SSE */
func (h *Handler) StreamMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidateStringRequired(req.Message, "message"); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	h.streamMessage(w, r, sessionID, req)
}

/* streamMessage relays the gateway chunk sequence for an already-validated
 * request; shared by the dedicated stream endpoint and the unary endpoint
 * when the request asks for streaming */
func (h *Handler) streamMessage(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID, req SendMessageRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, http.StatusInternalServerError, "streaming unsupported by connection")
		return
	}

	ctx := metrics.WithSessionIDLogContext(r.Context(), sessionID)
	chunks, err := h.gateway.StreamMessage(ctx, sessionID, req.Message, req.Context, gateway.SendMessageOptions{
		PreferredConnector: req.PreferredConnector,
		Model:              req.Model,
		Persona:            req.Persona,
		MaxTokens:          req.MaxTokens,
		Temperature:        req.Temperature,
	}, req.IncludeWidgets)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrSessionEnded):
			respondError(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, db.ErrNotFound):
			respondError(w, r, http.StatusNotFound, err.Error())
		default:
			respondError(w, r, http.StatusBadGateway, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			metrics.ErrorWithContext(ctx, "Chunk encoding failed", err, nil)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			/* Client went away; ctx cancellation stops the gateway */
			return
		}
		flusher.Flush()
	}
}
