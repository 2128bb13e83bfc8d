/*-------------------------------------------------------------------------
 *
 * audit.go
 *    Audit trail for NeuronFlow control-plane actions
 *
 * Records mutating API actions as hash-chained events emitted through the
 * structured log. Each event's hash covers the previous event's hash, so
 * tampering with an exported trail is detectable.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    pkg/audit/audit.go
 *
 *-------------------------------------------------------------------------
 */

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

/* Action represents standard audit action types */
type Action string

const (
	ActionWorkflowCreate Action = "workflow_create"
	ActionWorkflowStart  Action = "workflow_start"
	ActionWorkflowDelete Action = "workflow_delete"
	ActionAgentRegister  Action = "agent_register"
	ActionAgentPublish   Action = "agent_publish"
	ActionAgentActivate  Action = "agent_activate"
	ActionAgentDelete    Action = "agent_delete"
	ActionAgentEvolve    Action = "agent_evolve"
	ActionSessionCreate  Action = "session_create"
	ActionSessionEnd     Action = "session_end"
	ActionCollabStart    Action = "collab_start"
	ActionCollabEnd      Action = "collab_end"
)

/* Event is one recorded control-plane action */
type Event struct {
	ID       uuid.UUID              `json:"id"`
	Action   Action                 `json:"action"`
	Actor    string                 `json:"actor,omitempty"`
	Subject  string                 `json:"subject"`
	Details  map[string]interface{} `json:"details,omitempty"`
	At       time.Time              `json:"at"`
	PrevHash string                 `json:"prev_hash"`
	Hash     string                 `json:"hash"`
}

/* Trail records hash-chained audit events */
type Trail struct {
	mu       sync.Mutex
	prevHash string
}

func NewTrail() *Trail {
	return &Trail{}
}

/* Record appends one event to the trail and emits it to the log */
func (t *Trail) Record(action Action, actor, subject string, details map[string]interface{}) Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := Event{
		ID:       uuid.New(),
		Action:   action,
		Actor:    actor,
		Subject:  subject,
		Details:  details,
		At:       time.Now().UTC(),
		PrevHash: t.prevHash,
	}
	event.Hash = computeHash(event)
	t.prevHash = event.Hash

	log.Info().
		Str("audit_id", event.ID.String()).
		Str("action", string(event.Action)).
		Str("actor", event.Actor).
		Str("subject", event.Subject).
		Str("hash", event.Hash).
		Interface("details", event.Details).
		Msg("Audit event")

	return event
}

/* computeHash hashes the event content together with the previous hash */
func computeHash(event Event) string {
	payload := struct {
		ID       uuid.UUID              `json:"id"`
		Action   Action                 `json:"action"`
		Actor    string                 `json:"actor"`
		Subject  string                 `json:"subject"`
		Details  map[string]interface{} `json:"details"`
		At       time.Time              `json:"at"`
		PrevHash string                 `json:"prev_hash"`
	}{event.ID, event.Action, event.Actor, event.Subject, event.Details, event.At, event.PrevHash}

	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

/* Verify checks a chain of events for hash continuity */
func Verify(events []Event) bool {
	prev := ""
	for _, event := range events {
		if event.PrevHash != prev {
			return false
		}
		if computeHash(event) != event.Hash {
			return false
		}
		prev = event.Hash
	}
	return true
}
