/*-------------------------------------------------------------------------
 *
 * manager.go
 *    Collaboration session manager for NeuronFlow
 *
 * Coordinates multi-agent collaboration sessions around a shared context.
 * Context writes are serialized per session: an in-process mutex orders
 * local writers, and the version-guarded update catches writers on other
 * processes, so no contribution is ever lost to a concurrent overwrite.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/collab/manager.go
 *
 *-------------------------------------------------------------------------
 */

package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* maxContributeRetries bounds version-conflict retries per contribution */
const maxContributeRetries = 5

/* Sentinel errors callers can match with errors.Is */
var (
	ErrValidation = errors.New("collaboration request invalid")
	ErrRejected   = errors.New("contribution rejected")
)

/* Store is the persistence surface the manager needs */
type Store interface {
	CreateCollabSession(ctx context.Context, session *db.CollaborationSession) error
	GetCollabSession(ctx context.Context, id uuid.UUID) (*db.CollaborationSession, error)
	ListCollabSessionsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]db.CollaborationSession, error)
	UpdateCollabContext(ctx context.Context, id uuid.UUID, context_ db.JSONBMap, version int) (bool, error)
	EndCollabSession(ctx context.Context, id uuid.UUID, result db.JSONBMap) (bool, error)
}

/* Contribution is one agent's addition to the shared context */
type Contribution struct {
	Agent   string                 `json:"agent"`
	Type    string                 `json:"type"`
	Content map[string]interface{} `json:"content"`
}

/* Manager coordinates collaboration sessions */
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

/* lockFor returns the per-session write lock */
func (m *Manager) lockFor(sessionID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[sessionID]; !ok {
		m.locks[sessionID] = &sync.Mutex{}
	}
	return m.locks[sessionID]
}

/* releaseLock drops the per-session lock once a session ends */
func (m *Manager) releaseLock(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, sessionID)
}

/* Start opens a collaboration session for a workflow */
func (m *Manager) Start(ctx context.Context, workflowID uuid.UUID, objective string, participants []string, initialContext map[string]interface{}) (*db.CollaborationSession, error) {
	if objective == "" {
		return nil, fmt.Errorf("%w: workflow_id='%s', objective_empty=true", ErrValidation, workflowID.String())
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: workflow_id='%s', participants_empty=true", ErrValidation, workflowID.String())
	}

	shared := db.FromMap(initialContext)
	shared["contributions"] = []interface{}{}

	session := &db.CollaborationSession{
		WorkflowID:   workflowID,
		Objective:    objective,
		Participants: pq.StringArray(participants),
		Context:      shared,
		Status:       db.CollabActive,
	}
	if err := m.store.CreateCollabSession(ctx, session); err != nil {
		return nil, fmt.Errorf("collaboration start failed: workflow_id='%s', error=%w", workflowID.String(), err)
	}

	metrics.InfoWithContext(ctx, "Collaboration session started", map[string]interface{}{
		"session_id":   session.ID.String(),
		"workflow_id":  workflowID.String(),
		"participants": len(participants),
	})
	return session, nil
}

/* Get returns a collaboration session */
func (m *Manager) Get(ctx context.Context, sessionID uuid.UUID) (*db.CollaborationSession, error) {
	return m.store.GetCollabSession(ctx, sessionID)
}

/* ListByWorkflow returns a workflow's collaboration sessions */
func (m *Manager) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]db.CollaborationSession, error) {
	return m.store.ListCollabSessionsByWorkflow(ctx, workflowID)
}

/* Contribute merges one agent's contribution into the shared context.
 * Writes are read-modify-write under the session lock; the version guard
 * rejects writes raced by another process, in which case the merge is
 * re-run against the fresh context. */
func (m *Manager) Contribute(ctx context.Context, sessionID uuid.UUID, contribution Contribution) (*db.CollaborationSession, error) {
	if contribution.Agent == "" {
		return nil, fmt.Errorf("%w: session_id='%s', agent_empty=true", ErrValidation, sessionID.String())
	}

	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < maxContributeRetries; attempt++ {
		session, err := m.store.GetCollabSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("contribution failed: session_id='%s', error=%w", sessionID.String(), err)
		}
		if session.Status != db.CollabActive {
			return nil, fmt.Errorf("%w: session_id='%s', status='%s'",
				ErrRejected, sessionID.String(), session.Status)
		}
		if !isParticipant(session.Participants, contribution.Agent) {
			return nil, fmt.Errorf("%w: session_id='%s', agent='%s', participant=false",
				ErrRejected, sessionID.String(), contribution.Agent)
		}

		updated := mergeContribution(session.Context, contribution)
		ok, err := m.store.UpdateCollabContext(ctx, sessionID, updated, session.Version)
		if err != nil {
			return nil, fmt.Errorf("contribution failed: session_id='%s', error=%w", sessionID.String(), err)
		}
		if ok {
			session.Context = updated
			session.Version++
			return session, nil
		}

		metrics.InfoWithContext(ctx, "Contribution version conflict, retrying", map[string]interface{}{
			"session_id": sessionID.String(),
			"agent":      contribution.Agent,
			"attempt":    attempt + 1,
		})
	}

	return nil, fmt.Errorf("contribution failed: session_id='%s', agent='%s', version_conflicts=%d",
		sessionID.String(), contribution.Agent, maxContributeRetries)
}

/* End closes a session with its terminal result; ending an already-ended
 * session reports success=false rather than an error */
func (m *Manager) End(ctx context.Context, sessionID uuid.UUID, result map[string]interface{}) (bool, error) {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ok, err := m.store.EndCollabSession(ctx, sessionID, db.FromMap(result))
	if err != nil {
		return false, fmt.Errorf("collaboration end failed: session_id='%s', error=%w", sessionID.String(), err)
	}
	if ok {
		m.releaseLock(sessionID)
		metrics.InfoWithContext(ctx, "Collaboration session ended", map[string]interface{}{
			"session_id": sessionID.String(),
		})
	}
	return ok, nil
}

/* mergeContribution produces a new context with the contribution's content
 * merged in and an entry appended to the contribution log. The input
 * context is not mutated, so a failed version-guarded write leaves nothing
 * half-applied. */
func mergeContribution(current db.JSONBMap, contribution Contribution) db.JSONBMap {
	updated := db.JSONBMap{}
	for k, v := range current {
		updated[k] = v
	}
	for k, v := range contribution.Content {
		updated[k] = v
	}

	entry := map[string]interface{}{
		"agent":   contribution.Agent,
		"type":    contribution.Type,
		"content": contribution.Content,
		"at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if log, ok := updated["contributions"].([]interface{}); ok {
		updated["contributions"] = append(append([]interface{}{}, log...), entry)
	} else {
		updated["contributions"] = []interface{}{entry}
	}
	return updated
}

func isParticipant(participants []string, agent string) bool {
	for _, p := range participants {
		if p == agent {
			return true
		}
	}
	return false
}
