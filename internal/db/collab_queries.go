/*-------------------------------------------------------------------------
 *
 * collab_queries.go
 *    Collaboration session queries for NeuronFlow
 *
 * Provides database query functions for collaboration sessions with
 * optimistic context versioning.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/db/collab_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const (
	createCollabSessionQuery = `
		INSERT INTO neuronflow.collaboration_sessions
		(workflow_id, objective, participants, context, status)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		RETURNING id, version, started_at`

	getCollabSessionQuery = `SELECT * FROM neuronflow.collaboration_sessions WHERE id = $1`

	listCollabSessionsByWorkflowQuery = `
		SELECT * FROM neuronflow.collaboration_sessions
		WHERE workflow_id = $1
		ORDER BY started_at DESC`

	updateCollabContextQuery = `
		UPDATE neuronflow.collaboration_sessions
		SET context = $2::jsonb, version = version + 1
		WHERE id = $1 AND version = $3 AND status = 'active'`

	endCollabSessionQuery = `
		UPDATE neuronflow.collaboration_sessions
		SET status = 'ended', result = $2::jsonb, ended_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ended_at`
)

func (q *Queries) CreateCollabSession(ctx context.Context, session *CollaborationSession) error {
	params := []interface{}{session.WorkflowID, session.Objective, session.Participants,
		session.Context, session.Status}
	err := q.DB.GetContext(ctx, session, createCollabSessionQuery, params...)
	if err != nil {
		return q.formatQueryError("INSERT", len(params), "neuronflow.collaboration_sessions", err)
	}
	return nil
}

func (q *Queries) GetCollabSession(ctx context.Context, id uuid.UUID) (*CollaborationSession, error) {
	var session CollaborationSession
	err := q.DB.GetContext(ctx, &session, getCollabSessionQuery, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("collaboration session %w on %s: session_id='%s', table='neuronflow.collaboration_sessions'",
			ErrNotFound, q.getConnInfoString(), id.String())
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.collaboration_sessions", err)
	}
	return &session, nil
}

func (q *Queries) ListCollabSessionsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]CollaborationSession, error) {
	var sessions []CollaborationSession
	err := q.DB.SelectContext(ctx, &sessions, listCollabSessionsByWorkflowQuery, workflowID)
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.collaboration_sessions", err)
	}
	return sessions, nil
}

/* UpdateCollabContext commits a context write only when the caller's version
 * still matches the row; a stale write returns false for the caller to retry */
func (q *Queries) UpdateCollabContext(ctx context.Context, id uuid.UUID, context_ JSONBMap, version int) (bool, error) {
	result, err := q.DB.ExecContext(ctx, updateCollabContextQuery, id, context_, version)
	if err != nil {
		return false, q.formatQueryError("UPDATE", 3, "neuronflow.collaboration_sessions", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for UPDATE on %s: session_id='%s', error=%w",
			q.getConnInfoString(), id.String(), err)
	}
	return rowsAffected > 0, nil
}

/* EndCollabSession marks a session ended with its terminal result; returns
 * false when the session was already ended */
func (q *Queries) EndCollabSession(ctx context.Context, id uuid.UUID, result JSONBMap) (bool, error) {
	var endedAt sql.NullTime
	err := q.DB.GetContext(ctx, &endedAt, endCollabSessionQuery, id, result)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, q.formatQueryError("UPDATE", 2, "neuronflow.collaboration_sessions", err)
	}
	return true, nil
}
