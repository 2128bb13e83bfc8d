/*-------------------------------------------------------------------------
 *
 * chat_queries.go
 *    Chat protocol queries for NeuronFlow
 *
 * Provides database query functions for chat sessions and chat messages.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/db/chat_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* Chat session queries */
const (
	createChatSessionQuery = `
		INSERT INTO neuronflow.chat_sessions (user_id, metadata)
		VALUES ($1, $2::jsonb)
		RETURNING id, created_at, last_activity_at`

	getChatSessionQuery = `SELECT * FROM neuronflow.chat_sessions WHERE id = $1`

	endChatSessionQuery = `
		UPDATE neuronflow.chat_sessions
		SET ended_at = NOW()
		WHERE id = $1 AND ended_at IS NULL
		RETURNING ended_at`

	touchChatSessionQuery = `
		UPDATE neuronflow.chat_sessions
		SET last_activity_at = NOW()
		WHERE id = $1`

	deleteStaleChatSessionsQuery = `
		DELETE FROM neuronflow.chat_sessions
		WHERE ended_at IS NULL AND last_activity_at < $1`
)

/* Chat message queries */
const (
	createChatMessageQuery = `
		INSERT INTO neuronflow.chat_messages (session_id, sender, content, widgets, metadata)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
		RETURNING id, created_at`

	listChatMessagesQuery = `
		SELECT * FROM neuronflow.chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`

	countChatMessagesQuery = `SELECT COUNT(*) FROM neuronflow.chat_messages WHERE session_id = $1`
)

/* Chat session methods */

func (q *Queries) CreateChatSession(ctx context.Context, session *ChatSession) error {
	params := []interface{}{session.UserID, session.Metadata}
	err := q.DB.GetContext(ctx, session, createChatSessionQuery, params...)
	if err != nil {
		return q.formatQueryError("INSERT", len(params), "neuronflow.chat_sessions", err)
	}
	return nil
}

func (q *Queries) GetChatSession(ctx context.Context, id uuid.UUID) (*ChatSession, error) {
	var session ChatSession
	err := q.DB.GetContext(ctx, &session, getChatSessionQuery, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chat session %w on %s: session_id='%s', table='neuronflow.chat_sessions'",
			ErrNotFound, q.getConnInfoString(), id.String())
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.chat_sessions", err)
	}
	return &session, nil
}

/* EndChatSession marks a session ended; returns the ended timestamp, or
 * false when the session was already ended or does not exist */
func (q *Queries) EndChatSession(ctx context.Context, id uuid.UUID) (*time.Time, bool, error) {
	var endedAt time.Time
	err := q.DB.GetContext(ctx, &endedAt, endChatSessionQuery, id)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, q.formatQueryError("UPDATE", 1, "neuronflow.chat_sessions", err)
	}
	return &endedAt, true, nil
}

func (q *Queries) TouchChatSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.DB.ExecContext(ctx, touchChatSessionQuery, id)
	if err != nil {
		return q.formatQueryError("UPDATE", 1, "neuronflow.chat_sessions", err)
	}
	return nil
}

/* DeleteStaleChatSessions removes open sessions idle since before cutoff */
func (q *Queries) DeleteStaleChatSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.DB.ExecContext(ctx, deleteStaleChatSessionsQuery, cutoff)
	if err != nil {
		return 0, q.formatQueryError("DELETE", 1, "neuronflow.chat_sessions", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for DELETE on %s: table='neuronflow.chat_sessions', error=%w",
			q.getConnInfoString(), err)
	}
	return rowsAffected, nil
}

/* Chat message methods */

func (q *Queries) CreateChatMessage(ctx context.Context, message *ChatMessage) error {
	params := []interface{}{message.SessionID, message.Sender, message.Content,
		message.Widgets, message.Metadata}
	err := q.DB.GetContext(ctx, message, createChatMessageQuery, params...)
	if err != nil {
		return q.formatQueryError("INSERT", len(params), "neuronflow.chat_messages", err)
	}
	return nil
}

func (q *Queries) ListChatMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]ChatMessage, error) {
	var messages []ChatMessage
	params := []interface{}{sessionID, limit, offset}
	err := q.DB.SelectContext(ctx, &messages, listChatMessagesQuery, params...)
	if err != nil {
		return nil, q.formatQueryError("SELECT", len(params), "neuronflow.chat_messages", err)
	}
	return messages, nil
}

func (q *Queries) CountChatMessages(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := q.DB.GetContext(ctx, &count, countChatMessagesQuery, sessionID)
	if err != nil {
		return 0, q.formatQueryError("SELECT", 1, "neuronflow.chat_messages", err)
	}
	return count, nil
}
