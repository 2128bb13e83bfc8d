/*-------------------------------------------------------------------------
 *
 * gateway.go
 *    Chat protocol gateway for NeuronFlow
 *
 * Implements session lifecycle and the unary/streaming message exchange
 * used to invoke any agent through a model connector.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/gateway/gateway.go
 *
 *-------------------------------------------------------------------------
 */

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neurondb/NeuronFlow/internal/connectors"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* Message senders */
const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

/* ErrSessionEnded marks a send against a session that already ended */
var ErrSessionEnded = errors.New("chat session ended")

/* Store is the persistence surface the gateway needs */
type Store interface {
	CreateChatSession(ctx context.Context, session *db.ChatSession) error
	GetChatSession(ctx context.Context, id uuid.UUID) (*db.ChatSession, error)
	EndChatSession(ctx context.Context, id uuid.UUID) (*time.Time, bool, error)
	TouchChatSession(ctx context.Context, id uuid.UUID) error
	CreateChatMessage(ctx context.Context, message *db.ChatMessage) error
	ListChatMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]db.ChatMessage, error)
	CountChatMessages(ctx context.Context, sessionID uuid.UUID) (int, error)
}

/* SendMessageOptions tune a single message exchange */
type SendMessageOptions struct {
	PreferredConnector string
	Model              string
	Persona            string
	MaxTokens          int
	Temperature        float64
}

/* SendMessageResponse is the unary reply */
type SendMessageResponse struct {
	ResponseID       string                 `json:"response_id"`
	Content          string                 `json:"content"`
	Widgets          []connectors.Widget    `json:"widgets"`
	SuggestedActions []connectors.Action    `json:"suggested_actions"`
	Metadata         map[string]interface{} `json:"metadata"`
}

/* StreamResponse is one chunk of the streaming reply */
type StreamResponse struct {
	ChunkID string              `json:"chunk_id"`
	Content string              `json:"content"`
	IsFinal bool                `json:"is_final"`
	Widgets []connectors.Widget `json:"widgets,omitempty"`
}

/* Gateway implements the chat protocol over a connector router */
type Gateway struct {
	store  Store
	router *connectors.Router
}

func NewGateway(store Store, router *connectors.Router) *Gateway {
	return &Gateway{
		store:  store,
		router: router,
	}
}

/* CreateSession creates a new chat session */
func (g *Gateway) CreateSession(ctx context.Context, userID string, metadata map[string]interface{}) (*db.ChatSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("chat session creation failed: user_id_empty=true")
	}

	session := &db.ChatSession{
		UserID:   userID,
		Metadata: db.FromMap(metadata),
	}
	if err := g.store.CreateChatSession(ctx, session); err != nil {
		return nil, fmt.Errorf("chat session creation failed: user_id='%s', error=%w", userID, err)
	}
	return session, nil
}

/* EndSession ends a chat session; ending an already-ended session reports
 * success=false rather than an error */
func (g *Gateway) EndSession(ctx context.Context, sessionID uuid.UUID) (bool, *time.Time, error) {
	endedAt, ok, err := g.store.EndChatSession(ctx, sessionID)
	if err != nil {
		return false, nil, fmt.Errorf("chat session end failed: session_id='%s', error=%w", sessionID.String(), err)
	}
	return ok, endedAt, nil
}

/* GetHistory returns a page of prior messages plus the total count */
func (g *Gateway) GetHistory(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]db.ChatMessage, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	total, err := g.store.CountChatMessages(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("chat history retrieval failed: session_id='%s', error=%w", sessionID.String(), err)
	}

	messages, err := g.store.ListChatMessages(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("chat history retrieval failed: session_id='%s', error=%w", sessionID.String(), err)
	}
	return messages, total, nil
}

/* activeSession loads a session and rejects ended ones */
func (g *Gateway) activeSession(ctx context.Context, sessionID uuid.UUID) (*db.ChatSession, error) {
	session, err := g.store.GetChatSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.EndedAt != nil {
		return nil, fmt.Errorf("%w: session_id='%s', ended_at='%s'",
			ErrSessionEnded, sessionID.String(), session.EndedAt.Format(time.RFC3339))
	}
	return session, nil
}

/* SendMessage sends one message and waits for the full agent reply */
func (g *Gateway) SendMessage(ctx context.Context, sessionID uuid.UUID, message string, msgContext map[string]interface{}, opts SendMessageOptions) (*SendMessageResponse, error) {
	if message == "" {
		return nil, fmt.Errorf("message send failed: session_id='%s', message_empty=true", sessionID.String())
	}

	if _, err := g.activeSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("message send failed: error=%w", err)
	}

	connector, err := g.router.Route(opts.PreferredConnector)
	if err != nil {
		return nil, fmt.Errorf("message send failed: session_id='%s', error=%w", sessionID.String(), err)
	}

	/* Persist the user message before invoking */
	userMsg := &db.ChatMessage{
		SessionID: sessionID,
		Sender:    SenderUser,
		Content:   message,
		Metadata:  db.FromMap(msgContext),
	}
	if err := g.store.CreateChatMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("message send failed: session_id='%s', error=%w", sessionID.String(), err)
	}

	start := time.Now()
	reply, err := connector.Invoke(ctx, connectors.InvokeRequest{
		SessionID:   sessionID,
		Message:     message,
		Persona:     opts.Persona,
		Context:     msgContext,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		metrics.RecordChatInvocation(connector.Name(), "error", 0)
		return nil, fmt.Errorf("message send failed: session_id='%s', connector='%s', error=%w",
			sessionID.String(), connector.Name(), err)
	}
	processingTime := time.Since(start)
	metrics.RecordChatInvocation(connector.Name(), "ok", reply.TokensUsed)

	responseID := uuid.NewString()
	metadata := map[string]interface{}{
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"tokens_used":     reply.TokensUsed,
		"processing_time": processingTime.Seconds(),
		"model_used":      reply.ModelUsed,
	}

	agentMsg := &db.ChatMessage{
		SessionID: sessionID,
		Sender:    SenderAgent,
		Content:   reply.Content,
		Widgets:   widgetsToJSONB(reply.Widgets),
		Metadata:  db.FromMap(metadata),
	}
	if err := g.store.CreateChatMessage(ctx, agentMsg); err != nil {
		return nil, fmt.Errorf("message send failed: session_id='%s', error=%w", sessionID.String(), err)
	}

	if err := g.store.TouchChatSession(ctx, sessionID); err != nil {
		metrics.WarnWithContext(ctx, "Failed to refresh session activity", map[string]interface{}{
			"session_id": sessionID.String(),
			"error":      err.Error(),
		})
	}

	return &SendMessageResponse{
		ResponseID:       responseID,
		Content:          reply.Content,
		Widgets:          reply.Widgets,
		SuggestedActions: reply.Actions,
		Metadata:         metadata,
	}, nil
}

/* StreamMessage sends one message and returns an ordered, finite chunk
 * sequence terminated by exactly one final chunk. Cancelling ctx propagates
 * to the connector and stops upstream chunk production. The full content is
 * persisted as a single agent message once the final chunk arrives. */
func (g *Gateway) StreamMessage(ctx context.Context, sessionID uuid.UUID, message string, msgContext map[string]interface{}, opts SendMessageOptions, includeWidgets bool) (<-chan StreamResponse, error) {
	if message == "" {
		return nil, fmt.Errorf("message stream failed: session_id='%s', message_empty=true", sessionID.String())
	}

	if _, err := g.activeSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("message stream failed: error=%w", err)
	}

	connector, err := g.router.Route(opts.PreferredConnector)
	if err != nil {
		return nil, fmt.Errorf("message stream failed: session_id='%s', error=%w", sessionID.String(), err)
	}

	userMsg := &db.ChatMessage{
		SessionID: sessionID,
		Sender:    SenderUser,
		Content:   message,
		Metadata:  db.FromMap(msgContext),
	}
	if err := g.store.CreateChatMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("message stream failed: session_id='%s', error=%w", sessionID.String(), err)
	}

	chunks, err := connector.Stream(ctx, connectors.InvokeRequest{
		SessionID:   sessionID,
		Message:     message,
		Persona:     opts.Persona,
		Context:     msgContext,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		metrics.RecordChatInvocation(connector.Name(), "error", 0)
		return nil, fmt.Errorf("message stream failed: session_id='%s', connector='%s', error=%w",
			sessionID.String(), connector.Name(), err)
	}

	out := make(chan StreamResponse)
	go func() {
		defer close(out)

		var content string
		var widgets []connectors.Widget
		for chunk := range chunks {
			content += chunk.Content
			if includeWidgets {
				widgets = append(widgets, chunk.Widgets...)
			}

			resp := StreamResponse{
				ChunkID: chunk.ChunkID,
				Content: chunk.Content,
				IsFinal: chunk.IsFinal,
			}
			if includeWidgets {
				resp.Widgets = chunk.Widgets
			}

			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}

			if chunk.IsFinal {
				break
			}
		}

		if ctx.Err() != nil {
			return
		}
		metrics.RecordChatInvocation(connector.Name(), "ok", 0)

		agentMsg := &db.ChatMessage{
			SessionID: sessionID,
			Sender:    SenderAgent,
			Content:   content,
			Widgets:   widgetsToJSONB(widgets),
			Metadata: db.JSONBMap{
				"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
				"streamed":  true,
			},
		}
		if err := g.store.CreateChatMessage(ctx, agentMsg); err != nil {
			metrics.ErrorWithContext(ctx, "Failed to persist streamed agent message", err, map[string]interface{}{
				"session_id": sessionID.String(),
			})
		}
		if err := g.store.TouchChatSession(ctx, sessionID); err != nil {
			metrics.WarnWithContext(ctx, "Failed to refresh session activity", map[string]interface{}{
				"session_id": sessionID.String(),
				"error":      err.Error(),
			})
		}
	}()

	return out, nil
}

/* widgetsToJSONB converts widgets for jsonb storage */
func widgetsToJSONB(widgets []connectors.Widget) db.JSONBList {
	if len(widgets) == 0 {
		return db.JSONBList{}
	}
	list := make(db.JSONBList, len(widgets))
	for i, w := range widgets {
		list[i] = map[string]interface{}{
			"type":      w.Type,
			"widget_id": w.WidgetID,
			"config":    w.Config,
			"data":      w.Data,
		}
	}
	return list
}
