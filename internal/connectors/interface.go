/*-------------------------------------------------------------------------
 *
 * interface.go
 *    Model connector framework interface
 *
 * Provides the interface for model-provider connectors and the transport
 * value objects (widgets, actions, chunks) agent responses carry.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/connectors/interface.go
 *
 *-------------------------------------------------------------------------
 */

package connectors

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

/* Action types */
const (
	ActionUnspecified = "unspecified"
	ActionNavigate    = "navigate"
	ActionExecute     = "execute"
	ActionExpand      = "expand"
	ActionExternal    = "external"
)

/* Widget is a structured UI-facing payload emitted by an agent response */
type Widget struct {
	Type     string                 `json:"type"`
	WidgetID string                 `json:"widget_id"`
	Config   map[string]interface{} `json:"config"`
	Data     map[string]interface{} `json:"data"`
}

/* Action is a suggested follow-up emitted by an agent response */
type Action struct {
	ActionID    string                 `json:"action_id"`
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Type        string                 `json:"type"`
	Params      map[string]interface{} `json:"params"`
}

/* InvokeRequest carries one agent invocation through a connector */
type InvokeRequest struct {
	SessionID   uuid.UUID
	Message     string
	Persona     string
	Context     map[string]interface{}
	Model       string
	MaxTokens   int
	Temperature float64
}

/* InvokeResponse is the unary connector reply */
type InvokeResponse struct {
	Content    string
	Widgets    []Widget
	Actions    []Action
	TokensUsed int
	ModelUsed  string
}

/* StreamChunk is one element of a streamed connector reply; the sequence is
 * finite and terminated by exactly one chunk with IsFinal set */
type StreamChunk struct {
	ChunkID string
	Content string
	IsFinal bool
	Widgets []Widget
}

/* Connector defines the interface for model-provider connectors */
type Connector interface {
	/* Name returns the connector routing name */
	Name() string

	/* Invoke sends one message and waits for the full reply */
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)

	/* Stream sends one message and returns an ordered, finite chunk
	 * sequence; cancelling ctx stops upstream chunk production */
	Stream(ctx context.Context, req InvokeRequest) (<-chan StreamChunk, error)

	/* Health checks connector availability */
	Health(ctx context.Context) error
}

/* UnavailableError marks a transient connector failure (timeout, provider
 * unreachable); callers may retry */
type UnavailableError struct {
	Connector string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("connector unavailable: connector='%s', error=%v", e.Connector, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

/* FatalError marks an unrecoverable condition explicitly reported by the
 * agent; callers must not retry */
type FatalError struct {
	Connector string
	Reason    string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("agent reported unrecoverable error: connector='%s', reason='%s'", e.Connector, e.Reason)
}
