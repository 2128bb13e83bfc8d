/*-------------------------------------------------------------------------
 *
 * types.go
 *    Request and response types for the NeuronFlow API
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/types.go
 *
 *-------------------------------------------------------------------------
 */

package api

/* Workflow requests */

type StepRequest struct {
	Phase            string                 `json:"phase"`
	Name             string                 `json:"name"`
	Description      *string                `json:"description,omitempty"`
	Inputs           map[string]interface{} `json:"inputs,omitempty"`
	Agents           []string               `json:"agents"`
	DependsOn        []int                  `json:"depends_on,omitempty"`
	DispatchStrategy string                 `json:"dispatch_strategy,omitempty"`
	SideEffecting    bool                   `json:"side_effecting,omitempty"`
	MaxRetries       int                    `json:"max_retries,omitempty"`
	TimeoutSeconds   int                    `json:"timeout_seconds,omitempty"`
	ExecutionOrder   int                    `json:"execution_order"`
}

type CreateWorkflowRequest struct {
	Name           string                 `json:"name"`
	Description    *string                `json:"description,omitempty"`
	ProjectType    string                 `json:"project_type,omitempty"`
	Definition     map[string]interface{} `json:"definition,omitempty"`
	SessionID      *string                `json:"session_id,omitempty"`
	UserID         *string                `json:"user_id,omitempty"`
	IdempotencyKey *string                `json:"idempotency_key,omitempty"`
	Steps          []StepRequest          `json:"steps"`
	Start          bool                   `json:"start,omitempty"`
}

/* Agent requests */

type RegisterAgentRequest struct {
	Name           string                 `json:"name"`
	Description    *string                `json:"description,omitempty"`
	Class          string                 `json:"class"`
	Persona        string                 `json:"persona"`
	Capabilities   []string               `json:"capabilities,omitempty"`
	ToolAllowances []string               `json:"tool_allowances,omitempty"`
	ModelName      string                 `json:"model_name"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

type PublishVersionRequest struct {
	Persona        string                 `json:"persona"`
	Capabilities   []string               `json:"capabilities,omitempty"`
	ToolAllowances []string               `json:"tool_allowances,omitempty"`
	ModelName      string                 `json:"model_name"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

/* Chat requests */

type CreateSessionRequest struct {
	UserID   string                 `json:"user_id"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type SendMessageRequest struct {
	Message            string                 `json:"message"`
	Context            map[string]interface{} `json:"context,omitempty"`
	PreferredConnector string                 `json:"preferred_connector,omitempty"`
	Model              string                 `json:"model,omitempty"`
	Persona            string                 `json:"persona,omitempty"`
	MaxTokens          int                    `json:"max_tokens,omitempty"`
	Temperature        float64                `json:"temperature,omitempty"`
	Stream             bool                   `json:"stream,omitempty"`
	IncludeWidgets     bool                   `json:"include_widgets,omitempty"`
}

/* Collaboration requests */

type StartCollaborationRequest struct {
	WorkflowID   string                 `json:"workflow_id"`
	Objective    string                 `json:"objective"`
	Participants []string               `json:"participants"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

type ContributeRequest struct {
	Agent   string                 `json:"agent"`
	Type    string                 `json:"type,omitempty"`
	Content map[string]interface{} `json:"content"`
}

type EndCollaborationRequest struct {
	Result map[string]interface{} `json:"result,omitempty"`
}
