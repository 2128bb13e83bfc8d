/*-------------------------------------------------------------------------
 *
 * models.go
 *    Database models for NeuronFlow
 *
 * Defines data structures for workflows, workflow steps, agents, agent
 * versions, performance metrics, collaboration sessions, chat sessions,
 * and chat messages.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/db/models.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

/* Workflow status values */
const (
	WorkflowPending   = "pending"
	WorkflowRunning   = "running"
	WorkflowCompleted = "completed"
	WorkflowFailed    = "failed"
)

/* Step status values */
const (
	StepPending   = "pending"
	StepRunning   = "running"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

/* Collaboration session status values */
const (
	CollabActive = "active"
	CollabEnded  = "ended"
)

type Workflow struct {
	ID             uuid.UUID  `db:"id"`
	Name           string     `db:"name"`
	Description    *string    `db:"description"`
	ProjectType    string     `db:"project_type"`
	Definition     JSONBMap   `db:"definition"`
	Status         string     `db:"status"`
	SessionID      *uuid.UUID `db:"session_id"`
	UserID         *string    `db:"user_id"`
	IdempotencyKey *string    `db:"idempotency_key"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

type WorkflowStep struct {
	ID               uuid.UUID      `db:"id"`
	WorkflowID       uuid.UUID      `db:"workflow_id"`
	Phase            string         `db:"phase"`
	Name             string         `db:"name"`
	Description      *string        `db:"description"`
	Status           string         `db:"status"`
	Inputs           JSONBMap       `db:"inputs"`
	Outputs          JSONBMap       `db:"outputs"`
	Agents           pq.StringArray `db:"agents"`
	DependsOn        pq.Int64Array  `db:"depends_on"`
	DispatchStrategy string         `db:"dispatch_strategy"`
	SideEffecting    bool           `db:"side_effecting"`
	MaxRetries       int            `db:"max_retries"`
	TimeoutSeconds   int            `db:"timeout_seconds"`
	StartedAt        *time.Time     `db:"started_at"`
	CompletedAt      *time.Time     `db:"completed_at"`
	Error            *string        `db:"error"`
	ExecutionOrder   int            `db:"execution_order"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

type Agent struct {
	ID             uuid.UUID      `db:"id"`
	Name           string         `db:"name"`
	Description    *string        `db:"description"`
	Class          string         `db:"class"`
	Persona        string         `db:"persona"`
	Capabilities   pq.StringArray `db:"capabilities"`
	ToolAllowances pq.StringArray `db:"tool_allowances"`
	ModelName      string         `db:"model_name"`
	Config         JSONBMap       `db:"config"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

/* AgentVersion is an immutable snapshot of an agent definition */
type AgentVersion struct {
	ID             uuid.UUID      `db:"id"`
	AgentID        uuid.UUID      `db:"agent_id"`
	VersionNumber  int            `db:"version_number"`
	Persona        string         `db:"persona"`
	Capabilities   pq.StringArray `db:"capabilities"`
	ToolAllowances pq.StringArray `db:"tool_allowances"`
	ModelName      string         `db:"model_name"`
	Config         JSONBMap       `db:"config"`
	IsActive       bool           `db:"is_active"`
	CreatedAt      time.Time      `db:"created_at"`
}

/* AgentPerformanceMetric rows are append-only; each evaluation window writes a new row */
type AgentPerformanceMetric struct {
	ID                  uuid.UUID `db:"id"`
	AgentID             uuid.UUID `db:"agent_id"`
	WorkflowID          uuid.UUID `db:"workflow_id"`
	TaskCompletionRate  float64   `db:"task_completion_rate"`
	AverageResponseTime float64   `db:"average_response_time"`
	ErrorRate           float64   `db:"error_rate"`
	QualityScore        float64   `db:"quality_score"`
	OverallScore        float64   `db:"overall_score"`
	SamplesCount        int       `db:"samples_count"`
	MeasuredAt          time.Time `db:"measured_at"`
}

type CollaborationSession struct {
	ID           uuid.UUID      `db:"id"`
	WorkflowID   uuid.UUID      `db:"workflow_id"`
	Objective    string         `db:"objective"`
	Participants pq.StringArray `db:"participants"`
	Context      JSONBMap       `db:"context"`
	Status       string         `db:"status"`
	Version      int            `db:"version"`
	StartedAt    time.Time      `db:"started_at"`
	EndedAt      *time.Time     `db:"ended_at"`
	Result       JSONBMap       `db:"result"`
}

type ChatSession struct {
	ID             uuid.UUID  `db:"id"`
	UserID         string     `db:"user_id"`
	Metadata       JSONBMap   `db:"metadata"`
	CreatedAt      time.Time  `db:"created_at"`
	LastActivityAt time.Time  `db:"last_activity_at"`
	EndedAt        *time.Time `db:"ended_at"`
}

type ChatMessage struct {
	ID        int64     `db:"id"`
	SessionID uuid.UUID `db:"session_id"`
	Sender    string    `db:"sender"`
	Content   string    `db:"content"`
	Widgets   JSONBList `db:"widgets"`
	Metadata  JSONBMap  `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}
