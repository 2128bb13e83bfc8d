/*-------------------------------------------------------------------------
 *
 * queries.go
 *    Workflow queries for NeuronFlow
 *
 * Provides database query functions for workflows and workflow steps,
 * including optimistic status transitions and cascade deletion.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/db/queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

/* ErrNotFound marks a lookup that matched no row; callers branch on it
 * with errors.Is */
var ErrNotFound = errors.New("not found")

/* Workflow queries */
const (
	createWorkflowQuery = `
		INSERT INTO neuronflow.workflows
		(name, description, project_type, definition, status, session_id, user_id, idempotency_key)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	getWorkflowByIDQuery = `SELECT * FROM neuronflow.workflows WHERE id = $1`

	getWorkflowByIdempotencyKeyQuery = `SELECT * FROM neuronflow.workflows WHERE idempotency_key = $1`

	listWorkflowsQuery = `SELECT * FROM neuronflow.workflows ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	transitionWorkflowStatusQuery = `
		UPDATE neuronflow.workflows
		SET status = $3, updated_at = NOW(),
			completed_at = CASE WHEN $3 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status = $2`

	deleteWorkflowQuery = `DELETE FROM neuronflow.workflows WHERE id = $1`
)

/* Workflow step queries */
const (
	createWorkflowStepQuery = `
		INSERT INTO neuronflow.workflow_steps
		(workflow_id, phase, name, description, status, inputs, agents, depends_on,
		 dispatch_strategy, side_effecting, max_retries, timeout_seconds, execution_order)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	getWorkflowStepByIDQuery = `SELECT * FROM neuronflow.workflow_steps WHERE id = $1`

	listWorkflowStepsQuery = `
		SELECT * FROM neuronflow.workflow_steps
		WHERE workflow_id = $1
		ORDER BY execution_order ASC`

	transitionStepStatusQuery = `
		UPDATE neuronflow.workflow_steps
		SET status = $3, updated_at = NOW(),
			started_at = CASE WHEN $3 = 'running' THEN NOW() ELSE started_at END
		WHERE id = $1 AND status = $2`

	finishStepQuery = `
		UPDATE neuronflow.workflow_steps
		SET status = $3, outputs = $4::jsonb, error = $5, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2`
)

type Queries struct {
	DB       *sqlx.DB
	connInfo func() string
}

/* GetDB returns the database connection (for compatibility) */
func (q *Queries) GetDB() *sqlx.DB {
	return q.DB
}

func NewQueries(db *sqlx.DB) *Queries {
	return &Queries{
		DB: db,
		connInfo: func() string {
			return "unknown database connection"
		},
	}
}

/* SetConnInfoFunc sets a function to retrieve connection info for error messages */
func (q *Queries) SetConnInfoFunc(fn func() string) {
	q.connInfo = fn
}

/* getConnInfoString returns connection info string */
func (q *Queries) getConnInfoString() string {
	if q.connInfo != nil {
		return q.connInfo()
	}
	return "unknown database connection"
}

/* formatQueryError formats a detailed query error message */
func (q *Queries) formatQueryError(operation string, paramCount int, table string, err error) error {
	return fmt.Errorf("query execution failed on %s: operation=%s, params=%d, table='%s', error=%w",
		q.getConnInfoString(), operation, paramCount, table, err)
}

/* Workflow methods */

/* CreateWorkflowWithSteps persists a workflow and its steps atomically */
func (q *Queries) CreateWorkflowWithSteps(ctx context.Context, workflow *Workflow, steps []WorkflowStep) error {
	tx, err := q.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("workflow transaction begin failed on %s: error=%w", q.getConnInfoString(), err)
	}
	defer tx.Rollback()

	params := []interface{}{workflow.Name, workflow.Description, workflow.ProjectType,
		workflow.Definition, workflow.Status, workflow.SessionID, workflow.UserID, workflow.IdempotencyKey}
	if err := tx.GetContext(ctx, workflow, createWorkflowQuery, params...); err != nil {
		return q.formatQueryError("INSERT", len(params), "neuronflow.workflows", err)
	}

	for i := range steps {
		steps[i].WorkflowID = workflow.ID
		stepParams := []interface{}{steps[i].WorkflowID, steps[i].Phase, steps[i].Name,
			steps[i].Description, steps[i].Status, steps[i].Inputs, steps[i].Agents,
			steps[i].DependsOn, steps[i].DispatchStrategy, steps[i].SideEffecting,
			steps[i].MaxRetries, steps[i].TimeoutSeconds, steps[i].ExecutionOrder}
		if err := tx.GetContext(ctx, &steps[i], createWorkflowStepQuery, stepParams...); err != nil {
			return q.formatQueryError("INSERT", len(stepParams), "neuronflow.workflow_steps", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("workflow transaction commit failed on %s: workflow_id='%s', error=%w",
			q.getConnInfoString(), workflow.ID.String(), err)
	}
	return nil
}

func (q *Queries) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	var workflow Workflow
	err := q.DB.GetContext(ctx, &workflow, getWorkflowByIDQuery, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow %w on %s: workflow_id='%s', table='neuronflow.workflows'",
			ErrNotFound, q.getConnInfoString(), id.String())
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.workflows", err)
	}
	return &workflow, nil
}

/* GetWorkflowByIdempotencyKey returns nil without error when no workflow matches */
func (q *Queries) GetWorkflowByIdempotencyKey(ctx context.Context, key string) (*Workflow, error) {
	var workflow Workflow
	err := q.DB.GetContext(ctx, &workflow, getWorkflowByIdempotencyKeyQuery, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.workflows", err)
	}
	return &workflow, nil
}

func (q *Queries) ListWorkflows(ctx context.Context, limit, offset int) ([]Workflow, error) {
	var workflows []Workflow
	err := q.DB.SelectContext(ctx, &workflows, listWorkflowsQuery, limit, offset)
	if err != nil {
		return nil, q.formatQueryError("SELECT", 2, "neuronflow.workflows", err)
	}
	return workflows, nil
}

/* TransitionWorkflowStatus applies a status transition only when the prior
 * status still matches; returns false when the row was concurrently moved */
func (q *Queries) TransitionWorkflowStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	result, err := q.DB.ExecContext(ctx, transitionWorkflowStatusQuery, id, from, to)
	if err != nil {
		return false, q.formatQueryError("UPDATE", 3, "neuronflow.workflows", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for UPDATE on %s: workflow_id='%s', error=%w",
			q.getConnInfoString(), id.String(), err)
	}
	return rowsAffected > 0, nil
}

/* DeleteWorkflow removes a workflow; steps, collaboration sessions, and
 * performance metric rows are removed by ON DELETE CASCADE */
func (q *Queries) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	result, err := q.DB.ExecContext(ctx, deleteWorkflowQuery, id)
	if err != nil {
		return q.formatQueryError("DELETE", 1, "neuronflow.workflows", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for DELETE on %s: workflow_id='%s', error=%w",
			q.getConnInfoString(), id.String(), err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("workflow %w on %s: workflow_id='%s', table='neuronflow.workflows', rows_affected=0",
			ErrNotFound, q.getConnInfoString(), id.String())
	}
	return nil
}

/* Workflow step methods */

func (q *Queries) GetWorkflowStepByID(ctx context.Context, id uuid.UUID) (*WorkflowStep, error) {
	var step WorkflowStep
	err := q.DB.GetContext(ctx, &step, getWorkflowStepByIDQuery, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow step %w on %s: step_id='%s', table='neuronflow.workflow_steps'",
			ErrNotFound, q.getConnInfoString(), id.String())
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.workflow_steps", err)
	}
	return &step, nil
}

func (q *Queries) ListWorkflowSteps(ctx context.Context, workflowID uuid.UUID) ([]WorkflowStep, error) {
	var steps []WorkflowStep
	err := q.DB.SelectContext(ctx, &steps, listWorkflowStepsQuery, workflowID)
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.workflow_steps", err)
	}
	return steps, nil
}

/* TransitionStepStatus applies pending->running style transitions with a
 * prior-status guard; a stale transition returns false, never overwrites */
func (q *Queries) TransitionStepStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	result, err := q.DB.ExecContext(ctx, transitionStepStatusQuery, id, from, to)
	if err != nil {
		return false, q.formatQueryError("UPDATE", 3, "neuronflow.workflow_steps", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for UPDATE on %s: step_id='%s', error=%w",
			q.getConnInfoString(), id.String(), err)
	}
	return rowsAffected > 0, nil
}

/* FinishStep writes a terminal step status with outputs and error text */
func (q *Queries) FinishStep(ctx context.Context, id uuid.UUID, status string, outputs JSONBMap, errMsg *string) (bool, error) {
	result, err := q.DB.ExecContext(ctx, finishStepQuery, id, StepRunning, status, outputs, errMsg)
	if err != nil {
		return false, q.formatQueryError("UPDATE", 5, "neuronflow.workflow_steps", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for UPDATE on %s: step_id='%s', error=%w",
			q.getConnInfoString(), id.String(), err)
	}
	return rowsAffected > 0, nil
}
