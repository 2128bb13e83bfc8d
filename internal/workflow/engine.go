/*-------------------------------------------------------------------------
 *
 * engine.go
 *    Workflow engine for NeuronFlow
 *
 * Validates workflow definitions as DAGs, persists them atomically, and
 * drives execution by repeatedly dispatching the ready set (pending steps
 * whose dependencies have all completed) with bounded parallelism until
 * the workflow reaches a terminal status.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/engine.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/dispatcher"
	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* Store is the persistence surface the engine needs */
type Store interface {
	CreateWorkflowWithSteps(ctx context.Context, workflow *db.Workflow, steps []db.WorkflowStep) error
	GetWorkflowByID(ctx context.Context, id uuid.UUID) (*db.Workflow, error)
	GetWorkflowByIdempotencyKey(ctx context.Context, key string) (*db.Workflow, error)
	ListWorkflows(ctx context.Context, limit, offset int) ([]db.Workflow, error)
	TransitionWorkflowStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error
	ListWorkflowSteps(ctx context.Context, workflowID uuid.UUID) ([]db.WorkflowStep, error)
}

/* Sentinel errors callers can match with errors.Is */
var (
	ErrValidation       = errors.New("workflow validation failed")
	ErrDeletionRejected = errors.New("workflow deletion rejected")
)

/* runPollInterval spaces re-reads while another runner's steps are in flight */
const runPollInterval = 200 * time.Millisecond

/* StepDispatcher runs one step to a terminal status */
type StepDispatcher interface {
	Dispatch(ctx context.Context, step *db.WorkflowStep) (*dispatcher.Result, error)
}

/* StepSpec describes one step of a workflow definition */
type StepSpec struct {
	Phase            string
	Name             string
	Description      *string
	Inputs           map[string]interface{}
	Agents           []string
	DependsOn        []int
	DispatchStrategy string
	SideEffecting    bool
	MaxRetries       int
	TimeoutSeconds   int
	ExecutionOrder   int
}

/* CreateRequest describes a workflow to create */
type CreateRequest struct {
	Name           string
	Description    *string
	ProjectType    string
	Definition     map[string]interface{}
	SessionID      *uuid.UUID
	UserID         *string
	IdempotencyKey *string
	Steps          []StepSpec
}

/* Status is a workflow with its steps and progress counts */
type Status struct {
	Workflow  *db.Workflow
	Steps     []db.WorkflowStep
	Completed int
	Failed    int
	Running   int
	Pending   int
}

/* Engine creates and executes workflows */
type Engine struct {
	store            Store
	dispatcher       StepDispatcher
	maxParallelSteps int
}

func NewEngine(store Store, stepDispatcher StepDispatcher, maxParallelSteps int) *Engine {
	if maxParallelSteps <= 0 {
		maxParallelSteps = 4
	}
	return &Engine{
		store:            store,
		dispatcher:       stepDispatcher,
		maxParallelSteps: maxParallelSteps,
	}
}

/* CreateWorkflow validates and persists a workflow with its steps. A
 * request carrying an idempotency key already seen returns the existing
 * workflow instead of creating a duplicate. */
func (e *Engine) CreateWorkflow(ctx context.Context, req CreateRequest) (*db.Workflow, []db.WorkflowStep, error) {
	if req.Name == "" {
		return nil, nil, fmt.Errorf("%w: name_empty=true", ErrValidation)
	}
	if len(req.Steps) == 0 {
		return nil, nil, fmt.Errorf("%w: name='%s', steps_empty=true", ErrValidation, req.Name)
	}

	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		existing, err := e.store.GetWorkflowByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err != nil {
			return nil, nil, fmt.Errorf("workflow creation failed: idempotency_key='%s', error=%w",
				*req.IdempotencyKey, err)
		}
		if existing != nil {
			steps, err := e.store.ListWorkflowSteps(ctx, existing.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("workflow creation failed: workflow_id='%s', error=%w",
					existing.ID.String(), err)
			}
			metrics.InfoWithContext(ctx, "Idempotent workflow creation replayed", map[string]interface{}{
				"workflow_id":     existing.ID.String(),
				"idempotency_key": *req.IdempotencyKey,
			})
			return existing, steps, nil
		}
	}

	if err := validateSteps(req.Steps); err != nil {
		return nil, nil, fmt.Errorf("%w: name='%s', error=%v", ErrValidation, req.Name, err)
	}

	workflow := &db.Workflow{
		Name:           req.Name,
		Description:    req.Description,
		ProjectType:    req.ProjectType,
		Definition:     db.FromMap(req.Definition),
		Status:         db.WorkflowPending,
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
	}

	steps := make([]db.WorkflowStep, len(req.Steps))
	for i, spec := range req.Steps {
		dependsOn := make(pq.Int64Array, len(spec.DependsOn))
		for j, d := range spec.DependsOn {
			dependsOn[j] = int64(d)
		}
		strategy := spec.DispatchStrategy
		if strategy == "" {
			strategy = dispatcher.StrategyFanout
		}
		steps[i] = db.WorkflowStep{
			Phase:            spec.Phase,
			Name:             spec.Name,
			Description:      spec.Description,
			Status:           db.StepPending,
			Inputs:           db.FromMap(spec.Inputs),
			Agents:           pq.StringArray(spec.Agents),
			DependsOn:        dependsOn,
			DispatchStrategy: strategy,
			SideEffecting:    spec.SideEffecting,
			MaxRetries:       spec.MaxRetries,
			TimeoutSeconds:   spec.TimeoutSeconds,
			ExecutionOrder:   spec.ExecutionOrder,
		}
	}

	if err := e.store.CreateWorkflowWithSteps(ctx, workflow, steps); err != nil {
		return nil, nil, fmt.Errorf("workflow creation failed: name='%s', error=%w", req.Name, err)
	}

	metrics.InfoWithContext(ctx, "Workflow created", map[string]interface{}{
		"workflow_id": workflow.ID.String(),
		"steps":       len(steps),
	})
	return workflow, steps, nil
}

/* validateSteps checks structural validity: unique execution orders,
 * agents present, known dependencies, and no dependency cycles */
func validateSteps(specs []StepSpec) error {
	orders := make(map[int]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return fmt.Errorf("step name empty: execution_order=%d", s.ExecutionOrder)
		}
		if len(s.Agents) == 0 {
			return fmt.Errorf("step has no agents: step='%s'", s.Name)
		}
		if s.DispatchStrategy != "" &&
			s.DispatchStrategy != dispatcher.StrategyFanout &&
			s.DispatchStrategy != dispatcher.StrategyFallback {
			return fmt.Errorf("unknown dispatch strategy: step='%s', strategy='%s'", s.Name, s.DispatchStrategy)
		}
		if orders[s.ExecutionOrder] {
			return fmt.Errorf("duplicate execution order: execution_order=%d", s.ExecutionOrder)
		}
		orders[s.ExecutionOrder] = true
	}

	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if !orders[dep] {
				return fmt.Errorf("unknown dependency: step='%s', depends_on=%d", s.Name, dep)
			}
			if dep == s.ExecutionOrder {
				return fmt.Errorf("step depends on itself: step='%s', execution_order=%d", s.Name, s.ExecutionOrder)
			}
		}
	}

	return checkAcyclic(specs)
}

/* checkAcyclic runs Kahn's algorithm over the dependency graph; any
 * vertex left unprocessed sits on a cycle */
func checkAcyclic(specs []StepSpec) error {
	inDegree := make(map[int]int, len(specs))
	dependents := make(map[int][]int, len(specs))
	for _, s := range specs {
		inDegree[s.ExecutionOrder] += 0
		for _, dep := range s.DependsOn {
			inDegree[s.ExecutionOrder]++
			dependents[dep] = append(dependents[dep], s.ExecutionOrder)
		}
	}

	var queue []int
	for order, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, order)
		}
	}

	processed := 0
	for len(queue) > 0 {
		order := queue[0]
		queue = queue[1:]
		processed++
		for _, dependent := range dependents[order] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if processed != len(specs) {
		return fmt.Errorf("dependency cycle detected: steps=%d, acyclic_steps=%d", len(specs), processed)
	}
	return nil
}

/* Run drives a workflow to a terminal status. Each round dispatches the
 * current ready set with bounded parallelism and re-reads step state; the
 * first failed step fails the workflow and leaves downstream steps
 * pending. Run is re-entrant: a concurrent call on a running workflow
 * advances alongside the first runner (the step claim guard resolves each
 * step to one execution), and a call on a finished workflow is a no-op. */
func (e *Engine) Run(ctx context.Context, workflowID uuid.UUID) error {
	started, err := e.store.TransitionWorkflowStatus(ctx, workflowID, db.WorkflowPending, db.WorkflowRunning)
	if err != nil {
		return fmt.Errorf("workflow start failed: workflow_id='%s', error=%w", workflowID.String(), err)
	}
	if !started {
		workflow, err := e.store.GetWorkflowByID(ctx, workflowID)
		if err != nil {
			return fmt.Errorf("workflow start failed: workflow_id='%s', error=%w", workflowID.String(), err)
		}
		switch workflow.Status {
		case db.WorkflowRunning:
			/* Another runner holds the workflow; advance alongside it */
		case db.WorkflowCompleted, db.WorkflowFailed:
			return nil
		default:
			return fmt.Errorf("workflow not startable: workflow_id='%s', status='%s'",
				workflowID.String(), workflow.Status)
		}
	}

	ctx = metrics.WithWorkflowIDLogContext(ctx, workflowID)
	metrics.InfoWithContext(ctx, "Workflow execution started", nil)

	for {
		if err := ctx.Err(); err != nil {
			return e.failWorkflow(ctx, workflowID, fmt.Errorf("workflow execution cancelled: %w", err))
		}

		steps, err := e.store.ListWorkflowSteps(ctx, workflowID)
		if err != nil {
			return e.failWorkflow(ctx, workflowID, fmt.Errorf("step listing failed: %w", err))
		}

		completed := make(map[int]bool)
		anyFailed := false
		allDone := true
		inFlight := 0
		for _, s := range steps {
			switch s.Status {
			case db.StepCompleted:
				completed[s.ExecutionOrder] = true
			case db.StepFailed:
				anyFailed = true
			case db.StepRunning:
				inFlight++
				allDone = false
			default:
				allDone = false
			}
		}

		if anyFailed {
			return e.failWorkflow(ctx, workflowID,
				fmt.Errorf("workflow step failed: workflow_id='%s'", workflowID.String()))
		}
		if allDone {
			moved, err := e.store.TransitionWorkflowStatus(ctx, workflowID, db.WorkflowRunning, db.WorkflowCompleted)
			if err != nil {
				return fmt.Errorf("workflow completion failed: workflow_id='%s', error=%w", workflowID.String(), err)
			}
			if moved {
				metrics.RecordWorkflowTerminal(db.WorkflowCompleted)
				metrics.InfoWithContext(ctx, "Workflow completed", nil)
			}
			return nil
		}

		ready := readySet(steps, completed)
		if len(ready) == 0 {
			if inFlight > 0 {
				/* Steps are in flight on another runner; wait for them to
				 * settle before re-reading */
				select {
				case <-ctx.Done():
				case <-time.After(runPollInterval):
				}
				continue
			}
			/* Nothing ready, nothing running, nothing terminal pending:
			 * the remaining steps wait on steps that can no longer run */
			return e.failWorkflow(ctx, workflowID,
				fmt.Errorf("workflow stalled: workflow_id='%s', no dispatchable steps", workflowID.String()))
		}

		e.dispatchBatch(ctx, ready)
	}
}

/* readySet selects pending steps whose dependencies have all completed */
func readySet(steps []db.WorkflowStep, completed map[int]bool) []db.WorkflowStep {
	var ready []db.WorkflowStep
	for _, s := range steps {
		if s.Status != db.StepPending {
			continue
		}
		ok := true
		for _, dep := range s.DependsOn {
			if !completed[int(dep)] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s)
		}
	}
	return ready
}

/* dispatchBatch runs one ready set with bounded parallelism and waits for
 * every dispatch in the batch to finish */
func (e *Engine) dispatchBatch(ctx context.Context, ready []db.WorkflowStep) {
	sem := make(chan struct{}, e.maxParallelSteps)
	var wg sync.WaitGroup
	for i := range ready {
		step := ready[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			stepCtx := metrics.WithStepIDLogContext(ctx, step.ID)
			if _, err := e.dispatcher.Dispatch(stepCtx, &step); err != nil {
				metrics.ErrorWithContext(stepCtx, "Step dispatch errored", err, map[string]interface{}{
					"step": step.Name,
				})
			}
		}()
	}
	wg.Wait()
}

/* failWorkflow moves a running workflow to failed and reports the cause */
func (e *Engine) failWorkflow(ctx context.Context, workflowID uuid.UUID, cause error) error {
	moved, err := e.store.TransitionWorkflowStatus(ctx, workflowID, db.WorkflowRunning, db.WorkflowFailed)
	if err != nil {
		return fmt.Errorf("workflow failure transition failed: workflow_id='%s', cause=%v, error=%w",
			workflowID.String(), cause, err)
	}
	if moved {
		metrics.RecordWorkflowTerminal(db.WorkflowFailed)
		metrics.ErrorWithContext(ctx, "Workflow failed", cause, nil)
	}
	return cause
}

/* GetStatus returns a workflow with its steps and progress counts */
func (e *Engine) GetStatus(ctx context.Context, workflowID uuid.UUID) (*Status, error) {
	workflow, err := e.store.GetWorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow status retrieval failed: workflow_id='%s', error=%w",
			workflowID.String(), err)
	}

	steps, err := e.store.ListWorkflowSteps(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow status retrieval failed: workflow_id='%s', error=%w",
			workflowID.String(), err)
	}

	status := &Status{Workflow: workflow, Steps: steps}
	for _, s := range steps {
		switch s.Status {
		case db.StepCompleted:
			status.Completed++
		case db.StepFailed:
			status.Failed++
		case db.StepRunning:
			status.Running++
		default:
			status.Pending++
		}
	}
	return status, nil
}

/* List returns a page of workflows */
func (e *Engine) List(ctx context.Context, limit, offset int) ([]db.Workflow, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return e.store.ListWorkflows(ctx, limit, offset)
}

/* Delete removes a workflow and, through cascade, its steps,
 * collaboration sessions, and metric rows. Running workflows must be
 * stopped before deletion. */
func (e *Engine) Delete(ctx context.Context, workflowID uuid.UUID) error {
	workflow, err := e.store.GetWorkflowByID(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("workflow deletion failed: workflow_id='%s', error=%w", workflowID.String(), err)
	}
	if workflow.Status == db.WorkflowRunning {
		return fmt.Errorf("%w: workflow_id='%s', status='running'", ErrDeletionRejected, workflowID.String())
	}

	if err := e.store.DeleteWorkflow(ctx, workflowID); err != nil {
		return fmt.Errorf("workflow deletion failed: workflow_id='%s', error=%w", workflowID.String(), err)
	}

	metrics.InfoWithContext(ctx, "Workflow deleted", map[string]interface{}{
		"workflow_id": workflowID.String(),
	})
	return nil
}
