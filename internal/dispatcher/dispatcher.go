/*-------------------------------------------------------------------------
 *
 * dispatcher.go
 *    Step dispatcher for NeuronFlow
 *
 * Claims a ready workflow step, resolves its agents to version-pinned
 * bindings, invokes them under the step's strategy (fanout or fallback)
 * with timeout and transient-failure retries, and records the terminal
 * step status together with performance samples.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/dispatcher/dispatcher.go
 *
 *-------------------------------------------------------------------------
 */

package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neurondb/NeuronFlow/internal/connectors"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/eval"
	"github.com/neurondb/NeuronFlow/internal/metrics"
	"github.com/neurondb/NeuronFlow/internal/registry"
)

/* Dispatch strategies */
const (
	StrategyFanout   = "fanout"
	StrategyFallback = "fallback"
)

/* Store is the persistence surface the dispatcher needs */
type Store interface {
	TransitionStepStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	FinishStep(ctx context.Context, id uuid.UUID, status string, outputs db.JSONBMap, errMsg *string) (bool, error)
}

/* Resolver resolves a step's agent reference to a pinned binding */
type Resolver interface {
	ResolveByName(ctx context.Context, name string) (*registry.Binding, error)
}

/* Router resolves a connector hint to a registered connector */
type Router interface {
	Route(preferred string) (connectors.Connector, error)
}

/* Sampler receives one performance sample per agent invocation */
type Sampler interface {
	Record(sample eval.Sample)
}

/* Result is the outcome of one step dispatch */
type Result struct {
	StepID  uuid.UUID
	Status  string
	Outputs db.JSONBMap
	Err     error
}

/* Dispatcher executes individual workflow steps */
type Dispatcher struct {
	store          Store
	resolver       Resolver
	router         Router
	sampler        Sampler
	policy         RetryPolicy
	defaultTimeout time.Duration
}

func NewDispatcher(store Store, resolver Resolver, router Router, sampler Sampler, policy RetryPolicy, defaultTimeout time.Duration) *Dispatcher {
	if defaultTimeout <= 0 {
		defaultTimeout = 120 * time.Second
	}
	return &Dispatcher{
		store:          store,
		resolver:       resolver,
		router:         router,
		sampler:        sampler,
		policy:         policy,
		defaultTimeout: defaultTimeout,
	}
}

/* Dispatch runs one step to a terminal status. Claiming uses the
 * status-guarded pending->running transition, so two dispatchers racing on
 * the same step resolve to exactly one execution; the loser returns a nil
 * result without error. */
func (d *Dispatcher) Dispatch(ctx context.Context, step *db.WorkflowStep) (*Result, error) {
	claimed, err := d.store.TransitionStepStatus(ctx, step.ID, db.StepPending, db.StepRunning)
	if err != nil {
		return nil, fmt.Errorf("step claim failed: step_id='%s', error=%w", step.ID.String(), err)
	}
	if !claimed {
		metrics.InfoWithContext(ctx, "Step already claimed", map[string]interface{}{
			"step_id": step.ID.String(),
		})
		return nil, nil
	}

	timeout := d.defaultTimeout
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds) * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	outputs, execErr := d.execute(stepCtx, step)
	elapsed := time.Since(start)

	status := db.StepCompleted
	var errMsg *string
	if execErr != nil {
		status = db.StepFailed
		msg := execErr.Error()
		if stepCtx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("step timed out after %s: %v", timeout, execErr)
		}
		errMsg = &msg
	}
	metrics.RecordStepDispatch(step.Phase, status, elapsed)

	/* Terminal write runs on the parent context so an expired step
	 * deadline cannot block recording the failure */
	finished, err := d.store.FinishStep(ctx, step.ID, status, outputs, errMsg)
	if err != nil {
		return nil, fmt.Errorf("step finish failed: step_id='%s', error=%w", step.ID.String(), err)
	}
	if !finished {
		metrics.WarnWithContext(ctx, "Step finished concurrently elsewhere", map[string]interface{}{
			"step_id": step.ID.String(),
		})
	}

	return &Result{StepID: step.ID, Status: status, Outputs: outputs, Err: execErr}, nil
}

/* execute runs the step's agents under its dispatch strategy */
func (d *Dispatcher) execute(ctx context.Context, step *db.WorkflowStep) (db.JSONBMap, error) {
	if len(step.Agents) == 0 {
		return nil, fmt.Errorf("step has no agents: step_id='%s'", step.ID.String())
	}

	switch step.DispatchStrategy {
	case StrategyFallback:
		return d.executeFallback(ctx, step)
	case StrategyFanout, "":
		return d.executeFanout(ctx, step)
	default:
		return nil, fmt.Errorf("unknown dispatch strategy: step_id='%s', strategy='%s'",
			step.ID.String(), step.DispatchStrategy)
	}
}

/* executeFanout invokes every agent in parallel and merges their outputs;
 * any agent failure fails the step */
func (d *Dispatcher) executeFanout(ctx context.Context, step *db.WorkflowStep) (db.JSONBMap, error) {
	type agentResult struct {
		name   string
		output map[string]interface{}
		err    error
	}

	results := make([]agentResult, len(step.Agents))
	var wg sync.WaitGroup
	for i, name := range step.Agents {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			output, err := d.invokeAgent(ctx, step, name)
			results[i] = agentResult{name: name, output: output, err: err}
		}(i, name)
	}
	wg.Wait()

	outputs := db.JSONBMap{}
	var failures []string
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", r.name, r.err))
			continue
		}
		outputs[r.name] = r.output
	}
	if len(failures) > 0 {
		return outputs, fmt.Errorf("fanout dispatch failed: step_id='%s', failures=[%s]",
			step.ID.String(), strings.Join(failures, "; "))
	}
	return outputs, nil
}

/* executeFallback tries agents in declaration order; the first success
 * wins and later agents are never invoked */
func (d *Dispatcher) executeFallback(ctx context.Context, step *db.WorkflowStep) (db.JSONBMap, error) {
	var failures []string
	for _, name := range step.Agents {
		output, err := d.invokeAgent(ctx, step, name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return db.JSONBMap{"agent": name, "output": output}, nil
	}
	return nil, fmt.Errorf("fallback dispatch exhausted: step_id='%s', failures=[%s]",
		step.ID.String(), strings.Join(failures, "; "))
}

/* invokeAgent resolves one agent and invokes it with retries. The binding
 * is resolved once up front, so every attempt runs the same version even
 * if a new one is published mid-dispatch. */
func (d *Dispatcher) invokeAgent(ctx context.Context, step *db.WorkflowStep, agentName string) (map[string]interface{}, error) {
	binding, err := d.resolver.ResolveByName(ctx, agentName)
	if err != nil {
		return nil, err
	}

	connector, err := d.router.Route(binding.Connector)
	if err != nil {
		return nil, err
	}

	req := connectors.InvokeRequest{
		SessionID: step.WorkflowID,
		Message:   stepMessage(step),
		Persona:   binding.Persona,
		Context:   step.Inputs,
		Model:     binding.ModelName,
	}

	maxRetries := step.MaxRetries
	if maxRetries == 0 {
		maxRetries = d.policy.MaxRetries
	}
	if step.SideEffecting {
		/* A side-effecting step may have partially applied its effect, so
		 * it is never re-invoked automatically */
		maxRetries = 0
	}

	var reply *connectors.InvokeResponse
	var invokeErr error
	start := time.Now()
	for attempt := 0; ; attempt++ {
		reply, invokeErr = connector.Invoke(ctx, req)
		if invokeErr == nil {
			break
		}
		if attempt >= maxRetries || !isRetryable(invokeErr) {
			break
		}

		metrics.RecordStepRetry()
		metrics.WarnWithContext(ctx, "Retrying agent invocation", map[string]interface{}{
			"step_id": step.ID.String(),
			"agent":   agentName,
			"attempt": attempt + 1,
			"error":   invokeErr.Error(),
		})
		if err := sleepContext(ctx, d.policy.backoffDelay(attempt)); err != nil {
			invokeErr = err
			break
		}
	}
	latency := time.Since(start)

	if d.sampler != nil {
		sample := eval.Sample{
			AgentID:    binding.AgentID,
			WorkflowID: step.WorkflowID,
			Succeeded:  invokeErr == nil,
			Latency:    latency,
		}
		if invokeErr == nil {
			sample.Quality = eval.ScoreQuality(reply.Content)
			sample.HasQuality = true
		}
		d.sampler.Record(sample)
	}

	if invokeErr != nil {
		return nil, invokeErr
	}

	return map[string]interface{}{
		"content":       reply.Content,
		"model_used":    reply.ModelUsed,
		"tokens_used":   reply.TokensUsed,
		"agent_version": binding.Version,
	}, nil
}

/* stepMessage derives the invocation prompt from the step definition */
func stepMessage(step *db.WorkflowStep) string {
	if prompt, ok := step.Inputs["prompt"].(string); ok && prompt != "" {
		return prompt
	}
	if step.Description != nil && *step.Description != "" {
		return *step.Description
	}
	return step.Name
}
