/*-------------------------------------------------------------------------
 *
 * dispatcher_test.go
 *    Tests for the step dispatcher
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/dispatcher/dispatcher_test.go
 *
 *-------------------------------------------------------------------------
 */

package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neurondb/NeuronFlow/internal/connectors"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/eval"
	"github.com/neurondb/NeuronFlow/internal/registry"
)

/* fakeStore tracks step status transitions */
type fakeStore struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
	outputs  map[uuid.UUID]db.JSONBMap
	errors   map[uuid.UUID]*string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses: make(map[uuid.UUID]string),
		outputs:  make(map[uuid.UUID]db.JSONBMap),
		errors:   make(map[uuid.UUID]*string),
	}
}

func (s *fakeStore) TransitionStepStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.statuses[id]
	if !ok {
		current = db.StepPending
	}
	if current != from {
		return false, nil
	}
	s.statuses[id] = to
	return true, nil
}

func (s *fakeStore) FinishStep(ctx context.Context, id uuid.UUID, status string, outputs db.JSONBMap, errMsg *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[id] != db.StepRunning {
		return false, nil
	}
	s.statuses[id] = status
	s.outputs[id] = outputs
	s.errors[id] = errMsg
	return true, nil
}

/* fakeResolver returns a fixed binding per agent name */
type fakeResolver struct {
	bindings map[string]*registry.Binding
}

func (r *fakeResolver) ResolveByName(ctx context.Context, name string) (*registry.Binding, error) {
	b, ok := r.bindings[name]
	if !ok {
		return nil, fmt.Errorf("agent not found: agent_name='%s'", name)
	}
	return b, nil
}

/* fakeConnector replays a scripted error sequence, then succeeds */
type fakeConnector struct {
	mu      sync.Mutex
	name    string
	script  []error
	calls   int
	content string
	delay   time.Duration
}

func (c *fakeConnector) Name() string { return c.name }

func (c *fakeConnector) Invoke(ctx context.Context, req connectors.InvokeRequest) (*connectors.InvokeResponse, error) {
	c.mu.Lock()
	call := c.calls
	c.calls++
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, &connectors.UnavailableError{Connector: c.name, Err: ctx.Err()}
		}
	}
	if call < len(c.script) && c.script[call] != nil {
		return nil, c.script[call]
	}
	content := c.content
	if content == "" {
		content = "done"
	}
	return &connectors.InvokeResponse{Content: content, ModelUsed: "test-model", TokensUsed: 10}, nil
}

func (c *fakeConnector) Stream(ctx context.Context, req connectors.InvokeRequest) (<-chan connectors.StreamChunk, error) {
	out := make(chan connectors.StreamChunk, 1)
	out <- connectors.StreamChunk{ChunkID: "1", Content: "done", IsFinal: true}
	close(out)
	return out, nil
}

func (c *fakeConnector) Health(ctx context.Context) error { return nil }

func (c *fakeConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

/* fakeRouter returns a fixed connector per hint */
type fakeRouter struct {
	byName map[string]connectors.Connector
	def    connectors.Connector
}

func (r *fakeRouter) Route(preferred string) (connectors.Connector, error) {
	if preferred == "" {
		if r.def == nil {
			return nil, fmt.Errorf("no default connector")
		}
		return r.def, nil
	}
	c, ok := r.byName[preferred]
	if !ok {
		return nil, fmt.Errorf("connector not found: connector='%s'", preferred)
	}
	return c, nil
}

/* fakeSampler collects emitted samples */
type fakeSampler struct {
	mu      sync.Mutex
	samples []eval.Sample
}

func (s *fakeSampler) Record(sample eval.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func testStep(agents []string, strategy string) *db.WorkflowStep {
	return &db.WorkflowStep{
		ID:               uuid.New(),
		WorkflowID:       uuid.New(),
		Phase:            "execution",
		Name:             "generate",
		Status:           db.StepPending,
		Inputs:           db.JSONBMap{"prompt": "write the module"},
		Agents:           agents,
		DispatchStrategy: strategy,
		MaxRetries:       2,
		TimeoutSeconds:   5,
	}
}

func singleAgentFixture(connector *fakeConnector) (*fakeStore, *fakeResolver, *fakeRouter, *fakeSampler) {
	agentID := uuid.New()
	store := newFakeStore()
	resolver := &fakeResolver{bindings: map[string]*registry.Binding{
		"writer": {AgentID: agentID, AgentName: "writer", Version: 3, Persona: "writes", ModelName: "test-model"},
	}}
	router := &fakeRouter{def: connector, byName: map[string]connectors.Connector{connector.name: connector}}
	return store, resolver, router, &fakeSampler{}
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	connector := &fakeConnector{name: "primary", script: []error{
		&connectors.UnavailableError{Connector: "primary", Err: fmt.Errorf("timeout")},
		&connectors.UnavailableError{Connector: "primary", Err: fmt.Errorf("timeout")},
	}}
	store, resolver, router, sampler := singleAgentFixture(connector)
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	step := testStep([]string{"writer"}, StrategyFanout)
	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Status != db.StepCompleted {
		t.Errorf("expected completed after retries, got %s", result.Status)
	}
	if got := connector.callCount(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(sampler.samples) != 1 || !sampler.samples[0].Succeeded {
		t.Errorf("expected one successful sample, got %+v", sampler.samples)
	}
}

func TestDispatchDoesNotRetryFatalError(t *testing.T) {
	connector := &fakeConnector{name: "primary", script: []error{
		&connectors.FatalError{Connector: "primary", Reason: "unsupported task"},
	}}
	store, resolver, router, sampler := singleAgentFixture(connector)
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	step := testStep([]string{"writer"}, StrategyFanout)
	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Status != db.StepFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	if got := connector.callCount(); got != 1 {
		t.Errorf("expected 1 attempt for fatal error, got %d", got)
	}
	if errMsg := store.errors[step.ID]; errMsg == nil || *errMsg == "" {
		t.Error("expected failed step to carry a non-empty error")
	}
	if len(sampler.samples) != 1 || sampler.samples[0].Succeeded {
		t.Errorf("expected one failure sample, got %+v", sampler.samples)
	}
}

func TestDispatchFallsBackToPolicyRetries(t *testing.T) {
	connector := &fakeConnector{name: "primary", script: []error{
		&connectors.UnavailableError{Connector: "primary", Err: fmt.Errorf("timeout")},
		&connectors.UnavailableError{Connector: "primary", Err: fmt.Errorf("timeout")},
	}}
	store, resolver, router, sampler := singleAgentFixture(connector)
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	/* A step that does not set max_retries inherits the policy bound */
	step := testStep([]string{"writer"}, StrategyFanout)
	step.MaxRetries = 0
	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Status != db.StepCompleted {
		t.Errorf("expected completed under policy retries, got %s", result.Status)
	}
	if got := connector.callCount(); got != 3 {
		t.Errorf("expected 3 attempts from policy bound, got %d", got)
	}
}

func TestDispatchNeverRetriesSideEffectingStep(t *testing.T) {
	connector := &fakeConnector{name: "primary", script: []error{
		&connectors.UnavailableError{Connector: "primary", Err: fmt.Errorf("timeout")},
	}}
	store, resolver, router, sampler := singleAgentFixture(connector)
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	step := testStep([]string{"writer"}, StrategyFanout)
	step.SideEffecting = true
	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Status != db.StepFailed {
		t.Errorf("expected failed without retry, got %s", result.Status)
	}
	if got := connector.callCount(); got != 1 {
		t.Errorf("expected 1 attempt for side-effecting step, got %d", got)
	}
}

func TestDispatchClaimRace(t *testing.T) {
	connector := &fakeConnector{name: "primary"}
	store, resolver, router, sampler := singleAgentFixture(connector)
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	step := testStep([]string{"writer"}, StrategyFanout)
	store.statuses[step.ID] = db.StepRunning

	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch errored: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result when step already claimed, got %+v", result)
	}
	if got := connector.callCount(); got != 0 {
		t.Errorf("expected no invocations on lost claim, got %d", got)
	}
}

func TestDispatchTimeout(t *testing.T) {
	connector := &fakeConnector{name: "primary", delay: 200 * time.Millisecond}
	store, resolver, router, sampler := singleAgentFixture(connector)
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	step := testStep([]string{"writer"}, StrategyFanout)
	step.TimeoutSeconds = 0
	d.defaultTimeout = 20 * time.Millisecond

	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Status != db.StepFailed {
		t.Errorf("expected failed on timeout, got %s", result.Status)
	}
	if errMsg := store.errors[step.ID]; errMsg == nil || *errMsg == "" {
		t.Error("expected timeout failure to carry a non-empty error")
	}
}

func TestFanoutMergesAllAgents(t *testing.T) {
	writer := &fakeConnector{name: "writer-conn", content: "draft"}
	reviewer := &fakeConnector{name: "reviewer-conn", content: "comments"}
	store := newFakeStore()
	resolver := &fakeResolver{bindings: map[string]*registry.Binding{
		"writer":   {AgentID: uuid.New(), AgentName: "writer", Version: 1, Connector: "writer-conn"},
		"reviewer": {AgentID: uuid.New(), AgentName: "reviewer", Version: 2, Connector: "reviewer-conn"},
	}}
	router := &fakeRouter{byName: map[string]connectors.Connector{
		"writer-conn":   writer,
		"reviewer-conn": reviewer,
	}}
	sampler := &fakeSampler{}
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	step := testStep([]string{"writer", "reviewer"}, StrategyFanout)
	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Status != db.StepCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}

	for _, name := range []string{"writer", "reviewer"} {
		entry, ok := result.Outputs[name].(map[string]interface{})
		if !ok {
			t.Fatalf("expected output for %s, got %v", name, result.Outputs[name])
		}
		if entry["content"] == "" {
			t.Errorf("expected non-empty content for %s", name)
		}
	}
	if len(sampler.samples) != 2 {
		t.Errorf("expected 2 samples, got %d", len(sampler.samples))
	}
}

func TestFanoutFailsWhenAnyAgentFails(t *testing.T) {
	good := &fakeConnector{name: "good"}
	bad := &fakeConnector{name: "bad", script: []error{
		&connectors.FatalError{Connector: "bad", Reason: "rejected"},
	}}
	store := newFakeStore()
	resolver := &fakeResolver{bindings: map[string]*registry.Binding{
		"writer":   {AgentID: uuid.New(), AgentName: "writer", Version: 1, Connector: "good"},
		"reviewer": {AgentID: uuid.New(), AgentName: "reviewer", Version: 1, Connector: "bad"},
	}}
	router := &fakeRouter{byName: map[string]connectors.Connector{"good": good, "bad": bad}}
	d := NewDispatcher(store, resolver, router, &fakeSampler{}, fastPolicy(), time.Minute)

	step := testStep([]string{"writer", "reviewer"}, StrategyFanout)
	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Status != db.StepFailed {
		t.Errorf("expected failed fanout, got %s", result.Status)
	}
}

func TestFallbackStopsAtFirstSuccess(t *testing.T) {
	primary := &fakeConnector{name: "primary", script: []error{
		&connectors.FatalError{Connector: "primary", Reason: "cannot do it"},
	}}
	secondary := &fakeConnector{name: "secondary", content: "rescued"}
	tertiary := &fakeConnector{name: "tertiary"}
	store := newFakeStore()
	resolver := &fakeResolver{bindings: map[string]*registry.Binding{
		"first":  {AgentID: uuid.New(), AgentName: "first", Version: 1, Connector: "primary"},
		"second": {AgentID: uuid.New(), AgentName: "second", Version: 1, Connector: "secondary"},
		"third":  {AgentID: uuid.New(), AgentName: "third", Version: 1, Connector: "tertiary"},
	}}
	router := &fakeRouter{byName: map[string]connectors.Connector{
		"primary": primary, "secondary": secondary, "tertiary": tertiary,
	}}
	d := NewDispatcher(store, resolver, router, &fakeSampler{}, fastPolicy(), time.Minute)

	step := testStep([]string{"first", "second", "third"}, StrategyFallback)
	result, err := d.Dispatch(context.Background(), step)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Status != db.StepCompleted {
		t.Fatalf("expected completed via fallback, got %s", result.Status)
	}
	if result.Outputs["agent"] != "second" {
		t.Errorf("expected second agent to win, got %v", result.Outputs["agent"])
	}
	if tertiary.callCount() != 0 {
		t.Errorf("expected third agent never invoked, got %d calls", tertiary.callCount())
	}
}

func TestDispatchSamplesCarryQuality(t *testing.T) {
	connector := &fakeConnector{name: "primary", content: "analysis completed with the requested result attached"}
	store, resolver, router, sampler := singleAgentFixture(connector)
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	step := testStep([]string{"writer"}, StrategyFanout)
	if _, err := d.Dispatch(context.Background(), step); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if len(sampler.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(sampler.samples))
	}
	sample := sampler.samples[0]
	if !sample.HasQuality {
		t.Error("expected successful invocation to carry a quality score")
	}
	if sample.Quality < 0 || sample.Quality > 1 {
		t.Errorf("quality score out of range: %v", sample.Quality)
	}
}

func TestDispatchFailureSampleOmitsQuality(t *testing.T) {
	connector := &fakeConnector{name: "primary", script: []error{
		&connectors.FatalError{Connector: "primary", Reason: "unsupported task"},
	}}
	store, resolver, router, sampler := singleAgentFixture(connector)
	d := NewDispatcher(store, resolver, router, sampler, fastPolicy(), time.Minute)

	step := testStep([]string{"writer"}, StrategyFanout)
	if _, err := d.Dispatch(context.Background(), step); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if len(sampler.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(sampler.samples))
	}
	if sampler.samples[0].HasQuality {
		t.Error("expected failed invocation to omit the quality score")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", &connectors.UnavailableError{Connector: "x", Err: fmt.Errorf("timeout")}, true},
		{"wrapped unavailable", fmt.Errorf("invoke: %w", &connectors.UnavailableError{Connector: "x", Err: fmt.Errorf("eof")}), true},
		{"fatal", &connectors.FatalError{Connector: "x", Reason: "no"}, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain", fmt.Errorf("something"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	policy := RetryPolicy{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}
	for attempt := 0; attempt < 10; attempt++ {
		delay := policy.backoffDelay(attempt)
		if delay > time.Second+250*time.Millisecond {
			t.Errorf("attempt %d: delay %v exceeds cap with jitter", attempt, delay)
		}
		if delay < 0 {
			t.Errorf("attempt %d: negative delay %v", attempt, delay)
		}
	}
}
