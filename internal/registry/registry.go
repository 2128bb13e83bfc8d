/*-------------------------------------------------------------------------
 *
 * registry.go
 *    Agent registry for NeuronFlow
 *
 * Holds versioned agent definitions and resolves an agent id to a
 * callable binding pinned to the active version. Versions are append-only
 * so in-flight steps dispatched against an older version stay valid.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/registry/registry.go
 *
 *-------------------------------------------------------------------------
 */

package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/neurondb/NeuronFlow/internal/db"
)

/* Agent classes */
const (
	ClassConversational = "conversational"
	ClassWorkflow       = "workflow"
	ClassArchitect      = "architect"
	ClassWriter         = "writer"
)

/* Store is the persistence surface the registry needs */
type Store interface {
	CreateAgent(ctx context.Context, agent *db.Agent) error
	GetAgentByID(ctx context.Context, id uuid.UUID) (*db.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*db.Agent, error)
	ListAgents(ctx context.Context) ([]db.Agent, error)
	CreateAgentVersion(ctx context.Context, version *db.AgentVersion) error
	GetActiveAgentVersion(ctx context.Context, agentID uuid.UUID) (*db.AgentVersion, error)
	GetAgentVersion(ctx context.Context, agentID uuid.UUID, versionNumber int) (*db.AgentVersion, error)
	ListAgentVersions(ctx context.Context, agentID uuid.UUID) ([]db.AgentVersion, error)
	ActivateAgentVersion(ctx context.Context, agentID uuid.UUID, versionNumber int) error
	GetLatestAgentPerformanceMetric(ctx context.Context, agentID uuid.UUID) (*db.AgentPerformanceMetric, error)
}

/* Definition is the mutable payload of one agent version */
type Definition struct {
	Persona        string
	Capabilities   []string
	ToolAllowances []string
	ModelName      string
	Config         map[string]interface{}
}

/* Binding is a version-pinned callable resolution of an agent */
type Binding struct {
	AgentID   uuid.UUID
	AgentName string
	Class     string
	Version   int
	Persona   string
	ModelName string
	Connector string
}

/* EvolutionStrategy decides whether aggregated performance warrants a new
 * agent version, and what that version should look like. The policy itself
 * is external; the registry only invokes it with the current aggregate. */
type EvolutionStrategy interface {
	Propose(def Definition, metric *db.AgentPerformanceMetric) (Definition, bool)
}

/* Registry resolves agent definitions to callable bindings */
type Registry struct {
	store    Store
	strategy EvolutionStrategy

	/* Publish requires mutual exclusion per agent id; readers never lock */
	publishMu sync.Mutex
	locks     map[uuid.UUID]*sync.Mutex
}

func NewRegistry(store Store, strategy EvolutionStrategy) *Registry {
	return &Registry{
		store:    store,
		strategy: strategy,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

/* lockFor returns the per-agent publish lock */
func (r *Registry) lockFor(agentID uuid.UUID) *sync.Mutex {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()
	if _, ok := r.locks[agentID]; !ok {
		r.locks[agentID] = &sync.Mutex{}
	}
	return r.locks[agentID]
}

/* Register creates a new agent with its first active version */
func (r *Registry) Register(ctx context.Context, name, class string, description *string, def Definition) (*db.Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent registration failed: name_empty=true")
	}

	agent := &db.Agent{
		Name:           name,
		Description:    description,
		Class:          class,
		Persona:        def.Persona,
		Capabilities:   pq.StringArray(def.Capabilities),
		ToolAllowances: pq.StringArray(def.ToolAllowances),
		ModelName:      def.ModelName,
		Config:         db.FromMap(def.Config),
	}
	if err := r.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("agent registration failed: name='%s', error=%w", name, err)
	}

	if _, err := r.Publish(ctx, agent.ID, def); err != nil {
		return nil, fmt.Errorf("agent registration failed: agent_id='%s', initial_version_error=%w",
			agent.ID.String(), err)
	}

	return agent, nil
}

/* Publish creates a new active version without deleting or mutating prior
 * versions */
func (r *Registry) Publish(ctx context.Context, agentID uuid.UUID, def Definition) (*db.AgentVersion, error) {
	lock := r.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	version := &db.AgentVersion{
		AgentID:        agentID,
		Persona:        def.Persona,
		Capabilities:   pq.StringArray(def.Capabilities),
		ToolAllowances: pq.StringArray(def.ToolAllowances),
		ModelName:      def.ModelName,
		Config:         db.FromMap(def.Config),
		IsActive:       true,
	}
	if err := r.store.CreateAgentVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("agent version publication failed: agent_id='%s', error=%w",
			agentID.String(), err)
	}
	return version, nil
}

/* Resolve returns the latest active version's callable binding */
func (r *Registry) Resolve(ctx context.Context, agentID uuid.UUID) (*Binding, error) {
	agent, err := r.store.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent resolution failed: agent_id='%s', error=%w", agentID.String(), err)
	}

	version, err := r.store.GetActiveAgentVersion(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent resolution failed: agent_id='%s', error=%w", agentID.String(), err)
	}

	return bindingFrom(agent, version), nil
}

/* ResolveByName resolves a step's agent reference to a version-pinned
 * binding. The binding stays valid for the whole dispatch even when a new
 * version is published mid-flight. */
func (r *Registry) ResolveByName(ctx context.Context, name string) (*Binding, error) {
	agent, err := r.store.GetAgentByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("agent resolution failed: agent_name='%s', error=%w", name, err)
	}

	version, err := r.store.GetActiveAgentVersion(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("agent resolution failed: agent_name='%s', error=%w", name, err)
	}

	return bindingFrom(agent, version), nil
}

/* ResolveVersion returns the binding for a specific pinned version */
func (r *Registry) ResolveVersion(ctx context.Context, agentID uuid.UUID, versionNumber int) (*Binding, error) {
	agent, err := r.store.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent resolution failed: agent_id='%s', error=%w", agentID.String(), err)
	}

	version, err := r.store.GetAgentVersion(ctx, agentID, versionNumber)
	if err != nil {
		return nil, fmt.Errorf("agent resolution failed: agent_id='%s', version_number=%d, error=%w",
			agentID.String(), versionNumber, err)
	}

	return bindingFrom(agent, version), nil
}

func bindingFrom(agent *db.Agent, version *db.AgentVersion) *Binding {
	connector := ""
	if c, ok := version.Config["connector"].(string); ok {
		connector = c
	}
	return &Binding{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Class:     agent.Class,
		Version:   version.VersionNumber,
		Persona:   version.Persona,
		ModelName: version.ModelName,
		Connector: connector,
	}
}

/* EvaluateForEvolution consults the evolution strategy with the agent's
 * latest performance aggregate and publishes a proposed version when the
 * strategy calls for one. Returns the new version, or nil when no change
 * was proposed. */
func (r *Registry) EvaluateForEvolution(ctx context.Context, agentID uuid.UUID) (*db.AgentVersion, error) {
	if r.strategy == nil {
		return nil, nil
	}

	metric, err := r.store.GetLatestAgentPerformanceMetric(ctx, agentID)
	if err != nil {
		/* No aggregate yet means nothing to evolve from */
		return nil, nil
	}

	active, err := r.store.GetActiveAgentVersion(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent evolution failed: agent_id='%s', error=%w", agentID.String(), err)
	}

	current := Definition{
		Persona:        active.Persona,
		Capabilities:   active.Capabilities,
		ToolAllowances: active.ToolAllowances,
		ModelName:      active.ModelName,
		Config:         active.Config,
	}

	proposed, ok := r.strategy.Propose(current, metric)
	if !ok {
		return nil, nil
	}

	return r.Publish(ctx, agentID, proposed)
}
