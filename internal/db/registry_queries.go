/*-------------------------------------------------------------------------
 *
 * registry_queries.go
 *    Agent registry queries for NeuronFlow
 *
 * Provides database query functions for agent definitions and their
 * append-only version history.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/db/registry_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

/* Agent queries */
const (
	createAgentQuery = `
		INSERT INTO neuronflow.agents
		(name, description, class, persona, capabilities, tool_allowances, model_name, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		RETURNING id, created_at, updated_at`

	getAgentByIDQuery = `SELECT * FROM neuronflow.agents WHERE id = $1`

	getAgentByNameQuery = `SELECT * FROM neuronflow.agents WHERE name = $1`

	listAgentsQuery = `SELECT * FROM neuronflow.agents ORDER BY created_at DESC`

	deleteAgentQuery = `DELETE FROM neuronflow.agents WHERE id = $1`
)

/* Agent version queries */
const (
	nextAgentVersionQuery = `
		SELECT COALESCE(MAX(version_number), 0) + 1 AS next_version
		FROM neuronflow.agent_versions
		WHERE agent_id = $1`

	createAgentVersionQuery = `
		INSERT INTO neuronflow.agent_versions
		(agent_id, version_number, persona, capabilities, tool_allowances, model_name, config, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		RETURNING id, created_at`

	deactivateAgentVersionsQuery = `
		UPDATE neuronflow.agent_versions
		SET is_active = false
		WHERE agent_id = $1`

	activateAgentVersionQuery = `
		UPDATE neuronflow.agent_versions
		SET is_active = true
		WHERE agent_id = $1 AND version_number = $2`

	getActiveAgentVersionQuery = `
		SELECT * FROM neuronflow.agent_versions
		WHERE agent_id = $1 AND is_active = true
		ORDER BY version_number DESC
		LIMIT 1`

	getAgentVersionQuery = `
		SELECT * FROM neuronflow.agent_versions
		WHERE agent_id = $1 AND version_number = $2`

	listAgentVersionsQuery = `
		SELECT * FROM neuronflow.agent_versions
		WHERE agent_id = $1
		ORDER BY version_number DESC`
)

/* Agent methods */

func (q *Queries) CreateAgent(ctx context.Context, agent *Agent) error {
	params := []interface{}{agent.Name, agent.Description, agent.Class, agent.Persona,
		agent.Capabilities, agent.ToolAllowances, agent.ModelName, agent.Config}
	err := q.DB.GetContext(ctx, agent, createAgentQuery, params...)
	if err != nil {
		return q.formatQueryError("INSERT", len(params), "neuronflow.agents", err)
	}
	return nil
}

func (q *Queries) GetAgentByID(ctx context.Context, id uuid.UUID) (*Agent, error) {
	var agent Agent
	err := q.DB.GetContext(ctx, &agent, getAgentByIDQuery, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %w on %s: agent_id='%s', table='neuronflow.agents'",
			ErrNotFound, q.getConnInfoString(), id.String())
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.agents", err)
	}
	return &agent, nil
}

func (q *Queries) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	var agent Agent
	err := q.DB.GetContext(ctx, &agent, getAgentByNameQuery, name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %w on %s: agent_name='%s', table='neuronflow.agents'",
			ErrNotFound, q.getConnInfoString(), name)
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.agents", err)
	}
	return &agent, nil
}

func (q *Queries) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	err := q.DB.SelectContext(ctx, &agents, listAgentsQuery)
	if err != nil {
		return nil, q.formatQueryError("SELECT", 0, "neuronflow.agents", err)
	}
	return agents, nil
}

func (q *Queries) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	result, err := q.DB.ExecContext(ctx, deleteAgentQuery, id)
	if err != nil {
		return q.formatQueryError("DELETE", 1, "neuronflow.agents", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for DELETE on %s: agent_id='%s', error=%w",
			q.getConnInfoString(), id.String(), err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent %w on %s: agent_id='%s', table='neuronflow.agents', rows_affected=0",
			ErrNotFound, q.getConnInfoString(), id.String())
	}
	return nil
}

/* Agent version methods */

/* CreateAgentVersion appends a new version and activates it in one
 * transaction; prior versions are deactivated, never deleted or mutated */
func (q *Queries) CreateAgentVersion(ctx context.Context, version *AgentVersion) error {
	tx, err := q.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("agent version transaction begin failed on %s: error=%w", q.getConnInfoString(), err)
	}
	defer tx.Rollback()

	var nextVersion int
	if err := tx.GetContext(ctx, &nextVersion, nextAgentVersionQuery, version.AgentID); err != nil {
		return q.formatQueryError("SELECT", 1, "neuronflow.agent_versions", err)
	}
	version.VersionNumber = nextVersion

	if version.IsActive {
		if _, err := tx.ExecContext(ctx, deactivateAgentVersionsQuery, version.AgentID); err != nil {
			return q.formatQueryError("UPDATE", 1, "neuronflow.agent_versions", err)
		}
	}

	params := []interface{}{version.AgentID, version.VersionNumber, version.Persona,
		version.Capabilities, version.ToolAllowances, version.ModelName, version.Config, version.IsActive}
	if err := tx.GetContext(ctx, version, createAgentVersionQuery, params...); err != nil {
		return q.formatQueryError("INSERT", len(params), "neuronflow.agent_versions", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("agent version transaction commit failed on %s: agent_id='%s', error=%w",
			q.getConnInfoString(), version.AgentID.String(), err)
	}
	return nil
}

func (q *Queries) GetActiveAgentVersion(ctx context.Context, agentID uuid.UUID) (*AgentVersion, error) {
	var version AgentVersion
	err := q.DB.GetContext(ctx, &version, getActiveAgentVersionQuery, agentID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("active agent version %w on %s: agent_id='%s', table='neuronflow.agent_versions'",
			ErrNotFound, q.getConnInfoString(), agentID.String())
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.agent_versions", err)
	}
	return &version, nil
}

func (q *Queries) GetAgentVersion(ctx context.Context, agentID uuid.UUID, versionNumber int) (*AgentVersion, error) {
	var version AgentVersion
	err := q.DB.GetContext(ctx, &version, getAgentVersionQuery, agentID, versionNumber)
	if err != nil {
		return nil, fmt.Errorf("agent version retrieval failed on %s: agent_id='%s', version_number=%d, error=%w",
			q.getConnInfoString(), agentID.String(), versionNumber, err)
	}
	return &version, nil
}

func (q *Queries) ListAgentVersions(ctx context.Context, agentID uuid.UUID) ([]AgentVersion, error) {
	var versions []AgentVersion
	err := q.DB.SelectContext(ctx, &versions, listAgentVersionsQuery, agentID)
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.agent_versions", err)
	}
	return versions, nil
}

/* ActivateAgentVersion activates a specific version */
func (q *Queries) ActivateAgentVersion(ctx context.Context, agentID uuid.UUID, versionNumber int) error {
	tx, err := q.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("agent version transaction begin failed on %s: error=%w", q.getConnInfoString(), err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deactivateAgentVersionsQuery, agentID); err != nil {
		return q.formatQueryError("UPDATE", 1, "neuronflow.agent_versions", err)
	}

	result, err := tx.ExecContext(ctx, activateAgentVersionQuery, agentID, versionNumber)
	if err != nil {
		return q.formatQueryError("UPDATE", 2, "neuronflow.agent_versions", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for UPDATE on %s: agent_id='%s', error=%w",
			q.getConnInfoString(), agentID.String(), err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent version %w on %s: agent_id='%s', version_number=%d, rows_affected=0",
			ErrNotFound, q.getConnInfoString(), agentID.String(), versionNumber)
	}

	return tx.Commit()
}
