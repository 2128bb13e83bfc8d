/*-------------------------------------------------------------------------
 *
 * metric_queries.go
 *    Agent performance metric queries for NeuronFlow
 *
 * Provides database query functions for the append-only agent performance
 * metric history.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/db/metric_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"

	"github.com/google/uuid"
)

const (
	createAgentPerformanceMetricQuery = `
		INSERT INTO neuronflow.agent_performance_metrics
		(agent_id, workflow_id, task_completion_rate, average_response_time,
		 error_rate, quality_score, overall_score, samples_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, measured_at`

	listAgentPerformanceMetricsQuery = `
		SELECT * FROM neuronflow.agent_performance_metrics
		WHERE agent_id = $1
		ORDER BY measured_at DESC
		LIMIT $2 OFFSET $3`

	getLatestAgentPerformanceMetricQuery = `
		SELECT * FROM neuronflow.agent_performance_metrics
		WHERE agent_id = $1
		ORDER BY measured_at DESC
		LIMIT 1`
)

/* CreateAgentPerformanceMetric appends a new metric row; rows are never
 * mutated in place */
func (q *Queries) CreateAgentPerformanceMetric(ctx context.Context, metric *AgentPerformanceMetric) error {
	params := []interface{}{metric.AgentID, metric.WorkflowID, metric.TaskCompletionRate,
		metric.AverageResponseTime, metric.ErrorRate, metric.QualityScore,
		metric.OverallScore, metric.SamplesCount}
	err := q.DB.GetContext(ctx, metric, createAgentPerformanceMetricQuery, params...)
	if err != nil {
		return q.formatQueryError("INSERT", len(params), "neuronflow.agent_performance_metrics", err)
	}
	return nil
}

func (q *Queries) ListAgentPerformanceMetrics(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]AgentPerformanceMetric, error) {
	var rows []AgentPerformanceMetric
	params := []interface{}{agentID, limit, offset}
	err := q.DB.SelectContext(ctx, &rows, listAgentPerformanceMetricsQuery, params...)
	if err != nil {
		return nil, q.formatQueryError("SELECT", len(params), "neuronflow.agent_performance_metrics", err)
	}
	return rows, nil
}

func (q *Queries) GetLatestAgentPerformanceMetric(ctx context.Context, agentID uuid.UUID) (*AgentPerformanceMetric, error) {
	var metric AgentPerformanceMetric
	err := q.DB.GetContext(ctx, &metric, getLatestAgentPerformanceMetricQuery, agentID)
	if err != nil {
		return nil, q.formatQueryError("SELECT", 1, "neuronflow.agent_performance_metrics", err)
	}
	return &metric, nil
}
