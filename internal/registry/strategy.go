/*-------------------------------------------------------------------------
 *
 * strategy.go
 *    Default evolution strategy for the agent registry
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/registry/strategy.go
 *
 *-------------------------------------------------------------------------
 */

package registry

import (
	"fmt"

	"github.com/neurondb/NeuronFlow/internal/db"
)

/* ThresholdStrategy proposes a revised persona when an agent's overall
 * score falls below the threshold with enough samples to trust the
 * aggregate. Capabilities, tools, and model stay unchanged; operators
 * review the proposal through the version history. */
type ThresholdStrategy struct {
	MinScore   float64
	MinSamples int
}

func NewThresholdStrategy(minScore float64, minSamples int) *ThresholdStrategy {
	if minSamples <= 0 {
		minSamples = 10
	}
	return &ThresholdStrategy{MinScore: minScore, MinSamples: minSamples}
}

func (s *ThresholdStrategy) Propose(def Definition, metric *db.AgentPerformanceMetric) (Definition, bool) {
	if metric == nil || metric.SamplesCount < s.MinSamples {
		return def, false
	}
	if metric.OverallScore >= s.MinScore {
		return def, false
	}

	revised := def
	revised.Config = make(map[string]interface{}, len(def.Config)+2)
	for k, v := range def.Config {
		revised.Config[k] = v
	}
	revised.Config["evolution_reason"] = fmt.Sprintf(
		"overall score %.3f below threshold %.3f over %d samples",
		metric.OverallScore, s.MinScore, metric.SamplesCount)
	revised.Config["evolved_from_score"] = metric.OverallScore
	revised.Persona = def.Persona +
		"\n\nPrioritize completing the task before elaborating. Keep responses focused and verify outputs against the stated objective."
	return revised, true
}
