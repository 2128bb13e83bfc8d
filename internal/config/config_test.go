/*-------------------------------------------------------------------------
 *
 * config_test.go
 *    Tests for configuration loading
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/config/config_test.go
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Dispatcher.DefaultMaxRetries != 2 {
		t.Errorf("expected default max retries 2, got %d", cfg.Dispatcher.DefaultMaxRetries)
	}
	w := cfg.Evaluator.Weights
	if sum := w.Completion + w.Latency + w.Quality + w.Errors; sum < 0.99 || sum > 1.01 {
		t.Errorf("expected default weights to sum to 1, got %f", sum)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid port to fail")
	}

	cfg = DefaultConfig()
	cfg.Workflow.MaxParallelSteps = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero parallelism to fail")
	}

	cfg = DefaultConfig()
	cfg.Evaluator.Weights = EvaluatorWeights{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero weights to fail")
	}

	cfg = DefaultConfig()
	cfg.Evaluator.Weights.Quality = -0.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected negative weight to fail")
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9090
workflow:
  max_parallel_steps: 8
connectors:
  - name: primary
    endpoint: http://localhost:9000/invoke
    model: test-model
    default: true
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Workflow.MaxParallelSteps != 8 {
		t.Errorf("expected parallelism override, got %d", cfg.Workflow.MaxParallelSteps)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected untouched default host, got %s", cfg.Server.Host)
	}
	if len(cfg.Connectors) != 1 || !cfg.Connectors[0].Default {
		t.Errorf("expected connector parsed, got %+v", cfg.Connectors)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NEURONFLOW_SERVER_PORT", "7070")
	t.Setenv("NEURONFLOW_DB_HOST", "db.internal")
	t.Setenv("NEURONFLOW_MAX_PARALLEL_STEPS", "16")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	if cfg.Server.Port != 7070 {
		t.Errorf("expected env port override, got %d", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("expected env db host override, got %s", cfg.Database.Host)
	}
	if cfg.Workflow.MaxParallelSteps != 16 {
		t.Errorf("expected env parallelism override, got %d", cfg.Workflow.MaxParallelSteps)
	}
}
