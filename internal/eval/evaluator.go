/*-------------------------------------------------------------------------
 *
 * evaluator.go
 *    Agent performance evaluator for NeuronFlow
 *
 * Accumulates per-agent outcome samples into rolling aggregates and
 * periodically flushes them as append-only metric rows. Accumulation is
 * sum-and-count based, so samples from concurrent steps can arrive in any
 * order without changing the resulting aggregate.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/eval/evaluator.go
 *
 *-------------------------------------------------------------------------
 */

package eval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* Store is the persistence surface the evaluator needs */
type Store interface {
	CreateAgentPerformanceMetric(ctx context.Context, metric *db.AgentPerformanceMetric) error
}

/* Weights blend the component rates into the overall score */
type Weights struct {
	Completion float64
	Latency    float64
	Quality    float64
	Errors     float64
}

/* DefaultWeights mirror the configuration defaults */
func DefaultWeights() Weights {
	return Weights{Completion: 0.4, Latency: 0.1, Quality: 0.3, Errors: 0.2}
}

/* Sample is one observed step outcome for an agent */
type Sample struct {
	AgentID    uuid.UUID
	WorkflowID uuid.UUID
	Succeeded  bool
	Latency    time.Duration

	/* Quality in [0,1]; only counted when HasQuality is set */
	Quality    float64
	HasQuality bool
}

type aggKey struct {
	agentID    uuid.UUID
	workflowID uuid.UUID
}

/* accumulator keeps only sums and counts so merging is commutative */
type accumulator struct {
	samples      int
	successes    int
	failures     int
	latencySum   time.Duration
	qualitySum   float64
	qualityCount int
}

/* Evaluator aggregates samples and flushes metric rows */
type Evaluator struct {
	store   Store
	weights Weights

	mu   sync.Mutex
	accs map[aggKey]*accumulator

	cancel context.CancelFunc
	done   chan struct{}
}

func NewEvaluator(store Store, weights Weights) *Evaluator {
	return &Evaluator{
		store:   store,
		weights: weights,
		accs:    make(map[aggKey]*accumulator),
	}
}

/* Record folds one sample into the rolling aggregate for its
 * (agent, workflow) pair */
func (e *Evaluator) Record(sample Sample) {
	outcome := "failure"
	if sample.Succeeded {
		outcome = "success"
	}
	metrics.RecordEvalSample(outcome)

	e.mu.Lock()
	defer e.mu.Unlock()

	key := aggKey{agentID: sample.AgentID, workflowID: sample.WorkflowID}
	acc, ok := e.accs[key]
	if !ok {
		acc = &accumulator{}
		e.accs[key] = acc
	}

	acc.samples++
	if sample.Succeeded {
		acc.successes++
	} else {
		acc.failures++
	}
	acc.latencySum += sample.Latency
	if sample.HasQuality {
		acc.qualitySum += sample.Quality
		acc.qualityCount++
	}
}

/* snapshot drains the current aggregates */
func (e *Evaluator) snapshot() map[aggKey]*accumulator {
	e.mu.Lock()
	defer e.mu.Unlock()
	accs := e.accs
	e.accs = make(map[aggKey]*accumulator)
	return accs
}

/* metricFrom derives the metric row for one drained aggregate */
func (e *Evaluator) metricFrom(key aggKey, acc *accumulator) *db.AgentPerformanceMetric {
	completionRate := float64(acc.successes) / float64(acc.samples)
	errorRate := float64(acc.failures) / float64(acc.samples)
	avgLatency := acc.latencySum.Seconds() / float64(acc.samples)

	quality := 0.0
	if acc.qualityCount > 0 {
		quality = acc.qualitySum / float64(acc.qualityCount)
	}

	/* Latency contributes through 1/(1+seconds) so faster agents score
	 * higher on a bounded [0,1] scale */
	overall := e.weights.Completion*completionRate +
		e.weights.Quality*quality +
		e.weights.Errors*(1-errorRate) +
		e.weights.Latency*(1/(1+avgLatency))

	return &db.AgentPerformanceMetric{
		AgentID:             key.agentID,
		WorkflowID:          key.workflowID,
		TaskCompletionRate:  completionRate,
		AverageResponseTime: avgLatency,
		ErrorRate:           errorRate,
		QualityScore:        quality,
		OverallScore:        overall,
		SamplesCount:        acc.samples,
	}
}

/* Flush writes every non-empty aggregate as a new metric row and resets
 * the accumulators. A failed write puts the aggregate back rather than
 * losing its samples. */
func (e *Evaluator) Flush(ctx context.Context) (int, error) {
	accs := e.snapshot()
	if len(accs) == 0 {
		return 0, nil
	}

	written := 0
	var firstErr error
	for key, acc := range accs {
		metric := e.metricFrom(key, acc)
		if err := e.store.CreateAgentPerformanceMetric(ctx, metric); err != nil {
			e.restore(key, acc)
			if firstErr == nil {
				firstErr = fmt.Errorf("metric flush failed: agent_id='%s', error=%w",
					key.agentID.String(), err)
			}
			continue
		}
		written++
	}

	metrics.RecordEvalFlush()
	return written, firstErr
}

/* restore merges a drained aggregate back after a failed flush. Samples
 * recorded in the meantime merge cleanly because both sides are sums. */
func (e *Evaluator) restore(key aggKey, acc *accumulator) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.accs[key]
	if !ok {
		e.accs[key] = acc
		return
	}
	existing.samples += acc.samples
	existing.successes += acc.successes
	existing.failures += acc.failures
	existing.latencySum += acc.latencySum
	existing.qualitySum += acc.qualitySum
	existing.qualityCount += acc.qualityCount
}

/* Start begins the periodic flush loop */
func (e *Evaluator) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				written, err := e.Flush(ctx)
				if err != nil {
					metrics.WarnWithContext(ctx, "Metric flush incomplete", map[string]interface{}{
						"written": written,
						"error":   err.Error(),
					})
				}
			}
		}
	}()
}

/* Stop halts the flush loop and performs one final flush */
func (e *Evaluator) Stop(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	if _, err := e.Flush(ctx); err != nil {
		metrics.WarnWithContext(ctx, "Final metric flush incomplete", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
