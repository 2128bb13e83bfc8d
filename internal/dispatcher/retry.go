/*-------------------------------------------------------------------------
 *
 * retry.go
 *    Retry policy for step dispatches
 *
 * Classifies invocation failures as transient or fatal and computes
 * exponential backoff delays with jitter.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/dispatcher/retry.go
 *
 *-------------------------------------------------------------------------
 */

package dispatcher

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/neurondb/NeuronFlow/internal/connectors"
)

/* RetryPolicy controls transient-failure retries */
type RetryPolicy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

/* DefaultRetryPolicy mirrors the configuration defaults */
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

/* isRetryable reports whether a failure may be retried. Fatal errors
 * reported by the agent and context cancellation never retry; declared
 * connector unavailability does. */
func isRetryable(err error) bool {
	var fatal *connectors.FatalError
	if errors.As(err, &fatal) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var unavailable *connectors.UnavailableError
	return errors.As(err, &unavailable)
}

/* backoffDelay computes the delay before attempt n (0-based), exponential
 * with +-25% jitter and capped at MaxDelay */
func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffMultiplier
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	jitter := (rand.Float64()*0.5 - 0.25) * delay
	return time.Duration(delay + jitter)
}

/* sleepContext waits for the delay unless ctx ends first */
func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
