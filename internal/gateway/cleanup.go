/*-------------------------------------------------------------------------
 *
 * cleanup.go
 *    Stale chat session cleanup for NeuronFlow
 *
 * Removes chat sessions idle beyond the configured retention on a fixed
 * interval.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/gateway/cleanup.go
 *
 *-------------------------------------------------------------------------
 */

package gateway

import (
	"context"
	"time"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* CleanupStore is the persistence surface the cleanup service needs */
type CleanupStore interface {
	DeleteStaleChatSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

/* CleanupService expires stale chat sessions in the background */
type CleanupService struct {
	store    CleanupStore
	interval time.Duration
	maxIdle  time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewCleanupService(store CleanupStore, interval, maxIdle time.Duration) *CleanupService {
	return &CleanupService{
		store:    store,
		interval: interval,
		maxIdle:  maxIdle,
		done:     make(chan struct{}),
	}
}

func (s *CleanupService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-s.maxIdle)
				removed, err := s.store.DeleteStaleChatSessions(ctx, cutoff)
				if err != nil {
					metrics.WarnWithContext(ctx, "Stale session cleanup failed", map[string]interface{}{
						"error": err.Error(),
					})
					continue
				}
				if removed > 0 {
					metrics.InfoWithContext(ctx, "Removed stale chat sessions", map[string]interface{}{
						"removed": removed,
						"cutoff":  cutoff.Format(time.RFC3339),
					})
				}
			}
		}
	}()
}

func (s *CleanupService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}
