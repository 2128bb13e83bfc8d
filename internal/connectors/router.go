/*-------------------------------------------------------------------------
 *
 * router.go
 *    Connector routing for NeuronFlow
 *
 * Resolves a preferred-connector hint to a registered connector, falling
 * back to the configured default.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/connectors/router.go
 *
 *-------------------------------------------------------------------------
 */

package connectors

import (
	"context"
	"fmt"
	"sync"
)

/* Router holds registered connectors keyed by name */
type Router struct {
	mu          sync.RWMutex
	connectors  map[string]Connector
	defaultName string
}

/* NewRouter creates an empty connector router */
func NewRouter() *Router {
	return &Router{
		connectors: make(map[string]Connector),
	}
}

/* Register adds a connector; the first registered connector becomes the
 * default unless SetDefault overrides it */
func (r *Router) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Name()] = c
	if r.defaultName == "" {
		r.defaultName = c.Name()
	}
}

/* SetDefault sets the default connector name */
func (r *Router) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connectors[name]; !ok {
		return fmt.Errorf("connector routing failed: connector='%s', registered=false", name)
	}
	r.defaultName = name
	return nil
}

/* Route resolves a preferred connector hint; an empty hint selects the
 * default, an unknown hint is an error rather than a silent fallback */
func (r *Router) Route(preferred string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := preferred
	if name == "" {
		name = r.defaultName
	}
	if name == "" {
		return nil, fmt.Errorf("connector routing failed: no connectors registered")
	}

	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("connector routing failed: connector='%s', registered=false", name)
	}
	return c, nil
}

/* Names lists registered connector names */
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	return names
}

/* HealthAll checks every registered connector */
func (r *Router) HealthAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	results := make(map[string]error, len(r.connectors))
	for name, c := range r.connectors {
		results[name] = c.Health(ctx)
	}
	return results
}
