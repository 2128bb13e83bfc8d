/*-------------------------------------------------------------------------
 *
 * router_test.go
 *    Tests for connector routing
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/connectors/router_test.go
 *
 *-------------------------------------------------------------------------
 */

package connectors

import (
	"context"
	"testing"
)

type stubConnector struct {
	name string
}

func (c *stubConnector) Name() string { return c.name }

func (c *stubConnector) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	return &InvokeResponse{Content: "ok"}, nil
}

func (c *stubConnector) Stream(ctx context.Context, req InvokeRequest) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 1)
	out <- StreamChunk{ChunkID: "1", IsFinal: true}
	close(out)
	return out, nil
}

func (c *stubConnector) Health(ctx context.Context) error { return nil }

func TestRouterEmptyHintSelectsDefault(t *testing.T) {
	router := NewRouter()
	router.Register(&stubConnector{name: "first"})
	router.Register(&stubConnector{name: "second"})

	c, err := router.Route("")
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if c.Name() != "first" {
		t.Errorf("expected first registered connector as default, got %s", c.Name())
	}

	if err := router.SetDefault("second"); err != nil {
		t.Fatalf("set default failed: %v", err)
	}
	c, err = router.Route("")
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if c.Name() != "second" {
		t.Errorf("expected overridden default, got %s", c.Name())
	}
}

func TestRouterUnknownHintErrors(t *testing.T) {
	router := NewRouter()
	router.Register(&stubConnector{name: "first"})

	if _, err := router.Route("missing"); err == nil {
		t.Error("expected unknown hint to error rather than fall back")
	}
	if err := router.SetDefault("missing"); err == nil {
		t.Error("expected unknown default name to error")
	}
}

func TestRouterEmpty(t *testing.T) {
	router := NewRouter()
	if _, err := router.Route(""); err == nil {
		t.Error("expected empty router to error")
	}
	if names := router.Names(); len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}
}
