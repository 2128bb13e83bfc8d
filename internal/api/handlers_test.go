/*-------------------------------------------------------------------------
 *
 * handlers_test.go
 *    Tests for the NeuronFlow API handlers
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/handlers_test.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/neurondb/NeuronFlow/internal/connectors"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/dispatcher"
	"github.com/neurondb/NeuronFlow/internal/gateway"
	"github.com/neurondb/NeuronFlow/internal/workflow"
	"github.com/neurondb/NeuronFlow/pkg/audit"
)

/* fakeWorkflowStore keeps workflows and steps in memory */
type fakeWorkflowStore struct {
	mu        sync.Mutex
	workflows map[uuid.UUID]*db.Workflow
	steps     map[uuid.UUID][]db.WorkflowStep
	byKey     map[string]uuid.UUID
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		workflows: make(map[uuid.UUID]*db.Workflow),
		steps:     make(map[uuid.UUID][]db.WorkflowStep),
		byKey:     make(map[string]uuid.UUID),
	}
}

func (s *fakeWorkflowStore) CreateWorkflowWithSteps(ctx context.Context, wf *db.Workflow, steps []db.WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf.ID = uuid.New()
	copied := make([]db.WorkflowStep, len(steps))
	for i := range steps {
		steps[i].ID = uuid.New()
		steps[i].WorkflowID = wf.ID
		copied[i] = steps[i]
	}
	s.workflows[wf.ID] = wf
	s.steps[wf.ID] = copied
	if wf.IdempotencyKey != nil && *wf.IdempotencyKey != "" {
		s.byKey[*wf.IdempotencyKey] = wf.ID
	}
	return nil
}

func (s *fakeWorkflowStore) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*db.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %w: workflow_id='%s'", db.ErrNotFound, id.String())
	}
	copied := *w
	return &copied, nil
}

func (s *fakeWorkflowStore) GetWorkflowByIdempotencyKey(ctx context.Context, key string) (*db.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	copied := *s.workflows[id]
	return &copied, nil
}

func (s *fakeWorkflowStore) ListWorkflows(ctx context.Context, limit, offset int) ([]db.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Workflow
	for _, w := range s.workflows {
		out = append(out, *w)
	}
	return out, nil
}

func (s *fakeWorkflowStore) TransitionWorkflowStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok || w.Status != from {
		return false, nil
	}
	w.Status = to
	return true, nil
}

func (s *fakeWorkflowStore) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return fmt.Errorf("workflow %w: workflow_id='%s'", db.ErrNotFound, id.String())
	}
	delete(s.workflows, id)
	delete(s.steps, id)
	return nil
}

func (s *fakeWorkflowStore) ListWorkflowSteps(ctx context.Context, workflowID uuid.UUID) ([]db.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.WorkflowStep{}, s.steps[workflowID]...), nil
}

/* fakeStepDispatcher completes every step it is handed */
type fakeStepDispatcher struct {
	store *fakeWorkflowStore
}

func (d *fakeStepDispatcher) Dispatch(ctx context.Context, step *db.WorkflowStep) (*dispatcher.Result, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	steps := d.store.steps[step.WorkflowID]
	for i := range steps {
		if steps[i].ID == step.ID {
			steps[i].Status = db.StepCompleted
		}
	}
	return &dispatcher.Result{StepID: step.ID, Status: db.StepCompleted}, nil
}

/* fakeChatStore keeps chat sessions and messages in memory */
type fakeChatStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*db.ChatSession
	messages map[uuid.UUID][]db.ChatMessage
	nextID   int64
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		sessions: make(map[uuid.UUID]*db.ChatSession),
		messages: make(map[uuid.UUID][]db.ChatMessage),
	}
}

func (s *fakeChatStore) CreateChatSession(ctx context.Context, session *db.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.ID = uuid.New()
	session.CreatedAt = time.Now().UTC()
	session.LastActivityAt = session.CreatedAt
	s.sessions[session.ID] = session
	return nil
}

func (s *fakeChatStore) GetChatSession(ctx context.Context, id uuid.UUID) (*db.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("chat session %w: session_id='%s'", db.ErrNotFound, id.String())
	}
	copied := *session
	return &copied, nil
}

func (s *fakeChatStore) EndChatSession(ctx context.Context, id uuid.UUID) (*time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.EndedAt != nil {
		return nil, false, nil
	}
	now := time.Now().UTC()
	session.EndedAt = &now
	return &now, true, nil
}

func (s *fakeChatStore) TouchChatSession(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.LastActivityAt = time.Now().UTC()
	}
	return nil
}

func (s *fakeChatStore) CreateChatMessage(ctx context.Context, message *db.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = s.nextID
	message.CreatedAt = time.Now().UTC()
	s.messages[message.SessionID] = append(s.messages[message.SessionID], *message)
	return nil
}

func (s *fakeChatStore) ListChatMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]db.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[sessionID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]db.ChatMessage{}, all[offset:end]...), nil
}

func (s *fakeChatStore) CountChatMessages(ctx context.Context, sessionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[sessionID]), nil
}

/* stubConnector replies with fixed content, unary and streamed */
type stubConnector struct {
	name    string
	content string
}

func (c *stubConnector) Name() string { return c.name }

func (c *stubConnector) Invoke(ctx context.Context, req connectors.InvokeRequest) (*connectors.InvokeResponse, error) {
	return &connectors.InvokeResponse{Content: c.content, ModelUsed: "test-model", TokensUsed: 5}, nil
}

func (c *stubConnector) Stream(ctx context.Context, req connectors.InvokeRequest) (<-chan connectors.StreamChunk, error) {
	out := make(chan connectors.StreamChunk, 2)
	out <- connectors.StreamChunk{ChunkID: "1", Content: c.content}
	out <- connectors.StreamChunk{ChunkID: "2", Content: "", IsFinal: true}
	close(out)
	return out, nil
}

func (c *stubConnector) Health(ctx context.Context) error { return nil }

func newTestRouter(t *testing.T) (*mux.Router, *fakeChatStore) {
	t.Helper()

	wfStore := newFakeWorkflowStore()
	engine := workflow.NewEngine(wfStore, &fakeStepDispatcher{store: wfStore}, 2)

	chatStore := newFakeChatStore()
	connRouter := connectors.NewRouter()
	connRouter.Register(&stubConnector{name: "stub", content: "pong"})
	gw := gateway.NewGateway(chatStore, connRouter)

	h := NewHandler(nil, nil, engine, gw, nil, nil, connRouter, audit.NewTrail())
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r, chatStore
}

func TestCreateWorkflowAcceptsOptionalUserID(t *testing.T) {
	router, _ := newTestRouter(t)

	bodies := map[string]string{
		"with user":    `{"name":"deploy","user_id":"analyst-7","steps":[{"name":"plan","agents":["architect"],"execution_order":1}]}`,
		"without user": `{"name":"deploy-anon","steps":[{"name":"plan","agents":["architect"],"execution_order":1}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", strings.NewReader(body))
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
			}
			var payload struct {
				Workflow db.Workflow `json:"workflow"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("response decode failed: %v", err)
			}
			if payload.Workflow.ID == uuid.Nil {
				t.Error("expected created workflow to carry an id")
			}
		})
	}
}

func createTestSession(t *testing.T, router *mux.Router) uuid.UUID {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"user_id":"tester"}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("session create failed: %d: %s", rec.Code, rec.Body.String())
	}
	var session db.ChatSession
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("session decode failed: %v", err)
	}
	return session.ID
}

func TestSendMessageUnary(t *testing.T) {
	router, _ := newTestRouter(t)
	sessionID := createTestSession(t, router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/sessions/"+sessionID.String()+"/messages",
		strings.NewReader(`{"message":"hello"}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp gateway.SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if resp.Content != "pong" {
		t.Errorf("expected connector reply, got %q", resp.Content)
	}
}

func TestSendMessageStreamOption(t *testing.T) {
	router, chatStore := newTestRouter(t)
	sessionID := createTestSession(t, router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/sessions/"+sessionID.String()+"/messages",
		strings.NewReader(`{"message":"hello","stream":true}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", got)
	}

	body := rec.Body.String()
	frames := 0
	finals := 0
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		frames++
		var chunk gateway.StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			t.Fatalf("chunk decode failed: %v", err)
		}
		if chunk.IsFinal {
			finals++
		}
	}
	if frames != 2 {
		t.Errorf("expected 2 SSE frames, got %d in %q", frames, body)
	}
	if finals != 1 {
		t.Errorf("expected exactly one final chunk, got %d", finals)
	}

	chatStore.mu.Lock()
	messages := chatStore.messages[sessionID]
	chatStore.mu.Unlock()
	if len(messages) != 2 {
		t.Fatalf("expected user and agent messages persisted, got %d", len(messages))
	}
	if messages[1].Sender != gateway.SenderAgent || messages[1].Content != "pong" {
		t.Errorf("expected assembled agent message, got %+v", messages[1])
	}
}

func TestSendMessageAfterSessionEnded(t *testing.T) {
	router, _ := newTestRouter(t)
	sessionID := createTestSession(t, router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/sessions/"+sessionID.String()+"/end", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("session end failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost,
		"/api/v1/sessions/"+sessionID.String()+"/messages",
		strings.NewReader(`{"message":"hello"}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for ended session, got %d: %s", rec.Code, rec.Body.String())
	}
}
