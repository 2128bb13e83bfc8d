/*-------------------------------------------------------------------------
 *
 * manager_test.go
 *    Tests for the collaboration session manager
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/collab/manager_test.go
 *
 *-------------------------------------------------------------------------
 */

package collab

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neurondb/NeuronFlow/internal/db"
)

/* fakeStore keeps collaboration sessions in memory with version guarding */
type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*db.CollaborationSession

	/* conflictsLeft forces version-conflict rejections before accepting */
	conflictsLeft int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]*db.CollaborationSession)}
}

func (s *fakeStore) CreateCollabSession(ctx context.Context, session *db.CollaborationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.ID = uuid.New()
	session.Version = 1
	session.StartedAt = time.Now()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *fakeStore) GetCollabSession(ctx context.Context, id uuid.UUID) (*db.CollaborationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("collaboration session not found: session_id='%s'", id.String())
	}
	copied := *session
	copied.Context = copyMap(session.Context)
	return &copied, nil
}

func (s *fakeStore) ListCollabSessionsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]db.CollaborationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.CollaborationSession
	for _, session := range s.sessions {
		if session.WorkflowID == workflowID {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateCollabContext(ctx context.Context, id uuid.UUID, context_ db.JSONBMap, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return false, nil
	}
	session, ok := s.sessions[id]
	if !ok || session.Status != db.CollabActive || session.Version != version {
		return false, nil
	}
	session.Context = copyMap(context_)
	session.Version++
	return true, nil
}

func (s *fakeStore) EndCollabSession(ctx context.Context, id uuid.UUID, result db.JSONBMap) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.Status != db.CollabActive {
		return false, nil
	}
	session.Status = db.CollabEnded
	session.Result = result
	now := time.Now()
	session.EndedAt = &now
	return true, nil
}

func copyMap(m db.JSONBMap) db.JSONBMap {
	out := make(db.JSONBMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func startSession(t *testing.T, m *Manager, participants []string) *db.CollaborationSession {
	t.Helper()
	session, err := m.Start(context.Background(), uuid.New(), "design the schema", participants, map[string]interface{}{
		"phase": "planning",
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return session
}

func TestStartValidation(t *testing.T) {
	m := NewManager(newFakeStore())

	if _, err := m.Start(context.Background(), uuid.New(), "", []string{"a"}, nil); err == nil {
		t.Error("expected empty objective to be rejected")
	}
	if _, err := m.Start(context.Background(), uuid.New(), "goal", nil, nil); err == nil {
		t.Error("expected empty participants to be rejected")
	}
}

func TestContributeMergesContext(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)
	session := startSession(t, m, []string{"architect", "writer"})

	updated, err := m.Contribute(context.Background(), session.ID, Contribution{
		Agent:   "architect",
		Type:    "proposal",
		Content: map[string]interface{}{"schema": "v1"},
	})
	if err != nil {
		t.Fatalf("contribute failed: %v", err)
	}

	if updated.Context["schema"] != "v1" {
		t.Errorf("expected merged content, got %v", updated.Context)
	}
	if updated.Context["phase"] != "planning" {
		t.Errorf("expected initial context preserved, got %v", updated.Context)
	}
	log, ok := updated.Context["contributions"].([]interface{})
	if !ok || len(log) != 1 {
		t.Fatalf("expected 1 logged contribution, got %v", updated.Context["contributions"])
	}
	if updated.Version != session.Version+1 {
		t.Errorf("expected version bump to %d, got %d", session.Version+1, updated.Version)
	}
}

func TestContributeRejectsNonParticipant(t *testing.T) {
	m := NewManager(newFakeStore())
	session := startSession(t, m, []string{"architect"})

	_, err := m.Contribute(context.Background(), session.ID, Contribution{
		Agent:   "intruder",
		Content: map[string]interface{}{"x": 1},
	})
	if err == nil {
		t.Fatal("expected non-participant contribution to be rejected")
	}
}

func TestContributeRejectsEndedSession(t *testing.T) {
	m := NewManager(newFakeStore())
	session := startSession(t, m, []string{"architect"})

	ok, err := m.End(context.Background(), session.ID, map[string]interface{}{"outcome": "done"})
	if err != nil || !ok {
		t.Fatalf("end failed: ok=%v err=%v", ok, err)
	}

	if _, err := m.Contribute(context.Background(), session.ID, Contribution{
		Agent:   "architect",
		Content: map[string]interface{}{"late": true},
	}); err == nil {
		t.Fatal("expected contribution to ended session to be rejected")
	}
}

func TestEndTwice(t *testing.T) {
	m := NewManager(newFakeStore())
	session := startSession(t, m, []string{"architect"})

	ok, err := m.End(context.Background(), session.ID, nil)
	if err != nil || !ok {
		t.Fatalf("first end failed: ok=%v err=%v", ok, err)
	}
	ok, err = m.End(context.Background(), session.ID, nil)
	if err != nil {
		t.Fatalf("second end errored: %v", err)
	}
	if ok {
		t.Error("expected second end to report success=false")
	}
}

func TestContributeRetriesVersionConflict(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)
	session := startSession(t, m, []string{"architect"})

	store.mu.Lock()
	store.conflictsLeft = 2
	store.mu.Unlock()

	updated, err := m.Contribute(context.Background(), session.ID, Contribution{
		Agent:   "architect",
		Content: map[string]interface{}{"schema": "v2"},
	})
	if err != nil {
		t.Fatalf("contribute failed despite retries: %v", err)
	}
	if updated.Context["schema"] != "v2" {
		t.Errorf("expected merged content after retry, got %v", updated.Context)
	}
}

func TestConcurrentContributionsAllRecorded(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)
	participants := []string{"a", "b", "c", "d"}
	session := startSession(t, m, participants)

	const perAgent = 5
	var wg sync.WaitGroup
	for _, agent := range participants {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			for i := 0; i < perAgent; i++ {
				_, err := m.Contribute(context.Background(), session.ID, Contribution{
					Agent:   agent,
					Content: map[string]interface{}{fmt.Sprintf("%s-%d", agent, i): i},
				})
				if err != nil {
					t.Errorf("contribute failed: %v", err)
				}
			}
		}(agent)
	}
	wg.Wait()

	final, err := m.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	log, ok := final.Context["contributions"].([]interface{})
	if !ok {
		t.Fatalf("expected contribution log, got %v", final.Context["contributions"])
	}
	want := len(participants) * perAgent
	if len(log) != want {
		t.Errorf("expected %d logged contributions, got %d", want, len(log))
	}
	for _, agent := range participants {
		for i := 0; i < perAgent; i++ {
			key := fmt.Sprintf("%s-%d", agent, i)
			if _, ok := final.Context[key]; !ok {
				t.Errorf("lost contribution %s", key)
			}
		}
	}
	if final.Version != 1+want {
		t.Errorf("expected version %d, got %d", 1+want, final.Version)
	}
}
