package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/taskman/taskman/internal/event"
)

// memStore is the in-memory Store used across the package tests.
type memStore struct {
	mu     sync.Mutex
	nextID int
	tasks  map[string]*Task
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*Task)}
}

func (s *memStore) Create(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = fmt.Sprintf("%d", s.nextID)
	if t.Status == "" {
		t.Status = StatusTodo
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) Update(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memStore) Assign(_ context.Context, taskID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.Assignees = append(t.Assignees, userID)
	return nil
}

func (s *memStore) ListOpenWithDueDate(_ context.Context) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, t := range s.tasks {
		if !t.Terminal() && t.DueDate != nil {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ Store = (*memStore)(nil)

// capturePublisher records everything published.
type capturePublisher struct {
	err      error
	payloads [][]byte
}

func (p *capturePublisher) Publish(_ string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, append([]byte{}, body...))
	return nil
}

func (p *capturePublisher) events(t *testing.T) []event.TaskEvent {
	t.Helper()
	out := make([]event.TaskEvent, 0, len(p.payloads))
	for _, b := range p.payloads {
		var ev event.TaskEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			t.Fatalf("unmarshal published event: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

// fakeAdmins resolves project admins from a fixed map.
type fakeAdmins struct {
	admins map[string][]string
	err    error
}

func (f *fakeAdmins) Admins(_ context.Context, projectID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.admins[projectID], nil
}

func seedTask(t *testing.T, store *memStore, task *Task) *Task {
	t.Helper()
	if err := store.Create(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	return task
}

func TestSweeper_OverdueTaskNotifiesAssigneesAndAdmins(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -5)

	store := newMemStore()
	pub := &capturePublisher{}
	producer := NewProducer(pub, &fakeAdmins{admins: map[string][]string{"p1": {"admin-1"}}})
	seedTask(t, store, &Task{Title: "ship it", ProjectID: "p1", Status: StatusTodo, DueDate: &due, Assignees: []string{"alice", "bob"}})

	sweeper := NewSweeper(store, producer, 3)
	sweeper.now = func() time.Time { return now }

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	events := pub.events(t)
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.EventType != event.TaskOverdue {
		t.Errorf("event type = %s, want TASK_OVERDUE", ev.EventType)
	}
	if ev.ActorID != "" {
		t.Errorf("sweep event carries actor %q", ev.ActorID)
	}
	want := map[string]bool{"alice": true, "bob": true, "admin-1": true}
	if len(ev.Recipients) != len(want) {
		t.Fatalf("recipients = %v, want assignees plus admins", ev.Recipients)
	}
	for _, r := range ev.Recipients {
		if !want[r] {
			t.Errorf("unexpected recipient %q", r)
		}
	}
}

func TestSweeper_TerminalTasksExcluded(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -5)

	store := newMemStore()
	pub := &capturePublisher{}
	producer := NewProducer(pub, &fakeAdmins{admins: map[string][]string{}})
	seedTask(t, store, &Task{Title: "finished", ProjectID: "p1", Status: StatusDone, DueDate: &due})

	sweeper := NewSweeper(store, producer, 3)
	sweeper.now = func() time.Time { return now }

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(pub.payloads) != 0 {
		t.Errorf("published %d events for a DONE task, want 0", len(pub.payloads))
	}
}

func TestSweeper_ApproachingWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		due           time.Time
		expectedType  event.TaskEventType
		expectedCount int
	}{
		{"due in two days", now.AddDate(0, 0, 2), event.TaskDeadlineApproaching, 1},
		{"due today", now.Add(2 * time.Hour), event.TaskDeadlineApproaching, 1},
		{"due in five days", now.AddDate(0, 0, 5), "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			pub := &capturePublisher{}
			producer := NewProducer(pub, &fakeAdmins{admins: map[string][]string{}})
			seedTask(t, store, &Task{Title: "x", ProjectID: "p1", Status: StatusInProgress, DueDate: &tt.due, Assignees: []string{"alice"}})

			sweeper := NewSweeper(store, producer, 3)
			sweeper.now = func() time.Time { return now }

			if err := sweeper.Sweep(context.Background()); err != nil {
				t.Fatalf("Sweep: %v", err)
			}
			events := pub.events(t)
			if len(events) != tt.expectedCount {
				t.Fatalf("published %d events, want %d", len(events), tt.expectedCount)
			}
			if tt.expectedCount == 1 && events[0].EventType != tt.expectedType {
				t.Errorf("event type = %s, want %s", events[0].EventType, tt.expectedType)
			}
		})
	}
}

func TestSweeper_ItemFailureDoesNotAbortScan(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -1)

	store := newMemStore()
	pub := &capturePublisher{}
	// Resolution fails for p-bad only.
	admins := &fakeAdmins{admins: map[string][]string{"p-good": {"admin-1"}}}
	producer := NewProducer(pub, &resolverByProject{good: admins, badProject: "p-bad"})

	seedTask(t, store, &Task{Title: "a", ProjectID: "p-bad", Status: StatusTodo, DueDate: &due})
	seedTask(t, store, &Task{Title: "b", ProjectID: "p-good", Status: StatusTodo, DueDate: &due, Assignees: []string{"alice"}})

	sweeper := NewSweeper(store, producer, 3)
	sweeper.now = func() time.Time { return now }

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(pub.payloads) != 1 {
		t.Errorf("published %d events, want 1 (healthy item despite failing sibling)", len(pub.payloads))
	}
}

// resolverByProject fails resolution for one project id and delegates the rest.
type resolverByProject struct {
	good       AdminResolver
	badProject string
}

func (r *resolverByProject) Admins(ctx context.Context, projectID string) ([]string, error) {
	if projectID == r.badProject {
		return nil, errors.New("project service unavailable")
	}
	return r.good.Admins(ctx, projectID)
}
