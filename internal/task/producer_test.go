package task

import (
	"context"
	"errors"
	"testing"

	"github.com/taskman/taskman/internal/event"
)

func TestProducer_ResolutionFailureAbortsPublish(t *testing.T) {
	pub := &capturePublisher{}
	producer := NewProducer(pub, &fakeAdmins{err: errors.New("project service down")})

	task := &Task{ID: "t1", Title: "x", ProjectID: "p1", Status: StatusTodo}
	if err := producer.Created(context.Background(), task, "alice"); err == nil {
		t.Fatal("Created succeeded despite failed recipient resolution")
	}
	if len(pub.payloads) != 0 {
		t.Errorf("published %d events after failed resolution, want 0", len(pub.payloads))
	}
}

func TestProducer_ActorNeverNotified(t *testing.T) {
	pub := &capturePublisher{}
	producer := NewProducer(pub, &fakeAdmins{admins: map[string][]string{"p1": {"admin-1", "alice"}}})

	task := &Task{ID: "t1", Title: "x", ProjectID: "p1", Status: StatusTodo, Assignees: []string{"alice", "bob"}}
	if err := producer.Completed(context.Background(), task, "alice"); err != nil {
		t.Fatal(err)
	}

	events := pub.events(t)
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	for _, r := range events[0].Recipients {
		if r == "alice" {
			t.Error("actor appears in recipients")
		}
	}
	// bob and admin-1 remain.
	if len(events[0].Recipients) != 2 {
		t.Errorf("recipients = %v, want bob and admin-1", events[0].Recipients)
	}
}

func TestProducer_AssignedTargetsNewAssignee(t *testing.T) {
	pub := &capturePublisher{}
	producer := NewProducer(pub, &fakeAdmins{admins: map[string][]string{"p1": {"admin-1"}}})

	task := &Task{ID: "t1", Title: "x", ProjectID: "p1", Status: StatusTodo}
	if err := producer.Assigned(context.Background(), task, "carol", "admin-1"); err != nil {
		t.Fatal(err)
	}

	events := pub.events(t)
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	if events[0].EventType != event.TaskAssigned {
		t.Errorf("event type = %s, want TASK_ASSIGNED", events[0].EventType)
	}
	// The actor is the only admin, so the new assignee is the sole recipient.
	if len(events[0].Recipients) != 1 || events[0].Recipients[0] != "carol" {
		t.Errorf("recipients = %v, want [carol]", events[0].Recipients)
	}
}

func TestProducer_EnvelopeSnapshotsTask(t *testing.T) {
	pub := &capturePublisher{}
	producer := NewProducer(pub, &fakeAdmins{admins: map[string][]string{}})

	task := &Task{
		ID:          "t1",
		Title:       "write the report",
		Description: "quarterly numbers",
		ProjectID:   "p1",
		Status:      StatusInProgress,
		Priority:    "HIGH",
	}
	if err := producer.Updated(context.Background(), task, "alice"); err != nil {
		t.Fatal(err)
	}

	events := pub.events(t)
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.TaskID != "t1" || ev.TaskTitle != "write the report" || ev.Status != "IN_PROGRESS" || ev.Priority != "HIGH" {
		t.Errorf("envelope did not snapshot the task: %+v", ev)
	}
	if ev.EventID == "" {
		t.Error("envelope missing event id")
	}
	if ev.Timestamp.IsZero() {
		t.Error("envelope missing timestamp")
	}
}
