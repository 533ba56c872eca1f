package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/httpx"
)

// memStore is an in-memory Store for consumer and service tests.
type memStore struct {
	next  int
	err   error
	items map[string]*Notification
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]*Notification)}
}

func (s *memStore) Create(_ context.Context, n *Notification) error {
	if s.err != nil {
		return s.err
	}
	s.next++
	n.ID = strconv.Itoa(s.next)
	n.CreatedAt = time.Now().UTC()
	cp := *n
	s.items[n.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Notification, error) {
	n, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memStore) byRecipient(recipientID string) []*Notification {
	var out []*Notification
	for _, n := range s.items {
		if n.RecipientID == recipientID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) ListByRecipient(_ context.Context, recipientID string, page httpx.Page) (*PagedNotifications, error) {
	all := s.byRecipient(recipientID)
	total := int64(len(all))
	totalPages := int((total + int64(page.Size) - 1) / int64(page.Size))
	lo := page.Number * page.Size
	if lo > len(all) {
		lo = len(all)
	}
	hi := lo + page.Size
	if hi > len(all) {
		hi = len(all)
	}
	return &PagedNotifications{
		Notifications: all[lo:hi],
		PageNumber:    page.Number,
		PageSize:      page.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          page.Number+1 >= totalPages,
	}, nil
}

func (s *memStore) ListAllByRecipient(_ context.Context, recipientID string) ([]*Notification, error) {
	return s.byRecipient(recipientID), nil
}

func (s *memStore) ListUnread(_ context.Context, recipientID string) ([]*Notification, error) {
	var out []*Notification
	for _, n := range s.byRecipient(recipientID) {
		if !n.IsRead {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memStore) CountUnread(_ context.Context, recipientID string) (int64, error) {
	unread, _ := s.ListUnread(context.Background(), recipientID)
	return int64(len(unread)), nil
}

func (s *memStore) ListByType(_ context.Context, recipientID string, typ Type, page httpx.Page) (*PagedNotifications, error) {
	var matched []*Notification
	for _, n := range s.byRecipient(recipientID) {
		if n.Type == typ {
			matched = append(matched, n)
		}
	}
	return &PagedNotifications{
		Notifications: matched,
		PageNumber:    page.Number,
		PageSize:      page.Size,
		TotalElements: int64(len(matched)),
		TotalPages:    1,
		Last:          true,
	}, nil
}

func (s *memStore) MarkRead(_ context.Context, id string) (*Notification, error) {
	n, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		now := time.Now().UTC()
		n.ReadAt = &now
	}
	cp := *n
	return &cp, nil
}

func (s *memStore) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	var n int64
	for _, item := range s.items {
		if item.RecipientID == recipientID && !item.IsRead {
			item.IsRead = true
			now := time.Now().UTC()
			item.ReadAt = &now
			n++
		}
	}
	return n, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *memStore) DeleteByRecipient(_ context.Context, recipientID string) (int64, error) {
	var n int64
	for id, item := range s.items {
		if item.RecipientID == recipientID {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteByEntity(_ context.Context, entityType, entityID string) (int64, error) {
	var n int64
	for id, item := range s.items {
		if item.EntityType == entityType && item.EntityID == entityID {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func marshalEnvelope(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return b
}

func newTestConsumer() (*Consumer, *memStore) {
	store := newMemStore()
	return NewConsumer(NewService(store, NewRegistry())), store
}

func TestConsumer_TaskEventFanOut(t *testing.T) {
	tests := []struct {
		eventType   event.TaskEventType
		wantType    Type
		wantContent string
	}{
		{event.TaskCreated, TaskCreated, "New task created: ship it"},
		{event.TaskAssigned, TaskAssigned, "You have been assigned to task: ship it"},
		{event.TaskUpdated, TaskUpdated, "Task has been updated: ship it"},
		{event.TaskCompleted, TaskCompleted, "Task completed: ship it"},
		{event.TaskDeleted, TaskDeleted, "Task deleted: ship it"},
		{event.TaskOverdue, TaskOverdue, "Task overdue: ship it"},
		{event.TaskDeadlineApproaching, TaskDueSoon, "Task due soon: ship it"},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			consumer, store := newTestConsumer()
			body := marshalEnvelope(t, event.TaskEvent{
				EventID:    event.NewID(),
				EventType:  tt.eventType,
				TaskID:     "t1",
				TaskTitle:  "ship it",
				ActorID:    "alice",
				Recipients: []string{"bob"},
			})
			if err := consumer.HandleTaskEvent(context.Background(), body); err != nil {
				t.Fatal(err)
			}
			got := store.byRecipient("bob")
			if len(got) != 1 {
				t.Fatalf("bob has %d notifications, want 1", len(got))
			}
			if got[0].Type != tt.wantType {
				t.Errorf("type = %s, want %s", got[0].Type, tt.wantType)
			}
			if got[0].Content != tt.wantContent {
				t.Errorf("content = %q, want %q", got[0].Content, tt.wantContent)
			}
			if got[0].EntityID != "t1" || got[0].EntityType != "TASK" {
				t.Errorf("entity = %s/%s, want TASK/t1", got[0].EntityType, got[0].EntityID)
			}
		})
	}
}

func TestConsumer_ActorNeverNotifiedEvenIfListed(t *testing.T) {
	consumer, store := newTestConsumer()
	body := marshalEnvelope(t, event.TaskEvent{
		EventID:    event.NewID(),
		EventType:  event.TaskCreated,
		TaskID:     "t1",
		TaskTitle:  "x",
		ActorID:    "alice",
		Recipients: []string{"alice", "bob", ""},
	})
	if err := consumer.HandleTaskEvent(context.Background(), body); err != nil {
		t.Fatal(err)
	}
	if len(store.byRecipient("alice")) != 0 {
		t.Error("actor received a notification about their own action")
	}
	if len(store.byRecipient("bob")) != 1 {
		t.Error("bob did not receive a notification")
	}
	if len(store.items) != 1 {
		t.Errorf("%d notifications created, want 1", len(store.items))
	}
}

func TestConsumer_ProjectEventFanOut(t *testing.T) {
	tests := []struct {
		eventType   event.ProjectEventType
		wantType    Type
		wantContent string
	}{
		{event.ProjectCreated, ProjectCreated, "New project created: apollo"},
		{event.ProjectMemberAdded, ProjectMemberAdded, "You have been added to project: apollo"},
		{event.ProjectUpdated, ProjectUpdated, "Project has been updated: apollo"},
		{event.ProjectCompleted, ProjectCompleted, "Project completed: apollo"},
		{event.ProjectDeleted, ProjectDeleted, "Project deleted: apollo"},
		{event.ProjectOverdue, ProjectOverdue, "Project overdue: apollo"},
		{event.ProjectDeadlineApproaching, ProjectDueSoon, "Project due soon: apollo"},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			consumer, store := newTestConsumer()
			body := marshalEnvelope(t, event.ProjectEvent{
				EventID:     event.NewID(),
				EventType:   tt.eventType,
				ProjectID:   "p1",
				ProjectName: "apollo",
				Recipients:  []string{"bob"},
			})
			if err := consumer.HandleProjectEvent(context.Background(), body); err != nil {
				t.Fatal(err)
			}
			got := store.byRecipient("bob")
			if len(got) != 1 {
				t.Fatalf("bob has %d notifications, want 1", len(got))
			}
			if got[0].Type != tt.wantType || got[0].Content != tt.wantContent {
				t.Errorf("got %s %q, want %s %q", got[0].Type, got[0].Content, tt.wantType, tt.wantContent)
			}
		})
	}
}

func TestConsumer_CommentEventContent(t *testing.T) {
	long := strings.Repeat("абв", 30) // 90 runes, multibyte
	wantSnippet := string([]rune(long)[:47]) + "..."

	tests := []struct {
		name        string
		eventType   event.CommentEventType
		content     string
		entityType  string
		wantType    Type
		wantContent string
	}{
		{
			name:        "created on task",
			eventType:   event.CommentCreated,
			content:     "short remark",
			entityType:  "TASK",
			wantType:    CommentAdded,
			wantContent: "New comment on your task: short remark",
		},
		{
			name:        "updated on project",
			eventType:   event.CommentUpdated,
			content:     "edited remark",
			entityType:  "PROJECT",
			wantType:    CommentUpdated,
			wantContent: "Comment updated on your project: edited remark",
		},
		{
			name:        "reply truncates long content",
			eventType:   event.CommentReplied,
			content:     long,
			entityType:  "TASK",
			wantType:    CommentReplied,
			wantContent: "Someone replied to your comment: " + wantSnippet,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer, store := newTestConsumer()
			body := marshalEnvelope(t, event.CommentEvent{
				EventID:    event.NewID(),
				EventType:  tt.eventType,
				CommentID:  "c1",
				Content:    tt.content,
				AuthorID:   "alice",
				EntityID:   "t1",
				EntityType: tt.entityType,
				Recipients: []string{"bob"},
			})
			if err := consumer.HandleCommentEvent(context.Background(), body); err != nil {
				t.Fatal(err)
			}
			got := store.byRecipient("bob")
			if len(got) != 1 {
				t.Fatalf("bob has %d notifications, want 1", len(got))
			}
			if got[0].Type != tt.wantType {
				t.Errorf("type = %s, want %s", got[0].Type, tt.wantType)
			}
			if got[0].Content != tt.wantContent {
				t.Errorf("content = %q, want %q", got[0].Content, tt.wantContent)
			}
		})
	}
}

func TestConsumer_CommentDeletedIsSilent(t *testing.T) {
	consumer, store := newTestConsumer()
	body := marshalEnvelope(t, event.CommentEvent{
		EventID:    event.NewID(),
		EventType:  event.CommentDeleted,
		CommentID:  "c1",
		EntityID:   "t1",
		EntityType: "TASK",
		Recipients: []string{"bob"},
	})
	if err := consumer.HandleCommentEvent(context.Background(), body); err != nil {
		t.Fatal(err)
	}
	if len(store.items) != 0 {
		t.Error("comment deletion produced notifications")
	}
}

func TestConsumer_UnknownTypesSkippedMalformedDropped(t *testing.T) {
	consumer, store := newTestConsumer()

	unknown := marshalEnvelope(t, event.TaskEvent{
		EventID:    event.NewID(),
		EventType:  "TASK_ARCHIVED",
		TaskID:     "t1",
		Recipients: []string{"bob"},
	})
	if err := consumer.HandleTaskEvent(context.Background(), unknown); err != nil {
		t.Errorf("unknown event type returned error %v, want skip", err)
	}
	if err := consumer.HandleProjectEvent(context.Background(), []byte("{")); err != nil {
		t.Errorf("malformed payload returned error %v, want drop", err)
	}
	if len(store.items) != 0 {
		t.Error("skipped events produced notifications")
	}
}

func TestConsumer_StoreFailureRequeues(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("pool exhausted")
	consumer := NewConsumer(NewService(store, NewRegistry()))

	body := marshalEnvelope(t, event.TaskEvent{
		EventID:    event.NewID(),
		EventType:  event.TaskCreated,
		TaskID:     "t1",
		TaskTitle:  "x",
		Recipients: []string{"bob"},
	})
	if err := consumer.HandleTaskEvent(context.Background(), body); err == nil {
		t.Fatal("store failure swallowed; message would be lost instead of requeued")
	}
}
