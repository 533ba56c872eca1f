package comment

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/taskman/taskman/internal/event"
)

// memStore is an in-memory Store for consumer and producer tests.
type memStore struct {
	next     int
	comments map[string]*Comment
}

func newMemStore() *memStore {
	return &memStore{comments: make(map[string]*Comment)}
}

func (s *memStore) Create(_ context.Context, c *Comment) error {
	s.next++
	c.ID = strconv.Itoa(s.next)
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.comments[c.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Comment, error) {
	c, ok := s.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) Update(_ context.Context, c *Comment) error {
	cur, ok := s.comments[c.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Content = c.Content
	cur.Edited = true
	cur.UpdatedAt = time.Now().UTC()
	*c = *cur
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	if _, ok := s.comments[id]; !ok {
		return ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

func (s *memStore) ListByEntity(_ context.Context, entityType EntityType, entityID string) ([]*Comment, error) {
	var out []*Comment
	for _, c := range s.comments {
		if c.EntityType == entityType && c.EntityID == entityID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) ListByAuthor(_ context.Context, authorID string) ([]*Comment, error) {
	var out []*Comment
	for _, c := range s.comments {
		if c.AuthorID == authorID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) DeleteByEntity(_ context.Context, entityType EntityType, entityID string) (int64, error) {
	var n int64
	for id, c := range s.comments {
		if c.EntityType == entityType && c.EntityID == entityID {
			delete(s.comments, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) AnonymizeByAuthor(_ context.Context, authorID string) (int64, error) {
	var n int64
	for _, c := range s.comments {
		if c.AuthorID == authorID {
			c.AuthorID = DeletedAuthorID
			c.Content = DeletedPlaceholder
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteByAuthor(_ context.Context, authorID string) (int64, error) {
	var n int64
	for id, c := range s.comments {
		if c.AuthorID == authorID {
			delete(s.comments, id)
			n++
		}
	}
	return n, nil
}

func seedComment(t *testing.T, store *memStore, c *Comment) *Comment {
	t.Helper()
	if err := store.Create(context.Background(), c); err != nil {
		t.Fatalf("seed comment: %v", err)
	}
	return c
}

func marshalEnvelope(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return b
}

func TestCascadeConsumer_TaskDeletedRemovesThread(t *testing.T) {
	store := newMemStore()
	seedComment(t, store, &Comment{Content: "a", AuthorID: "alice", EntityID: "t1", EntityType: EntityTask})
	seedComment(t, store, &Comment{Content: "b", AuthorID: "bob", EntityID: "t1", EntityType: EntityTask})
	seedComment(t, store, &Comment{Content: "c", AuthorID: "bob", EntityID: "t2", EntityType: EntityTask})
	seedComment(t, store, &Comment{Content: "d", AuthorID: "bob", EntityID: "t1", EntityType: EntityProject})

	consumer := NewCascadeConsumer(store)
	body := marshalEnvelope(t, event.TaskEvent{
		EventID:   event.NewID(),
		EventType: event.TaskDeleted,
		TaskID:    "t1",
	})
	if err := consumer.HandleTaskEvent(context.Background(), body); err != nil {
		t.Fatal(err)
	}

	if len(store.comments) != 2 {
		t.Errorf("%d comments remain, want 2 (other task and same-id project untouched)", len(store.comments))
	}
	left, _ := store.ListByEntity(context.Background(), EntityTask, "t1")
	if len(left) != 0 {
		t.Errorf("task t1 still has %d comments after cascade", len(left))
	}
}

func TestCascadeConsumer_ProjectDeletedRemovesThread(t *testing.T) {
	store := newMemStore()
	seedComment(t, store, &Comment{Content: "a", AuthorID: "alice", EntityID: "p1", EntityType: EntityProject})
	seedComment(t, store, &Comment{Content: "b", AuthorID: "bob", EntityID: "p2", EntityType: EntityProject})

	consumer := NewCascadeConsumer(store)
	body := marshalEnvelope(t, event.ProjectEvent{
		EventID:   event.NewID(),
		EventType: event.ProjectDeleted,
		ProjectID: "p1",
	})
	if err := consumer.HandleProjectEvent(context.Background(), body); err != nil {
		t.Fatal(err)
	}

	left, _ := store.ListByEntity(context.Background(), EntityProject, "p1")
	if len(left) != 0 {
		t.Errorf("project p1 still has %d comments after cascade", len(left))
	}
	other, _ := store.ListByEntity(context.Background(), EntityProject, "p2")
	if len(other) != 1 {
		t.Errorf("project p2 lost its comment")
	}
}

func TestCascadeConsumer_NonDeleteEventsIgnored(t *testing.T) {
	store := newMemStore()
	seedComment(t, store, &Comment{Content: "a", AuthorID: "alice", EntityID: "t1", EntityType: EntityTask})

	consumer := NewCascadeConsumer(store)
	body := marshalEnvelope(t, event.TaskEvent{
		EventID:   event.NewID(),
		EventType: event.TaskUpdated,
		TaskID:    "t1",
	})
	if err := consumer.HandleTaskEvent(context.Background(), body); err != nil {
		t.Fatal(err)
	}
	if len(store.comments) != 1 {
		t.Error("non-delete event touched the store")
	}
}

func TestCascadeConsumer_MalformedPayloadDropped(t *testing.T) {
	consumer := NewCascadeConsumer(newMemStore())
	for _, body := range [][]byte{[]byte("{"), []byte("not json")} {
		if err := consumer.HandleTaskEvent(context.Background(), body); err != nil {
			t.Errorf("malformed payload %q returned error %v, want drop", body, err)
		}
	}
}

func TestCascadeConsumer_UserDeletedAnonymizesThenRemoves(t *testing.T) {
	store := newMemStore()
	seedComment(t, store, &Comment{Content: "my secret", AuthorID: "alice", EntityID: "t1", EntityType: EntityTask})
	seedComment(t, store, &Comment{Content: "another one", AuthorID: "alice", EntityID: "p1", EntityType: EntityProject})
	kept := seedComment(t, store, &Comment{Content: "bob's", AuthorID: "bob", EntityID: "t1", EntityType: EntityTask})

	consumer := NewCascadeConsumer(store)
	body := marshalEnvelope(t, event.UserEvent{
		EventID:   event.NewID(),
		EventType: event.UserDeleted,
		UserID:    "alice",
	})
	if err := consumer.HandleUserEvent(context.Background(), body); err != nil {
		t.Fatal(err)
	}

	byAlice, _ := store.ListByAuthor(context.Background(), "alice")
	if len(byAlice) != 0 {
		t.Errorf("%d comments still attributed to the deleted user", len(byAlice))
	}
	byPlaceholder, _ := store.ListByAuthor(context.Background(), DeletedAuthorID)
	if len(byPlaceholder) != 0 {
		t.Errorf("%d anonymized comments survived the removal step", len(byPlaceholder))
	}
	if _, err := store.Get(context.Background(), kept.ID); err != nil {
		t.Error("another author's comment was removed")
	}

	// Redelivery is a no-op.
	if err := consumer.HandleUserEvent(context.Background(), body); err != nil {
		t.Fatalf("redelivered user event: %v", err)
	}
	if _, err := store.Get(context.Background(), kept.ID); err != nil {
		t.Error("redelivery removed an unrelated comment")
	}
}

func TestCascadeConsumer_UnknownUserEventSkipped(t *testing.T) {
	store := newMemStore()
	seedComment(t, store, &Comment{Content: "a", AuthorID: "alice", EntityID: "t1", EntityType: EntityTask})

	consumer := NewCascadeConsumer(store)
	body := marshalEnvelope(t, event.UserEvent{
		EventID:   event.NewID(),
		EventType: "USER_RENAMED",
		UserID:    "alice",
	})
	if err := consumer.HandleUserEvent(context.Background(), body); err != nil {
		t.Fatal(err)
	}
	if len(store.comments) != 1 {
		t.Error("unknown user event type touched the store")
	}
}
