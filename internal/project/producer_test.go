package project

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskman/taskman/internal/event"
)

func TestProducer_ActorExcludedFromRecipients(t *testing.T) {
	store := newMemStore()
	pub := &capturePublisher{}
	producer := NewProducer(pub, store)

	p := seedProject(t, store)
	ctx := context.Background()
	require.NoError(t, store.AddMember(ctx, p.ID, "alice", RoleAdmin))
	require.NoError(t, store.AddMember(ctx, p.ID, "bob", RoleMember))
	require.NoError(t, store.AddMember(ctx, p.ID, "carol", RoleMember))

	require.NoError(t, producer.Created(ctx, p, "bob"))

	events := pub.projectEvents(t)
	require.Len(t, events, 1)
	require.Equal(t, event.ProjectCreated, events[0].EventType)
	require.ElementsMatch(t, []string{"alice", "carol"}, events[0].Recipients)
	require.Equal(t, "bob", events[0].ActorID)
}

func TestProducer_UpdateKindPicksAudience(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	seed := func(t *testing.T) (*capturePublisher, *Producer, *Project) {
		pub := &capturePublisher{}
		producer := NewProducer(pub, store)
		p := seedProject(t, store)
		require.NoError(t, store.AddMember(ctx, p.ID, "admin-1", RoleAdmin))
		require.NoError(t, store.AddMember(ctx, p.ID, "member-1", RoleMember))
		require.NoError(t, store.AddMember(ctx, p.ID, "member-2", RoleMember))
		return pub, producer, p
	}

	t.Run("administrative goes to admins only", func(t *testing.T) {
		pub, producer, p := seed(t)
		require.NoError(t, producer.Updated(ctx, p, event.UpdateAdministrative, ""))

		events := pub.projectEvents(t)
		require.Len(t, events, 1)
		require.Equal(t, event.UpdateAdministrative, events[0].UpdateType)
		require.ElementsMatch(t, []string{"admin-1"}, events[0].Recipients)
	})

	t.Run("general goes to every member", func(t *testing.T) {
		pub, producer, p := seed(t)
		require.NoError(t, producer.Updated(ctx, p, event.UpdateGeneral, ""))

		events := pub.projectEvents(t)
		require.Len(t, events, 1)
		require.ElementsMatch(t, []string{"admin-1", "member-1", "member-2"}, events[0].Recipients)
	})
}

func TestSweeper_ClassifiesAndSkips(t *testing.T) {
	store := newMemStore()
	pub := &capturePublisher{}
	producer := NewProducer(pub, store)
	ctx := context.Background()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	addProject := func(name string, end time.Time, status Status) *Project {
		p := &Project{Name: name, EndDate: &end, Status: status}
		require.NoError(t, store.Create(ctx, p))
		require.NoError(t, store.AddMember(ctx, p.ID, "admin-1", RoleAdmin))
		return p
	}

	overdue := addProject("late", now.AddDate(0, 0, -5), StatusInProgress)
	approaching := addProject("soon", now.AddDate(0, 0, 2), StatusInProgress)
	addProject("done", now.AddDate(0, 0, -5), StatusCompleted) // excluded from scan
	addProject("far", now.AddDate(0, 1, 0), StatusInProgress)  // deadline not close

	sweeper := NewSweeper(store, producer, 3)
	sweeper.now = func() time.Time { return now }

	require.NoError(t, sweeper.Sweep(ctx))

	events := pub.projectEvents(t)
	require.Len(t, events, 2)
	byType := map[event.ProjectEventType]event.ProjectEvent{}
	for _, ev := range events {
		byType[ev.EventType] = ev
	}
	require.Equal(t, overdue.ID, byType[event.ProjectOverdue].ProjectID)
	require.Equal(t, approaching.ID, byType[event.ProjectDeadlineApproaching].ProjectID)
	// Sweep events carry no actor and address the admins.
	for _, ev := range events {
		require.Empty(t, ev.ActorID)
		require.ElementsMatch(t, []string{"admin-1"}, ev.Recipients)
	}
}
