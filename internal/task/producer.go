package task

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taskman/taskman/internal/bus"
	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/tracing"
)

// AdminResolver looks up a project's admin member ids. Satisfied by
// client.ProjectClient.
type AdminResolver interface {
	Admins(ctx context.Context, projectID string) ([]string, error)
}

// Producer translates committed task mutations into published envelopes.
// Recipient resolution happens here, once, before publishing: the consumers
// downstream never recompute who cares about an event. If resolution fails
// the publish is aborted and the error surfaces to the caller; the entity
// write is already committed and stays committed.
type Producer struct {
	pub      bus.Publisher
	projects AdminResolver
	logger   *logging.Logger
}

// NewProducer wires a task event producer.
func NewProducer(pub bus.Publisher, projects AdminResolver) *Producer {
	return &Producer{
		pub:      pub,
		projects: projects,
		logger:   logging.New("taskd-producer"),
	}
}

// Created publishes TASK_CREATED. Recipients are the creator's project admins
// plus current assignees, minus the actor.
func (p *Producer) Created(ctx context.Context, t *Task, actorID string) error {
	return p.publish(ctx, event.TaskCreated, t, t.Assignees, actorID)
}

// Assigned publishes TASK_ASSIGNED for one new assignee.
func (p *Producer) Assigned(ctx context.Context, t *Task, assigneeID, actorID string) error {
	return p.publish(ctx, event.TaskAssigned, t, []string{assigneeID}, actorID)
}

// Updated publishes TASK_UPDATED to all assignees and project admins.
func (p *Producer) Updated(ctx context.Context, t *Task, actorID string) error {
	return p.publish(ctx, event.TaskUpdated, t, t.Assignees, actorID)
}

// Completed publishes TASK_COMPLETED.
func (p *Producer) Completed(ctx context.Context, t *Task, actorID string) error {
	return p.publish(ctx, event.TaskCompleted, t, t.Assignees, actorID)
}

// Deleted publishes TASK_DELETED. The project and comment services cascade on
// this one, so it must go out even when nobody ends up notified.
func (p *Producer) Deleted(ctx context.Context, t *Task, actorID string) error {
	return p.publish(ctx, event.TaskDeleted, t, t.Assignees, actorID)
}

// Overdue publishes TASK_OVERDUE with pre-resolved recipients. Sweep events
// carry no actor.
func (p *Producer) Overdue(ctx context.Context, t *Task, recipients []string) error {
	return p.send(ctx, event.TaskOverdue, t, event.ExcludeActor(recipients, ""), "")
}

// DeadlineApproaching publishes TASK_DEADLINE_APPROACHING.
func (p *Producer) DeadlineApproaching(ctx context.Context, t *Task, recipients []string) error {
	return p.send(ctx, event.TaskDeadlineApproaching, t, event.ExcludeActor(recipients, ""), "")
}

// ResolveRecipients returns assignees plus project admins for a task. The
// comment service hits the same set through the notification-recipients
// endpoint.
func (p *Producer) ResolveRecipients(ctx context.Context, t *Task) ([]string, error) {
	admins, err := p.projects.Admins(ctx, t.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve admins for project %s: %w", t.ProjectID, err)
	}
	return append(append([]string{}, t.Assignees...), admins...), nil
}

func (p *Producer) publish(ctx context.Context, typ event.TaskEventType, t *Task, direct []string, actorID string) error {
	admins, err := p.projects.Admins(ctx, t.ProjectID)
	if err != nil {
		// Publishing with a wrong or empty recipient list is worse than not
		// publishing: fail loudly and let the caller decide.
		return fmt.Errorf("resolve admins for project %s: %w", t.ProjectID, err)
	}
	recipients := event.ExcludeActor(append(append([]string{}, direct...), admins...), actorID)
	return p.send(ctx, typ, t, recipients, actorID)
}

func (p *Producer) send(ctx context.Context, typ event.TaskEventType, t *Task, recipients []string, actorID string) error {
	ctx, span := tracing.StartSpan(ctx, "taskd.publish",
		attribute.String("event_type", string(typ)),
		attribute.String("task_id", t.ID),
		attribute.Int("recipients", len(recipients)),
	)
	defer span.End()

	ev := event.TaskEvent{
		EventID:      event.NewID(),
		EventType:    typ,
		TaskID:       t.ID,
		TaskTitle:    t.Title,
		Description:  t.Description,
		ProjectID:    t.ProjectID,
		Status:       string(t.Status),
		Priority:     t.Priority,
		DueDate:      t.DueDate,
		ActorID:      actorID,
		Recipients:   recipients,
		Timestamp:    time.Now().UTC(),
		TraceHeaders: tracing.InjectToHeaders(ctx),
	}
	if err := bus.PublishJSON(p.pub, event.TopicTaskEvents, ev); err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}
	p.logger.WithContext(ctx).
		WithEventType(string(typ)).
		WithSubject(t.ID).
		WithTopic(event.TopicTaskEvents).
		WithField("recipients", len(recipients)).
		Info("task event published")
	return nil
}
