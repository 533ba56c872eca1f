package notification

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taskman/taskman/internal/bus"
	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/tracing"
)

// Channel is this service's consumer group name on every topic it reads.
const Channel = "notification-service"

// Comment bodies are long; notification contents only carry the lead-in.
const snippetRunes = 50

// Consumer fans envelopes out into per-recipient notifications. Everything it
// needs is in the envelope snapshot; it never calls back into the producing
// service. Recipients matching the actor are skipped even if a producer
// forgot to strip them.
type Consumer struct {
	svc    *Service
	logger *logging.Logger
}

// NewConsumer builds the fan-out consumer.
func NewConsumer(svc *Service) *Consumer {
	return &Consumer{svc: svc, logger: logging.New(Channel)}
}

// HandleTaskEvent processes one raw task-events message.
func (c *Consumer) HandleTaskEvent(ctx context.Context, body []byte) error {
	var ev event.TaskEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Plain().WithError(err).Error("bad task event payload, dropping")
		return nil
	}

	var typ Type
	var content string
	switch ev.EventType {
	case event.TaskCreated:
		typ, content = TaskCreated, "New task created: "+ev.TaskTitle
	case event.TaskAssigned:
		typ, content = TaskAssigned, "You have been assigned to task: "+ev.TaskTitle
	case event.TaskUpdated:
		typ, content = TaskUpdated, "Task has been updated: "+ev.TaskTitle
	case event.TaskCompleted:
		typ, content = TaskCompleted, "Task completed: "+ev.TaskTitle
	case event.TaskDeleted:
		typ, content = TaskDeleted, "Task deleted: "+ev.TaskTitle
	case event.TaskOverdue:
		typ, content = TaskOverdue, "Task overdue: "+ev.TaskTitle
	case event.TaskDeadlineApproaching:
		typ, content = TaskDueSoon, "Task due soon: "+ev.TaskTitle
	default:
		c.logger.Plain().WithEventType(string(ev.EventType)).Warn("unknown task event type, skipping")
		return nil
	}

	ctx = bus.ContextFromEnvelope(ctx, ev.TraceHeaders)
	return c.fanOut(ctx, string(ev.EventType), ev.Recipients, ev.ActorID, CreateInput{
		Type:       typ,
		Content:    content,
		EntityID:   ev.TaskID,
		EntityType: "TASK",
	})
}

// HandleProjectEvent processes one raw project-events message.
func (c *Consumer) HandleProjectEvent(ctx context.Context, body []byte) error {
	var ev event.ProjectEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Plain().WithError(err).Error("bad project event payload, dropping")
		return nil
	}

	var typ Type
	var content string
	switch ev.EventType {
	case event.ProjectCreated:
		typ, content = ProjectCreated, "New project created: "+ev.ProjectName
	case event.ProjectMemberAdded:
		typ, content = ProjectMemberAdded, "You have been added to project: "+ev.ProjectName
	case event.ProjectUpdated:
		typ, content = ProjectUpdated, "Project has been updated: "+ev.ProjectName
	case event.ProjectCompleted:
		typ, content = ProjectCompleted, "Project completed: "+ev.ProjectName
	case event.ProjectDeleted:
		typ, content = ProjectDeleted, "Project deleted: "+ev.ProjectName
	case event.ProjectOverdue:
		typ, content = ProjectOverdue, "Project overdue: "+ev.ProjectName
	case event.ProjectDeadlineApproaching:
		typ, content = ProjectDueSoon, "Project due soon: "+ev.ProjectName
	default:
		c.logger.Plain().WithEventType(string(ev.EventType)).Warn("unknown project event type, skipping")
		return nil
	}

	ctx = bus.ContextFromEnvelope(ctx, ev.TraceHeaders)
	return c.fanOut(ctx, string(ev.EventType), ev.Recipients, ev.ActorID, CreateInput{
		Type:       typ,
		Content:    content,
		EntityID:   ev.ProjectID,
		EntityType: "PROJECT",
	})
}

// HandleCommentEvent processes one raw comment-events message.
func (c *Consumer) HandleCommentEvent(ctx context.Context, body []byte) error {
	var ev event.CommentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Plain().WithError(err).Error("bad comment event payload, dropping")
		return nil
	}

	snippet := event.Snippet(ev.Content, snippetRunes)
	var typ Type
	var content string
	switch ev.EventType {
	case event.CommentCreated:
		typ = CommentAdded
		content = "New comment on your " + strings.ToLower(ev.EntityType) + ": " + snippet
	case event.CommentUpdated:
		typ = CommentUpdated
		content = "Comment updated on your " + strings.ToLower(ev.EntityType) + ": " + snippet
	case event.CommentReplied:
		typ = CommentReplied
		content = "Someone replied to your comment: " + snippet
	case event.CommentDeleted:
		// Nothing to announce; the comment is simply gone.
		return nil
	default:
		c.logger.Plain().WithEventType(string(ev.EventType)).Warn("unknown comment event type, skipping")
		return nil
	}

	ctx = bus.ContextFromEnvelope(ctx, ev.TraceHeaders)
	return c.fanOut(ctx, string(ev.EventType), ev.Recipients, ev.AuthorID, CreateInput{
		Type:       typ,
		Content:    content,
		EntityID:   ev.EntityID,
		EntityType: ev.EntityType,
	})
}

func (c *Consumer) fanOut(ctx context.Context, eventType string, recipients []string, actorID string, in CreateInput) error {
	ctx, span := tracing.StartSpan(ctx, "notifyd.fan_out",
		attribute.String("event_type", eventType),
		attribute.Int("recipients", len(recipients)),
	)
	defer span.End()

	for _, recipient := range recipients {
		if recipient == "" || recipient == actorID {
			continue
		}
		in.RecipientID = recipient
		if _, err := c.svc.Create(ctx, in); err != nil {
			// One failed persist requeues the whole message; Create is
			// idempotent enough that re-fanning out is only duplicate noise.
			tracing.SetSpanError(ctx, err)
			return err
		}
	}
	return nil
}
