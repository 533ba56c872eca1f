package comment

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taskman/taskman/internal/bus"
	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/tracing"
)

// Channel is this service's consumer group name on every topic it reads.
const Channel = "comment-service"

// CascadeConsumer removes or anonymizes comments when the thing they hang off
// of disappears. It reads three topics: task deletions and project deletions
// cascade-delete the entity's thread, user deletions anonymize first and then
// remove the author's comments.
type CascadeConsumer struct {
	store  Store
	logger *logging.Logger
}

// NewCascadeConsumer builds the cascade consumer.
func NewCascadeConsumer(store Store) *CascadeConsumer {
	return &CascadeConsumer{store: store, logger: logging.New(Channel)}
}

// HandleTaskEvent processes one raw task-events message.
func (c *CascadeConsumer) HandleTaskEvent(ctx context.Context, body []byte) error {
	var ev event.TaskEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Plain().WithError(err).Error("bad task event payload, dropping")
		return nil
	}
	if ev.EventType != event.TaskDeleted {
		return nil
	}
	return c.cascade(bus.ContextFromEnvelope(ctx, ev.TraceHeaders), EntityTask, ev.TaskID)
}

// HandleProjectEvent processes one raw project-events message.
func (c *CascadeConsumer) HandleProjectEvent(ctx context.Context, body []byte) error {
	var ev event.ProjectEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Plain().WithError(err).Error("bad project event payload, dropping")
		return nil
	}
	if ev.EventType != event.ProjectDeleted {
		return nil
	}
	return c.cascade(bus.ContextFromEnvelope(ctx, ev.TraceHeaders), EntityProject, ev.ProjectID)
}

// HandleUserEvent processes one raw user-events message.
func (c *CascadeConsumer) HandleUserEvent(ctx context.Context, body []byte) error {
	var ev event.UserEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Plain().WithError(err).Error("bad user event payload, dropping")
		return nil
	}
	if ev.EventType != event.UserDeleted {
		c.logger.Plain().WithEventType(string(ev.EventType)).Warn("unknown user event type, skipping")
		return nil
	}

	ctx = bus.ContextFromEnvelope(ctx, ev.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "commentd.user_deleted",
		attribute.String("user_id", ev.UserID),
	)
	defer span.End()

	// Anonymize first so a crash between the two steps never leaves
	// identifiable content behind. Both steps are idempotent under redelivery.
	anonymized, err := c.store.AnonymizeByAuthor(ctx, ev.UserID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}
	deleted, err := c.store.DeleteByAuthor(ctx, DeletedAuthorID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}
	c.logger.WithContext(ctx).
		WithEventType(string(ev.EventType)).
		WithSubject(ev.UserID).
		WithFields(map[string]any{"anonymized": anonymized, "deleted": deleted}).
		Info("user comments removed")
	return nil
}

func (c *CascadeConsumer) cascade(ctx context.Context, entityType EntityType, entityID string) error {
	ctx, span := tracing.StartSpan(ctx, "commentd.cascade",
		attribute.String("entity_type", string(entityType)),
		attribute.String("entity_id", entityID),
	)
	defer span.End()

	n, err := c.store.DeleteByEntity(ctx, entityType, entityID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}
	c.logger.WithContext(ctx).
		WithSubject(entityID).
		WithField("deleted", n).
		Info("entity comments cascade-deleted")
	return nil
}
