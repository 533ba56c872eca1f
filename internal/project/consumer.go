package project

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taskman/taskman/internal/bus"
	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/tracing"
)

// Channel is this service's consumer group name on the task-events topic.
const Channel = "project-service"

// TaskConsumer reacts to task events by updating the owning project's
// counters and re-deriving its status. Status changes fan back out as a
// general PROJECT_UPDATED so members hear about project progress.
type TaskConsumer struct {
	store    Store
	applier  Applier
	producer *Producer
	logger   *logging.Logger
}

// NewTaskConsumer builds the counter consumer.
func NewTaskConsumer(store Store, applier Applier, producer *Producer) *TaskConsumer {
	return &TaskConsumer{
		store:    store,
		applier:  applier,
		producer: producer,
		logger:   logging.New(Channel),
	}
}

// Handle processes one raw task-events message. Malformed payloads and
// unknown event types are logged and dropped; only storage failures requeue.
func (c *TaskConsumer) Handle(ctx context.Context, body []byte) error {
	var ev event.TaskEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Plain().WithError(err).Error("bad task event payload, dropping")
		return nil
	}

	switch ev.EventType {
	case event.TaskCreated, event.TaskCompleted, event.TaskDeleted:
	default:
		// Not all task events move counters; assignment and deadline noise
		// is deliberately ignored here.
		c.logger.Plain().WithEventType(string(ev.EventType)).Debug("task event type not handled by counter consumer")
		return nil
	}

	ctx = bus.ContextFromEnvelope(ctx, ev.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "projectd.consume",
		attribute.String("event_type", string(ev.EventType)),
		attribute.String("task_id", ev.TaskID),
		attribute.String("project_id", ev.ProjectID),
	)
	defer span.End()

	counts, applied, err := c.applier.Apply(ctx, ev)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}
	if !applied {
		c.logger.WithContext(ctx).WithEventType(string(ev.EventType)).WithSubject(ev.TaskID).Info("stale task event ignored")
		return nil
	}

	proj, err := c.store.Get(ctx, ev.ProjectID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}

	oldStatus := proj.Status
	newStatus := DeriveStatus(counts)
	if err := c.store.SetCounts(ctx, ev.ProjectID, counts, newStatus); err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}

	c.logger.WithContext(ctx).
		WithEventType(string(ev.EventType)).
		WithSubject(ev.ProjectID).
		WithFields(map[string]any{
			"total":     counts.Total,
			"completed": counts.Completed,
			"status":    string(newStatus),
		}).
		Info("project counters updated")

	if newStatus != oldStatus {
		proj.Status = newStatus
		proj.TotalTasks = counts.Total
		proj.CompletedTasks = counts.Completed
		if err := c.producer.Updated(ctx, proj, event.UpdateGeneral, ""); err != nil {
			// The counter update stands; the fan-out leg failing is logged,
			// not requeued, or the counters would be re-applied.
			c.logger.WithContext(ctx).WithSubject(proj.ID).WithError(err).Error("status change event not published")
		}
	}
	return nil
}
