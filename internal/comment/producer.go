package comment

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

// Envelopes carry a bounded lead-in of the comment body, not the whole thing.
const envelopeSnippetRunes = 200

// TaskRecipientResolver resolves who should hear about a task comment.
// Satisfied by client.TaskClient.
type TaskRecipientResolver interface {
	NotificationRecipients(ctx context.Context, taskID string) ([]string, error)
}

// ProjectRecipientResolver resolves a project's full membership. Satisfied by
// client.ProjectClient.
type ProjectRecipientResolver interface {
	Members(ctx context.Context, projectID string) ([]string, error)
}

// Producer publishes comment envelopes with pre-resolved recipients. A
// top-level comment fans out to the entity's owners; a reply goes to the
// parent comment's author only.
type Producer struct {
	pub      bus.Publisher
	tasks    TaskRecipientResolver
	projects ProjectRecipientResolver
	store    Store
	logger   *logging.Logger
}

// NewProducer wires a comment event producer.
func NewProducer(pub bus.Publisher, tasks TaskRecipientResolver, projects ProjectRecipientResolver, store Store) *Producer {
	return &Producer{
		pub:      pub,
		tasks:    tasks,
		projects: projects,
		store:    store,
		logger:   logging.New("commentd-producer"),
	}
}

// Created publishes COMMENT_CREATED for a top-level comment, or
// COMMENT_REPLIED when the comment answers another one.
func (p *Producer) Created(ctx context.Context, c *Comment) error {
	if c.IsReply() {
		return p.replied(ctx, c)
	}
	recipients, err := p.entityRecipients(ctx, c)
	if err != nil {
		return err
	}
	return p.send(ctx, event.CommentCreated, c, "", event.ExcludeActor(recipients, c.AuthorID))
}

// Updated publishes COMMENT_UPDATED to the entity owners.
func (p *Producer) Updated(ctx context.Context, c *Comment) error {
	recipients, err := p.entityRecipients(ctx, c)
	if err != nil {
		return err
	}
	return p.send(ctx, event.CommentUpdated, c, "", event.ExcludeActor(recipients, c.AuthorID))
}

// Deleted publishes COMMENT_DELETED. No fan-out is needed downstream, but the
// envelope lets other services clean up notification state.
func (p *Producer) Deleted(ctx context.Context, c *Comment, actorID string) error {
	return p.send(ctx, event.CommentDeleted, c, "", nil)
}

func (p *Producer) replied(ctx context.Context, c *Comment) error {
	parent, err := p.store.Get(ctx, c.ParentID)
	if err != nil {
		return fmt.Errorf("resolve parent comment %s: %w", c.ParentID, err)
	}
	recipients := event.ExcludeActor([]string{parent.AuthorID}, c.AuthorID)
	if parent.AuthorID == DeletedAuthorID {
		recipients = nil
	}
	return p.send(ctx, event.CommentReplied, c, parent.AuthorID, recipients)
}

func (p *Producer) entityRecipients(ctx context.Context, c *Comment) ([]string, error) {
	switch c.EntityType {
	case EntityTask:
		recipients, err := p.tasks.NotificationRecipients(ctx, c.EntityID)
		if err != nil {
			return nil, fmt.Errorf("resolve task recipients for %s: %w", c.EntityID, err)
		}
		return recipients, nil
	case EntityProject:
		recipients, err := p.projects.Members(ctx, c.EntityID)
		if err != nil {
			return nil, fmt.Errorf("resolve project members for %s: %w", c.EntityID, err)
		}
		return recipients, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", c.EntityType)
	}
}

func (p *Producer) send(ctx context.Context, typ event.CommentEventType, c *Comment, parentAuthorID string, recipients []string) error {
	ctx, span := tracing.StartSpan(ctx, "commentd.publish",
		attribute.String("event_type", string(typ)),
		attribute.String("comment_id", c.ID),
		attribute.Int("recipients", len(recipients)),
	)
	defer span.End()

	ev := event.CommentEvent{
		EventID:        event.NewID(),
		EventType:      typ,
		CommentID:      c.ID,
		Content:        event.Snippet(c.Content, envelopeSnippetRunes),
		AuthorID:       c.AuthorID,
		EntityID:       c.EntityID,
		EntityType:     string(c.EntityType),
		ParentID:       c.ParentID,
		ParentAuthorID: parentAuthorID,
		Recipients:     recipients,
		Timestamp:      time.Now().UTC(),
		TraceHeaders:   tracing.InjectToHeaders(ctx),
	}
	if err := bus.PublishJSON(p.pub, event.TopicCommentEvents, ev); err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}
	p.logger.WithContext(ctx).
		WithEventType(string(typ)).
		WithSubject(c.ID).
		WithTopic(event.TopicCommentEvents).
		WithField("recipients", len(recipients)).
		Info("comment event published")
	return nil
}
