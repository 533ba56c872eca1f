package project

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

// Producer publishes project envelopes. Membership is local state, so
// recipient resolution here is a store read rather than an HTTP call; it can
// still fail, and a failed read aborts the publish the same way.
type Producer struct {
	pub    bus.Publisher
	store  Store
	logger *logging.Logger
}

// NewProducer wires a project event producer.
func NewProducer(pub bus.Publisher, store Store) *Producer {
	return &Producer{pub: pub, store: store, logger: logging.New("projectd-producer")}
}

// Created publishes PROJECT_CREATED to all members.
func (p *Producer) Created(ctx context.Context, proj *Project, actorID string) error {
	members, err := p.members(ctx, proj.ID)
	if err != nil {
		return err
	}
	return p.send(ctx, event.ProjectCreated, proj, "", MemberIDs(members), actorID)
}

// MemberAdded publishes PROJECT_MEMBER_ADDED addressed to the new member.
func (p *Producer) MemberAdded(ctx context.Context, proj *Project, newMemberID, actorID string) error {
	return p.send(ctx, event.ProjectMemberAdded, proj, "", []string{newMemberID}, actorID)
}

// Updated publishes PROJECT_UPDATED. The update kind picks the audience:
// administrative changes go to admins, general churn to every member.
func (p *Producer) Updated(ctx context.Context, proj *Project, kind event.UpdateKind, actorID string) error {
	members, err := p.members(ctx, proj.ID)
	if err != nil {
		return err
	}
	recipients := MemberIDs(members)
	if kind == event.UpdateAdministrative {
		recipients = AdminIDs(members)
	}
	return p.send(ctx, event.ProjectUpdated, proj, kind, recipients, actorID)
}

// Completed publishes PROJECT_COMPLETED to all members.
func (p *Producer) Completed(ctx context.Context, proj *Project, actorID string) error {
	members, err := p.members(ctx, proj.ID)
	if err != nil {
		return err
	}
	return p.send(ctx, event.ProjectCompleted, proj, "", MemberIDs(members), actorID)
}

// Deleted publishes PROJECT_DELETED to all members. The comment service
// cascades on it.
func (p *Producer) Deleted(ctx context.Context, proj *Project, actorID string) error {
	members, err := p.members(ctx, proj.ID)
	if err != nil {
		return err
	}
	return p.send(ctx, event.ProjectDeleted, proj, "", MemberIDs(members), actorID)
}

// Overdue publishes PROJECT_OVERDUE to the project admins. Sweep events carry
// no actor.
func (p *Producer) Overdue(ctx context.Context, proj *Project) error {
	members, err := p.members(ctx, proj.ID)
	if err != nil {
		return err
	}
	return p.send(ctx, event.ProjectOverdue, proj, "", AdminIDs(members), "")
}

// DeadlineApproaching publishes PROJECT_DEADLINE_APPROACHING to the admins.
func (p *Producer) DeadlineApproaching(ctx context.Context, proj *Project) error {
	members, err := p.members(ctx, proj.ID)
	if err != nil {
		return err
	}
	return p.send(ctx, event.ProjectDeadlineApproaching, proj, "", AdminIDs(members), "")
}

func (p *Producer) members(ctx context.Context, projectID string) ([]Membership, error) {
	members, err := p.store.Members(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve members for project %s: %w", projectID, err)
	}
	return members, nil
}

func (p *Producer) send(ctx context.Context, typ event.ProjectEventType, proj *Project, kind event.UpdateKind, recipients []string, actorID string) error {
	ctx, span := tracing.StartSpan(ctx, "projectd.publish",
		attribute.String("event_type", string(typ)),
		attribute.String("project_id", proj.ID),
		attribute.Int("recipients", len(recipients)),
	)
	defer span.End()

	ev := event.ProjectEvent{
		EventID:      event.NewID(),
		EventType:    typ,
		ProjectID:    proj.ID,
		ProjectName:  proj.Name,
		Description:  proj.Description,
		Status:       string(proj.Status),
		EndDate:      proj.EndDate,
		UpdateType:   kind,
		ActorID:      actorID,
		Recipients:   event.ExcludeActor(recipients, actorID),
		Timestamp:    time.Now().UTC(),
		TraceHeaders: tracing.InjectToHeaders(ctx),
	}
	if err := bus.PublishJSON(p.pub, event.TopicProjectEvents, ev); err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}
	p.logger.WithContext(ctx).
		WithEventType(string(typ)).
		WithSubject(proj.ID).
		WithTopic(event.TopicProjectEvents).
		WithField("recipients", len(ev.Recipients)).
		Info("project event published")
	return nil
}
