// Package event defines the envelopes and topic names shared by every
// producer and consumer in the pipeline. The contract is deliberately small:
// one envelope shape per domain, a closed set of string-tagged event types per
// domain, and JSON on the wire. Consumers must treat an unknown type as a
// warn-and-skip, never an error.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Topic names. One topic per domain; messages about the same entity share a
// subject id so a consumer can reason about a single entity's stream.
const (
	TopicTaskEvents    = "task-events"
	TopicProjectEvents = "project-events"
	TopicCommentEvents = "comment-events"
	TopicUserEvents    = "user-events"
)

// TaskEventType tags a task envelope.
type TaskEventType string

const (
	TaskCreated             TaskEventType = "TASK_CREATED"
	TaskAssigned            TaskEventType = "TASK_ASSIGNED"
	TaskUpdated             TaskEventType = "TASK_UPDATED"
	TaskCompleted           TaskEventType = "TASK_COMPLETED"
	TaskDeleted             TaskEventType = "TASK_DELETED"
	TaskOverdue             TaskEventType = "TASK_OVERDUE"
	TaskDeadlineApproaching TaskEventType = "TASK_DEADLINE_APPROACHING"
)

// ProjectEventType tags a project envelope.
type ProjectEventType string

const (
	ProjectCreated             ProjectEventType = "PROJECT_CREATED"
	ProjectMemberAdded         ProjectEventType = "PROJECT_MEMBER_ADDED"
	ProjectUpdated             ProjectEventType = "PROJECT_UPDATED"
	ProjectCompleted           ProjectEventType = "PROJECT_COMPLETED"
	ProjectDeleted             ProjectEventType = "PROJECT_DELETED"
	ProjectOverdue             ProjectEventType = "PROJECT_OVERDUE"
	ProjectDeadlineApproaching ProjectEventType = "PROJECT_DEADLINE_APPROACHING"
)

// CommentEventType tags a comment envelope.
type CommentEventType string

const (
	CommentCreated CommentEventType = "COMMENT_CREATED"
	CommentUpdated CommentEventType = "COMMENT_UPDATED"
	CommentDeleted CommentEventType = "COMMENT_DELETED"
	CommentReplied CommentEventType = "COMMENT_REPLIED"
)

// UserEventType tags a user envelope. Only deletion matters to this pipeline.
type UserEventType string

const UserDeleted UserEventType = "USER_DELETED"

// UpdateKind discriminates project update fan-out: administrative changes go
// to admins only, general churn goes to every member.
type UpdateKind string

const (
	UpdateAdministrative UpdateKind = "ADMINISTRATIVE"
	UpdateGeneral        UpdateKind = "GENERAL"
)

// TaskEvent is the envelope published to task-events. Descriptive fields are
// a snapshot of the task at publish time; consumers never re-fetch.
type TaskEvent struct {
	EventID      string            `json:"event_id"`
	EventType    TaskEventType     `json:"event_type"`
	TaskID       string            `json:"task_id"`
	TaskTitle    string            `json:"task_title"`
	Description  string            `json:"description,omitempty"`
	ProjectID    string            `json:"project_id"`
	Status       string            `json:"status"`
	Priority     string            `json:"priority,omitempty"`
	DueDate      *time.Time        `json:"due_date,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"` // empty for sweeper events
	Recipients   []string          `json:"recipients"`
	Timestamp    time.Time         `json:"timestamp"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// ProjectEvent is the envelope published to project-events.
type ProjectEvent struct {
	EventID      string            `json:"event_id"`
	EventType    ProjectEventType  `json:"event_type"`
	ProjectID    string            `json:"project_id"`
	ProjectName  string            `json:"project_name"`
	Description  string            `json:"description,omitempty"`
	Status       string            `json:"status"`
	EndDate      *time.Time        `json:"end_date,omitempty"`
	UpdateType   UpdateKind        `json:"update_type,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"`
	Recipients   []string          `json:"recipients"`
	Timestamp    time.Time         `json:"timestamp"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// CommentEvent is the envelope published to comment-events. For replies,
// ParentID and ParentAuthorID are set and the fan-out targets the parent
// author instead of the entity owners.
type CommentEvent struct {
	EventID        string            `json:"event_id"`
	EventType      CommentEventType  `json:"event_type"`
	CommentID      string            `json:"comment_id"`
	Content        string            `json:"content"`
	AuthorID       string            `json:"author_id"`
	EntityID       string            `json:"entity_id"`
	EntityType     string            `json:"entity_type"` // TASK or PROJECT
	ParentID       string            `json:"parent_id,omitempty"`
	ParentAuthorID string            `json:"parent_author_id,omitempty"`
	Recipients     []string          `json:"recipients"`
	Timestamp      time.Time         `json:"timestamp"`
	TraceHeaders   map[string]string `json:"trace_headers,omitempty"`
}

// UserEvent is the envelope published to user-events.
type UserEvent struct {
	EventID      string            `json:"event_id"`
	EventType    UserEventType     `json:"event_type"`
	UserID       string            `json:"user_id"`
	Timestamp    time.Time         `json:"timestamp"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// NewID returns a fresh envelope id.
func NewID() string { return uuid.New().String() }

// ExcludeActor returns recipients with the acting user removed and duplicates
// collapsed. A user never gets notified about their own action.
func ExcludeActor(recipients []string, actorID string) []string {
	out := make([]string, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		if r == "" || r == actorID {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Snippet bounds free-text content carried in an envelope. Comment bodies can
// be arbitrarily large; notifications only need the lead-in.
func Snippet(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
