// Package notification implements the notification service: the fan-out
// consumers on every event topic, the notification store and query surface,
// and the live SSE push channel per connected user.
package notification

import (
	"errors"
	"time"
)

// Type tags a notification for filtering.
type Type string

const (
	TaskCreated        Type = "TASK_CREATED"
	TaskAssigned       Type = "TASK_ASSIGNED"
	TaskUpdated        Type = "TASK_UPDATED"
	TaskCompleted      Type = "TASK_COMPLETED"
	TaskDeleted        Type = "TASK_DELETED"
	TaskOverdue        Type = "TASK_OVERDUE"
	TaskDueSoon        Type = "TASK_DUE_SOON"
	ProjectCreated     Type = "PROJECT_CREATED"
	ProjectMemberAdded Type = "PROJECT_MEMBER_ADDED"
	ProjectUpdated     Type = "PROJECT_UPDATED"
	ProjectCompleted   Type = "PROJECT_COMPLETED"
	ProjectDeleted     Type = "PROJECT_DELETED"
	ProjectOverdue     Type = "PROJECT_OVERDUE"
	ProjectDueSoon     Type = "PROJECT_DUE_SOON"
	CommentAdded       Type = "COMMENT_ADDED"
	CommentUpdated     Type = "COMMENT_UPDATED"
	CommentReplied     Type = "COMMENT_REPLIED"
)

// ErrNotFound marks a missing notification.
var ErrNotFound = errors.New("notification not found")

// Notification is one delivered message for one recipient.
type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipient_id"`
	Type        Type       `json:"type"`
	Content     string     `json:"content"`
	EntityID    string     `json:"entity_id"`
	EntityType  string     `json:"entity_type"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// PagedNotifications is the paged list response shape.
type PagedNotifications struct {
	Notifications []*Notification `json:"notifications"`
	PageNumber    int             `json:"page_number"`
	PageSize      int             `json:"page_size"`
	TotalElements int64           `json:"total_elements"`
	TotalPages    int             `json:"total_pages"`
	Last          bool            `json:"last"`
}
