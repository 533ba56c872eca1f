// Package comment implements the comment service: threaded comments on tasks
// and projects, the comment event producer, and the cascade consumer that keeps
// comments consistent when the entity or the author goes away.
package comment

import (
	"errors"
	"time"
)

// EntityType names what a comment is attached to.
type EntityType string

const (
	EntityTask    EntityType = "TASK"
	EntityProject EntityType = "PROJECT"
)

// Anonymized author values. When a user is deleted their comments are first
// anonymized, then removed; the sentinel survives in any envelope snapshot a
// consumer already holds.
const (
	DeletedAuthorID   = "DELETED_USER"
	DeletedPlaceholder = "[deleted]"
)

// ErrNotFound marks a missing comment.
var ErrNotFound = errors.New("comment not found")

// Comment is one comment or reply. ParentID is empty for top-level comments.
type Comment struct {
	ID         string
	Content    string
	AuthorID   string
	EntityID   string
	EntityType EntityType
	ParentID   string
	Edited     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsReply reports whether this comment answers another one.
func (c *Comment) IsReply() bool { return c.ParentID != "" }
