// Package project owns the project entity, its membership queries, the
// producer for project events, and the consumer that keeps task counters and
// project status eventually consistent with the task service.
package project

import (
	"errors"
	"time"
)

// Status is a project's derived lifecycle state. It is never set directly:
// every transition goes through DeriveStatus over the task counters, which is
// what makes COMPLETED -> IN_PROGRESS a legal back-transition when a
// completed task is deleted.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Role is a member's role within a project.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// ErrNotFound is returned when a project id does not exist.
var ErrNotFound = errors.New("project not found")

// Project is the local entity with the counter fields the event pipeline
// maintains.
type Project struct {
	ID             string
	Name           string
	Description    string
	Status         Status
	EndDate        *time.Time
	TotalTasks     int
	CompletedTasks int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Membership binds a user to a project with a role.
type Membership struct {
	UserID string
	Role   Role
}

// Counts is the pair of counters project status derives from.
type Counts struct {
	Total     int
	Completed int
}

// DeriveStatus is the single source of truth for project status. Pure
// function of the counters so replays and out-of-order application converge.
func DeriveStatus(c Counts) Status {
	switch {
	case c.Total == 0:
		return StatusNotStarted
	case c.Completed == c.Total:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// AdminIDs filters memberships down to admin user ids.
func AdminIDs(members []Membership) []string {
	var ids []string
	for _, m := range members {
		if m.Role == RoleAdmin {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// MemberIDs returns every member user id.
func MemberIDs(members []Membership) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}
