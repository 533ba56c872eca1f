// Package task owns the task entity, its event producer and its deadline
// sweeper. Only the fields the event pipeline cares about are modeled.
package task

import (
	"errors"
	"time"
)

// Status is a task's lifecycle state. DONE is terminal: the sweeper never
// considers DONE tasks and completion events are emitted exactly once on the
// transition into it.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("task not found")

// Task is the local entity. Assignees come from a join table but are always
// loaded with the task; the producer needs them for recipient resolution.
type Task struct {
	ID          string
	Title       string
	Description string
	ProjectID   string
	Status      Status
	Priority    string
	DueDate     *time.Time
	CreatedBy   string
	Assignees   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether the task is in a terminal state.
func (t *Task) Terminal() bool { return t.Status == StatusDone }
