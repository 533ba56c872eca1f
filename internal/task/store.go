package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskman/taskman/internal/db"
)

// Store is the persistence boundary for tasks. The event pipeline treats it
// as plain CRUD plus the sweep scan.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, taskID, userID string) error
	// ListOpenWithDueDate returns non-terminal tasks that have a due date,
	// which is exactly the sweeper's input set.
	ListOpenWithDueDate(ctx context.Context) ([]*Task, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          BIGSERIAL PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	project_id  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'TODO',
	priority    TEXT NOT NULL DEFAULT 'MEDIUM',
	due_date    TIMESTAMPTZ,
	created_by  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS task_assignments (
	task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	PRIMARY KEY (task_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date) WHERE status <> 'DONE';
`

// PGStore is the pgx-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore bootstraps the schema and returns the store.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	if err := db.Bootstrap(ctx, pool, schema); err != nil {
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Create(ctx context.Context, t *Task) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tasks(title, description, project_id, status, priority, due_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, created_at, updated_at`,
		t.Title, t.Description, t.ProjectID, t.Status, t.Priority, t.DueDate, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	for _, userID := range t.Assignees {
		if err := s.Assign(ctx, t.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Task, error) {
	t := &Task{}
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, title, description, project_id, status, priority, due_date, created_by, created_at, updated_at
		FROM tasks WHERE id = $1::bigint`, id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.ProjectID, &t.Status, &t.Priority, &t.DueDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	if t.Assignees, err = s.assignees(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PGStore) Update(ctx context.Context, t *Task) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET title=$2, description=$3, status=$4, priority=$5, due_date=$6, updated_at=now()
		WHERE id = $1::bigint`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.DueDate,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1::bigint`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Assign(ctx context.Context, taskID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_assignments(task_id, user_id)
		VALUES ($1::bigint, $2) ON CONFLICT DO NOTHING`,
		taskID, userID,
	)
	if err != nil {
		return fmt.Errorf("assign task: %w", err)
	}
	return nil
}

func (s *PGStore) ListOpenWithDueDate(ctx context.Context) ([]*Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, title, description, project_id, status, priority, due_date, created_by, created_at, updated_at
		FROM tasks
		WHERE status <> 'DONE' AND due_date IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan open tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.ProjectID, &t.Status, &t.Priority, &t.DueDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range out {
		var err error
		if t.Assignees, err = s.assignees(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGStore) assignees(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM task_assignments WHERE task_id = $1::bigint ORDER BY user_id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("select assignees: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ Store = (*PGStore)(nil)
