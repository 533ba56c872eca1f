package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskman/taskman/internal/db"
)

// Store is the persistence boundary for projects, memberships and the
// per-task ledger the counter consumer derives from.
type Store interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id string) error

	Members(ctx context.Context, projectID string) ([]Membership, error)
	AddMember(ctx context.Context, projectID, userID string, role Role) error

	// RecordTaskEvent upserts the ledger row for one task, keyed by task id.
	// Rows carry the timestamp of the newest applied event; stale events (an
	// older timestamp for the same task) are ignored, and deletion is sticky.
	// Returns false when the event was stale and nothing changed.
	RecordTaskEvent(ctx context.Context, projectID, taskID string, completed, deleted bool, at time.Time) (bool, error)
	// DeriveCounts recomputes the counters from the ledger.
	DeriveCounts(ctx context.Context, projectID string) (Counts, error)
	// SetCounts persists derived counters and status on the project row.
	SetCounts(ctx context.Context, projectID string, c Counts, status Status) error

	// ListOpenWithEndDate returns non-completed projects with an end date,
	// the sweeper's input set.
	ListOpenWithEndDate(ctx context.Context) ([]*Project, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'NOT_STARTED',
	end_date        TIMESTAMPTZ,
	total_tasks     INT NOT NULL DEFAULT 0,
	completed_tasks INT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS project_memberships (
	project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT 'MEMBER',
	PRIMARY KEY (project_id, user_id)
);
CREATE TABLE IF NOT EXISTS project_tasks (
	task_id       TEXT PRIMARY KEY,
	project_id    BIGINT NOT NULL,
	completed     BOOLEAN NOT NULL DEFAULT FALSE,
	deleted       BOOLEAN NOT NULL DEFAULT FALSE,
	last_event_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_project_tasks_project ON project_tasks(project_id);
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

func (s *PGStore) Create(ctx context.Context, p *Project) error {
	if p.Status == "" {
		p.Status = StatusNotStarted
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects(name, description, status, end_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at, updated_at`,
		p.Name, p.Description, p.Status, p.EndDate,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, name, description, status, end_date, total_tasks, completed_tasks, created_at, updated_at
		FROM projects WHERE id = $1::bigint`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.EndDate, &p.TotalTasks, &p.CompletedTasks, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select project: %w", err)
	}
	return p, nil
}

func (s *PGStore) Update(ctx context.Context, p *Project) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET name=$2, description=$3, status=$4, end_date=$5, updated_at=now()
		WHERE id = $1::bigint`,
		p.ID, p.Name, p.Description, p.Status, p.EndDate,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1::bigint`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Members(ctx context.Context, projectID string) ([]Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, role FROM project_memberships
		WHERE project_id = $1::bigint ORDER BY user_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGStore) AddMember(ctx context.Context, projectID, userID string, role Role) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO project_memberships(project_id, user_id, role)
		VALUES ($1::bigint, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		projectID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *PGStore) RecordTaskEvent(ctx context.Context, projectID, taskID string, completed, deleted bool, at time.Time) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO project_tasks(task_id, project_id, completed, deleted, last_event_at)
		VALUES ($1, $2::bigint, $3, $4, $5)
		ON CONFLICT (task_id) DO UPDATE
		SET completed     = EXCLUDED.completed,
		    deleted       = project_tasks.deleted OR EXCLUDED.deleted,
		    last_event_at = EXCLUDED.last_event_at
		WHERE project_tasks.last_event_at <= EXCLUDED.last_event_at`,
		taskID, projectID, completed, deleted, at,
	)
	if err != nil {
		return false, fmt.Errorf("record task event: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *PGStore) DeriveCounts(ctx context.Context, projectID string) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE NOT deleted),
		       COUNT(*) FILTER (WHERE completed AND NOT deleted)
		FROM project_tasks WHERE project_id = $1::bigint`, projectID,
	).Scan(&c.Total, &c.Completed)
	if err != nil {
		return Counts{}, fmt.Errorf("derive counts: %w", err)
	}
	return c, nil
}

func (s *PGStore) SetCounts(ctx context.Context, projectID string, c Counts, status Status) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET total_tasks=$2, completed_tasks=$3, status=$4, updated_at=now()
		WHERE id = $1::bigint`,
		projectID, c.Total, c.Completed, status,
	)
	if err != nil {
		return fmt.Errorf("set counts: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListOpenWithEndDate(ctx context.Context) ([]*Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, name, description, status, end_date, total_tasks, completed_tasks, created_at, updated_at
		FROM projects
		WHERE status <> 'COMPLETED' AND end_date IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan open projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.EndDate, &p.TotalTasks, &p.CompletedTasks, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)
