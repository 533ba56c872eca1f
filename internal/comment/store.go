package comment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskman/taskman/internal/db"
)

// Store is the persistence boundary for comments.
type Store interface {
	Create(ctx context.Context, c *Comment) error
	Get(ctx context.Context, id string) (*Comment, error)
	Update(ctx context.Context, c *Comment) error
	Delete(ctx context.Context, id string) error

	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]*Comment, error)
	ListByAuthor(ctx context.Context, authorID string) ([]*Comment, error)

	// DeleteByEntity cascades when a task or project is removed.
	DeleteByEntity(ctx context.Context, entityType EntityType, entityID string) (int64, error)
	// AnonymizeByAuthor rewrites author and content for every comment the user
	// wrote. Runs before DeleteByAuthor so a crash between the two steps never
	// leaves identifiable content behind.
	AnonymizeByAuthor(ctx context.Context, authorID string) (int64, error)
	DeleteByAuthor(ctx context.Context, authorID string) (int64, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS comments (
	id          BIGSERIAL PRIMARY KEY,
	content     TEXT NOT NULL,
	author_id   TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	parent_id   BIGINT REFERENCES comments(id) ON DELETE CASCADE,
	edited      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_comments_entity ON comments(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_comments_author ON comments(author_id);
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

func (s *PGStore) Create(ctx context.Context, c *Comment) error {
	var parent any
	if c.ParentID != "" {
		parent = c.ParentID
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO comments(content, author_id, entity_id, entity_type, parent_id)
		VALUES ($1, $2, $3, $4, $5::bigint)
		RETURNING id::text, created_at, updated_at`,
		c.Content, c.AuthorID, c.EntityID, c.EntityType, parent,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Comment, error) {
	c := &Comment{}
	var parent *string
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, content, author_id, entity_id, entity_type, parent_id::text, edited, created_at, updated_at
		FROM comments WHERE id = $1::bigint`, id,
	).Scan(&c.ID, &c.Content, &c.AuthorID, &c.EntityID, &c.EntityType, &parent, &c.Edited, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select comment: %w", err)
	}
	if parent != nil {
		c.ParentID = *parent
	}
	return c, nil
}

func (s *PGStore) Update(ctx context.Context, c *Comment) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE comments SET content=$2, edited=TRUE, updated_at=now()
		WHERE id = $1::bigint`,
		c.ID, c.Content,
	)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	c.Edited = true
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1::bigint`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]*Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, content, author_id, entity_id, entity_type, parent_id::text, edited, created_at, updated_at
		FROM comments WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("select entity comments: %w", err)
	}
	return scanComments(rows)
}

func (s *PGStore) ListByAuthor(ctx context.Context, authorID string) ([]*Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, content, author_id, entity_id, entity_type, parent_id::text, edited, created_at, updated_at
		FROM comments WHERE author_id = $1
		ORDER BY created_at, id`, authorID)
	if err != nil {
		return nil, fmt.Errorf("select author comments: %w", err)
	}
	return scanComments(rows)
}

func (s *PGStore) DeleteByEntity(ctx context.Context, entityType EntityType, entityID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM comments WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("cascade delete comments: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *PGStore) AnonymizeByAuthor(ctx context.Context, authorID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE comments SET author_id=$2, content=$3, updated_at=now()
		WHERE author_id = $1`,
		authorID, DeletedAuthorID, DeletedPlaceholder)
	if err != nil {
		return 0, fmt.Errorf("anonymize comments: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *PGStore) DeleteByAuthor(ctx context.Context, authorID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE author_id = $1`, authorID)
	if err != nil {
		return 0, fmt.Errorf("delete author comments: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanComments(rows pgx.Rows) ([]*Comment, error) {
	defer rows.Close()
	var out []*Comment
	for rows.Next() {
		c := &Comment{}
		var parent *string
		if err := rows.Scan(&c.ID, &c.Content, &c.AuthorID, &c.EntityID, &c.EntityType, &parent, &c.Edited, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if parent != nil {
			c.ParentID = *parent
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)
