package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskman/taskman/internal/db"
	"github.com/taskman/taskman/internal/httpx"
)

// Store is the persistence boundary for notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)

	ListByRecipient(ctx context.Context, recipientID string, page httpx.Page) (*PagedNotifications, error)
	ListAllByRecipient(ctx context.Context, recipientID string) ([]*Notification, error)
	ListUnread(ctx context.Context, recipientID string) ([]*Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	ListByType(ctx context.Context, recipientID string, typ Type, page httpx.Page) (*PagedNotifications, error)

	MarkRead(ctx context.Context, id string) (*Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)

	Delete(ctx context.Context, id string) error
	DeleteByRecipient(ctx context.Context, recipientID string) (int64, error)
	DeleteByEntity(ctx context.Context, entityType, entityID string) (int64, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id           BIGSERIAL PRIMARY KEY,
	recipient_id TEXT NOT NULL,
	type         TEXT NOT NULL,
	content      TEXT NOT NULL,
	entity_id    TEXT NOT NULL,
	entity_type  TEXT NOT NULL,
	is_read      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	read_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_entity ON notifications(entity_type, entity_id);
`

const columns = `id::text, recipient_id, type, content, entity_id, entity_type, is_read, created_at, read_at`

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

func (s *PGStore) Create(ctx context.Context, n *Notification) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications(recipient_id, type, content, entity_id, entity_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, created_at`,
		n.RecipientID, n.Type, n.Content, n.EntityID, n.EntityType,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Notification, error) {
	n := &Notification{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM notifications WHERE id = $1::bigint`, id,
	).Scan(&n.ID, &n.RecipientID, &n.Type, &n.Content, &n.EntityID, &n.EntityType, &n.IsRead, &n.CreatedAt, &n.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select notification: %w", err)
	}
	return n, nil
}

func (s *PGStore) ListByRecipient(ctx context.Context, recipientID string, page httpx.Page) (*PagedNotifications, error) {
	return s.paged(ctx, page,
		`FROM notifications WHERE recipient_id = $1`, recipientID)
}

func (s *PGStore) ListAllByRecipient(ctx context.Context, recipientID string) ([]*Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+columns+` FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC, id DESC`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	return scanNotifications(rows)
}

func (s *PGStore) ListUnread(ctx context.Context, recipientID string) ([]*Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+columns+` FROM notifications WHERE recipient_id = $1 AND NOT is_read ORDER BY created_at DESC, id DESC`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("select unread notifications: %w", err)
	}
	return scanNotifications(rows)
}

func (s *PGStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`,
		recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (s *PGStore) ListByType(ctx context.Context, recipientID string, typ Type, page httpx.Page) (*PagedNotifications, error) {
	return s.paged(ctx, page,
		`FROM notifications WHERE recipient_id = $1 AND type = $2`, recipientID, typ)
}

func (s *PGStore) MarkRead(ctx context.Context, id string) (*Notification, error) {
	n := &Notification{}
	err := s.pool.QueryRow(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1::bigint
		RETURNING `+columns, id,
	).Scan(&n.ID, &n.RecipientID, &n.Type, &n.Content, &n.EntityID, &n.EntityType, &n.IsRead, &n.CreatedAt, &n.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

func (s *PGStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = now()
		WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1::bigint`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteByRecipient(ctx context.Context, recipientID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE recipient_id = $1`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("delete recipient notifications: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *PGStore) DeleteByEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("delete entity notifications: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *PGStore) paged(ctx context.Context, page httpx.Page, where string, args ...any) (*PagedNotifications, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	limitArgs := append(append([]any{}, args...), page.Size, page.Offset())
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			columns, where, len(args)+1, len(args)+2),
		limitArgs...)
	if err != nil {
		return nil, fmt.Errorf("select notifications page: %w", err)
	}
	list, err := scanNotifications(rows)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(page.Size) - 1) / int64(page.Size))
	return &PagedNotifications{
		Notifications: list,
		PageNumber:    page.Number,
		PageSize:      page.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          page.Number+1 >= totalPages,
	}, nil
}

func scanNotifications(rows pgx.Rows) ([]*Notification, error) {
	defer rows.Close()
	out := []*Notification{}
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Content, &n.EntityID, &n.EntityType, &n.IsRead, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)
