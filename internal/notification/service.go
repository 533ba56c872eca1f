package notification

import (
	"context"

	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/metrics"
)

// Content is bounded so a pathological envelope cannot bloat the table or the
// SSE frames.
const maxContentRunes = 255

// CreateInput is the single write path into the notification store.
type CreateInput struct {
	Type        Type
	Content     string
	RecipientID string
	EntityID    string
	EntityType  string
}

// Service owns notification writes and the read/query surface. Create is the
// only way a notification comes into existence; every consumer goes through
// it so persistence and live push stay in one place.
type Service struct {
	store    Store
	registry *Registry
	logger   *logging.Logger
}

// NewService wires the notification service.
func NewService(store Store, registry *Registry) *Service {
	return &Service{
		store:    store,
		registry: registry,
		logger:   logging.New("notifyd"),
	}
}

// Create persists one notification and attempts a live push when the
// recipient holds an open stream. Push failure is not an error; persistence
// already succeeded and the client pulls on reconnect.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Notification, error) {
	n := &Notification{
		RecipientID: in.RecipientID,
		Type:        in.Type,
		Content:     event.Snippet(in.Content, maxContentRunes),
		EntityID:    in.EntityID,
		EntityType:  in.EntityType,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	metrics.RecordNotificationCreated(string(in.Type))

	if s.registry.Has(in.RecipientID) {
		s.registry.Push(in.RecipientID, n)
	}

	s.logger.WithContext(ctx).
		WithNotification(n.ID).
		WithRecipient(n.RecipientID).
		WithEventType(string(n.Type)).
		Info("notification created")
	return n, nil
}

// Get returns one notification by id.
func (s *Service) Get(ctx context.Context, id string) (*Notification, error) {
	return s.store.Get(ctx, id)
}
