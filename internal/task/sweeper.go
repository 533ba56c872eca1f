package task

import (
	"context"
	"time"

	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/metrics"
	"github.com/taskman/taskman/internal/sweep"
)

// Sweeper scans open tasks with a due date and emits overdue or approaching
// events. There is no cross-run suppression: a task still overdue tomorrow is
// notified again tomorrow. Accepted noise; a per-entity last-notified debounce
// is the known candidate improvement.
type Sweeper struct {
	store        Store
	producer     *Producer
	approachDays int
	now          func() time.Time
	logger       *logging.Logger
}

// NewSweeper builds the task deadline sweeper.
func NewSweeper(store Store, producer *Producer, approachDays int) *Sweeper {
	return &Sweeper{
		store:        store,
		producer:     producer,
		approachDays: approachDays,
		now:          time.Now,
		logger:       logging.New("taskd-sweeper"),
	}
}

// Sweep runs one pass. Item failures are isolated: resolution or publish
// errors for one task are logged and the scan moves on.
func (s *Sweeper) Sweep(ctx context.Context) error {
	tasks, err := s.store.ListOpenWithDueDate(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, t := range tasks {
		kind := sweep.Classify(*t.DueDate, now, s.approachDays)
		if kind == sweep.None {
			continue
		}

		recipients, err := s.producer.ResolveRecipients(ctx, t)
		if err != nil {
			s.logger.Plain().WithSubject(t.ID).WithError(err).Error("sweep item: recipient resolution failed")
			metrics.RecordSweepItemError("taskd")
			continue
		}

		switch kind {
		case sweep.Overdue:
			err = s.producer.Overdue(ctx, t, recipients)
		case sweep.Approaching:
			err = s.producer.DeadlineApproaching(ctx, t, recipients)
		}
		if err != nil {
			s.logger.Plain().WithSubject(t.ID).WithError(err).Error("sweep item: publish failed")
			metrics.RecordSweepItemError("taskd")
			continue
		}
		metrics.RecordSweepEvent("taskd", kind.String())
	}
	return nil
}
