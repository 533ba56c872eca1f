package project

import (
	"context"
	"time"

	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/metrics"
	"github.com/taskman/taskman/internal/sweep"
)

// Sweeper scans non-completed projects with an end date and emits overdue or
// approaching events to the admins. Same re-fire semantics as the task
// sweeper: no suppression across runs.
type Sweeper struct {
	store        Store
	producer     *Producer
	approachDays int
	now          func() time.Time
	logger       *logging.Logger
}

// NewSweeper builds the project deadline sweeper.
func NewSweeper(store Store, producer *Producer, approachDays int) *Sweeper {
	return &Sweeper{
		store:        store,
		producer:     producer,
		approachDays: approachDays,
		now:          time.Now,
		logger:       logging.New("projectd-sweeper"),
	}
}

// Sweep runs one pass with per-item failure isolation.
func (s *Sweeper) Sweep(ctx context.Context) error {
	projects, err := s.store.ListOpenWithEndDate(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, p := range projects {
		kind := sweep.Classify(*p.EndDate, now, s.approachDays)
		if kind == sweep.None {
			continue
		}

		var emitErr error
		switch kind {
		case sweep.Overdue:
			emitErr = s.producer.Overdue(ctx, p)
		case sweep.Approaching:
			emitErr = s.producer.DeadlineApproaching(ctx, p)
		}
		if emitErr != nil {
			s.logger.Plain().WithSubject(p.ID).WithError(emitErr).Error("sweep item: publish failed")
			metrics.RecordSweepItemError("projectd")
			continue
		}
		metrics.RecordSweepEvent("projectd", kind.String())
	}
	return nil
}
