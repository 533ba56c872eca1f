// Package sweep holds the deadline classification and the ticker loop shared
// by the task and project sweepers.
package sweep

import (
	"context"
	"time"

	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/metrics"
)

// Kind classifies an entity's deadline on a given day.
type Kind int

const (
	None Kind = iota
	Approaching
	Overdue
)

func (k Kind) String() string {
	switch k {
	case Approaching:
		return "approaching"
	case Overdue:
		return "overdue"
	default:
		return "none"
	}
}

// Classify buckets a due date relative to now, at day granularity. A deadline
// later today is Approaching (0 days out), yesterday is Overdue.
func Classify(due, now time.Time, approachDays int) Kind {
	today := truncateToDay(now)
	dueDay := truncateToDay(due)
	days := int(dueDay.Sub(today).Hours() / 24)
	switch {
	case days < 0:
		return Overdue
	case days <= approachDays:
		return Approaching
	default:
		return None
	}
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Runner drives a sweep function on a fixed cadence. The first run fires
// after startDelay so a restarting fleet does not stampede.
type Runner struct {
	service    string
	interval   time.Duration
	startDelay time.Duration
	sweep      func(ctx context.Context) error
	logger     *logging.Logger
}

// NewRunner builds a sweep runner for a service.
func NewRunner(service string, interval, startDelay time.Duration, fn func(ctx context.Context) error) *Runner {
	return &Runner{
		service:    service,
		interval:   interval,
		startDelay: startDelay,
		sweep:      fn,
		logger:     logging.New(service),
	}
}

// Run blocks until ctx is done, invoking the sweep on each tick. A failed
// sweep is logged and the cadence continues; per-item isolation inside the
// sweep function keeps one bad entity from aborting a pass.
func (r *Runner) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(r.startDelay):
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		metrics.RecordSweepRun(r.service)
		r.logger.Plain().Info("deadline sweep starting")
		if err := r.sweep(ctx); err != nil {
			r.logger.Plain().WithError(err).Error("deadline sweep failed")
		} else {
			r.logger.Plain().Info("deadline sweep completed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
