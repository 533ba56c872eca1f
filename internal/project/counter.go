package project

import (
	"context"
	"fmt"

	"github.com/taskman/taskman/internal/event"
)

// Applier turns one task event into updated counters for the owning project.
// Two strategies exist because the transport is at-least-once with no per-key
// ordering: the ledger-based re-derivation absorbs duplicates and reordering,
// while the delta strategy mirrors the original blind increment/decrement and
// is kept only for comparison. Derivation is the default.
type Applier interface {
	// Apply returns the counters after the event and whether anything changed.
	Apply(ctx context.Context, ev event.TaskEvent) (Counts, bool, error)
}

// DeriveApplier records each event in the per-task ledger keyed by task id,
// then recounts. Applying the same event twice, or applying COMPLETED before
// a delayed CREATED, converges to the same counters.
type DeriveApplier struct {
	store Store
}

// NewDeriveApplier builds the re-derivation strategy.
func NewDeriveApplier(store Store) *DeriveApplier {
	return &DeriveApplier{store: store}
}

func (a *DeriveApplier) Apply(ctx context.Context, ev event.TaskEvent) (Counts, bool, error) {
	completed := ev.EventType == event.TaskCompleted
	deleted := ev.EventType == event.TaskDeleted

	applied, err := a.store.RecordTaskEvent(ctx, ev.ProjectID, ev.TaskID, completed, deleted, ev.Timestamp)
	if err != nil {
		return Counts{}, false, err
	}

	c, err := a.store.DeriveCounts(ctx, ev.ProjectID)
	if err != nil {
		return Counts{}, false, err
	}
	return c, applied, nil
}

// DeltaApplier applies blind increments and decrements to the stored
// counters. Duplicates and reordering corrupt the counts silently; do not use
// it outside of environments where the broker guarantees exactly-once
// in-order delivery per task (ours does not).
type DeltaApplier struct {
	store Store
}

// NewDeltaApplier builds the delta strategy.
func NewDeltaApplier(store Store) *DeltaApplier {
	return &DeltaApplier{store: store}
}

func (a *DeltaApplier) Apply(ctx context.Context, ev event.TaskEvent) (Counts, bool, error) {
	p, err := a.store.Get(ctx, ev.ProjectID)
	if err != nil {
		return Counts{}, false, err
	}

	c := Counts{Total: p.TotalTasks, Completed: p.CompletedTasks}
	switch ev.EventType {
	case event.TaskCreated:
		c.Total++
	case event.TaskCompleted:
		c.Completed++
	case event.TaskDeleted:
		c.Total--
		if ev.Status == "DONE" {
			c.Completed--
		}
	default:
		return c, false, fmt.Errorf("delta applier: unexpected event type %s", ev.EventType)
	}
	return c, true, nil
}

// NewApplier picks a strategy by name. Unknown names fall back to derivation.
func NewApplier(strategy string, store Store) Applier {
	if strategy == "delta" {
		return NewDeltaApplier(store)
	}
	return NewDeriveApplier(store)
}
