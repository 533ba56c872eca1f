package sweep

import (
	"context"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name         string
		due          time.Time
		approachDays int
		expected     Kind
	}{
		{
			name:         "five days past due",
			due:          now.AddDate(0, 0, -5),
			approachDays: 3,
			expected:     Overdue,
		},
		{
			name:         "yesterday is overdue",
			due:          now.AddDate(0, 0, -1),
			approachDays: 3,
			expected:     Overdue,
		},
		{
			name:         "earlier today is still approaching",
			due:          time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC),
			approachDays: 3,
			expected:     Approaching,
		},
		{
			name:         "later today is approaching",
			due:          time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC),
			approachDays: 3,
			expected:     Approaching,
		},
		{
			name:         "three days out is approaching",
			due:          now.AddDate(0, 0, 3),
			approachDays: 3,
			expected:     Approaching,
		},
		{
			name:         "four days out is neither",
			due:          now.AddDate(0, 0, 4),
			approachDays: 3,
			expected:     None,
		},
		{
			name:         "far future is neither",
			due:          now.AddDate(1, 0, 0),
			approachDays: 3,
			expected:     None,
		},
		{
			name:         "zero approach window only matches today",
			due:          now.AddDate(0, 0, 1),
			approachDays: 0,
			expected:     None,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.due, now, tt.approachDays)
			if got != tt.expected {
				t.Errorf("Classify(%v, %v, %d) = %v, want %v", tt.due, now, tt.approachDays, got, tt.expected)
			}
		})
	}
}

func TestClassify_DayGranularity(t *testing.T) {
	// 23:59 yesterday vs 00:01 today differ by two minutes but a full day
	// bucket; classification must flip.
	now := time.Date(2025, 6, 15, 0, 1, 0, 0, time.UTC)
	due := time.Date(2025, 6, 14, 23, 59, 0, 0, time.UTC)

	if got := Classify(due, now, 3); got != Overdue {
		t.Errorf("Classify just-past-midnight = %v, want Overdue", got)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{None, "none"},
		{Approaching, "approaching"},
		{Overdue, "overdue"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.expected)
		}
	}
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	runs := 0
	r := NewRunner("test", time.Millisecond, 0, func(ctx context.Context) error {
		runs++
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
	if runs == 0 {
		t.Error("sweep never ran")
	}
}
