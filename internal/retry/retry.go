// Package retry holds the wait schedule used while polling the remote
// identity service for an asynchronously provisioned record.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Schedule describes the wait pattern for a provisioning poll: a settle
// delay before the first fetch attempt, then a fixed gap before each
// subsequent attempt. A schedule with N gaps allows N+1 attempts; there
// is never a wait after the final attempt.
type Schedule struct {
	// Settle is the unconditional delay between a successful create call
	// and the first fetch attempt.
	Settle time.Duration
	// Gaps are the waits between consecutive fetch attempts, in order.
	Gaps []time.Duration
}

// DefaultSchedule matches the remote provisioning profile: a 10s settle
// delay, then 5s and 10s between the three fetch attempts.
func DefaultSchedule() Schedule {
	return Schedule{
		Settle: 10 * time.Second,
		Gaps:   []time.Duration{5 * time.Second, 10 * time.Second},
	}
}

// Attempts returns the number of fetch attempts the schedule allows.
func (s Schedule) Attempts() int {
	return len(s.Gaps) + 1
}

// Gap returns the wait that follows the given 1-based attempt. ok is
// false for the final attempt and beyond.
func (s Schedule) Gap(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > len(s.Gaps) {
		return 0, false
	}
	return s.Gaps[attempt-1], true
}

// Validate checks that every duration in the schedule is usable.
func (s Schedule) Validate() error {
	if s.Settle < 0 {
		return fmt.Errorf("settle delay must not be negative, got %s", s.Settle)
	}
	for i, g := range s.Gaps {
		if g < 0 {
			return fmt.Errorf("retry gap %d must not be negative, got %s", i+1, g)
		}
	}
	return nil
}

// Waiter abstracts blocking waits so tests can substitute a fake clock.
type Waiter interface {
	// Wait blocks for the given duration or until the context is done,
	// returning the context error in the latter case.
	Wait(ctx context.Context, d time.Duration) error
}

// SleepWaiter waits on the wall clock while honouring context cancellation.
type SleepWaiter struct{}

// Wait implements Waiter.
func (SleepWaiter) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
