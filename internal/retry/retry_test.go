package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule()

	assert.Equal(t, 10*time.Second, s.Settle)
	assert.Equal(t, 3, s.Attempts())

	gap, ok := s.Gap(1)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, gap)

	gap, ok = s.Gap(2)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, gap)

	// Never a wait after the last attempt.
	_, ok = s.Gap(3)
	assert.False(t, ok)

	assert.NoError(t, s.Validate())
}

func TestScheduleValidate(t *testing.T) {
	assert.Error(t, Schedule{Settle: -time.Second}.Validate())
	assert.Error(t, Schedule{Gaps: []time.Duration{time.Second, -1}}.Validate())
	assert.NoError(t, Schedule{}.Validate())
}

func TestScheduleProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gapCount := rapid.IntRange(0, 8).Draw(t, "gapCount")
		gaps := make([]time.Duration, gapCount)
		for i := range gaps {
			gaps[i] = time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(t, "gap"))
		}
		s := Schedule{
			Settle: time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(t, "settle")),
			Gaps:   gaps,
		}

		if err := s.Validate(); err != nil {
			t.Fatalf("non-negative schedule failed validation: %v", err)
		}
		if s.Attempts() != gapCount+1 {
			t.Fatalf("attempts = %d, want %d", s.Attempts(), gapCount+1)
		}

		// Exactly attempts-1 gaps are reachable, in declaration order.
		for attempt := 1; attempt <= s.Attempts(); attempt++ {
			gap, ok := s.Gap(attempt)
			if attempt == s.Attempts() {
				if ok {
					t.Fatalf("gap available after final attempt %d", attempt)
				}
				continue
			}
			if !ok {
				t.Fatalf("no gap after attempt %d of %d", attempt, s.Attempts())
			}
			if gap != gaps[attempt-1] {
				t.Fatalf("gap after attempt %d = %s, want %s", attempt, gap, gaps[attempt-1])
			}
		}
	})
}

func TestSleepWaiter(t *testing.T) {
	t.Run("elapses", func(t *testing.T) {
		start := time.Now()
		err := SleepWaiter{}.Wait(context.Background(), 10*time.Millisecond)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := SleepWaiter{}.Wait(ctx, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero duration", func(t *testing.T) {
		assert.NoError(t, SleepWaiter{}.Wait(context.Background(), 0))
	})
}
