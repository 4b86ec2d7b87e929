package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvery(t *testing.T) {
	s, err := Parse("@every 5m")
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(5*time.Minute), s.Next(now))

	_, err = Parse("@every soon")
	assert.Error(t, err)
	_, err = Parse("@every -1s")
	assert.Error(t, err)
}

func TestParseExprNext(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC) // a Monday

	tests := []struct {
		line string
		want time.Time
	}{
		{"* * * * *", time.Date(2024, 1, 1, 10, 8, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)},
		{"30 2 * * *", time.Date(2024, 1, 2, 2, 30, 0, 0, time.UTC)},
		{"0 9 * * 0", time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC)},
		{"0 0 1 3 *", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"5/20 10 * * *", time.Date(2024, 1, 1, 10, 25, 0, 0, time.UTC)},
		{"0 0 29 2 *", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			s, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(base))
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		_, err := Parse(line)
		assert.Error(t, err, line)
	}
}

func TestSchedulerAddRemove(t *testing.T) {
	s := NewScheduler(nil)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Job{Name: "b", Schedule: "@every 1h", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "a", Schedule: "*/5 * * * *", Run: noop}))
	assert.Equal(t, []string{"a", "b"}, s.Jobs())

	assert.Error(t, s.Add(Job{Name: "a", Schedule: "@every 1h", Run: noop}), "duplicate")
	assert.Error(t, s.Add(Job{Name: "c", Schedule: "whenever", Run: noop}), "bad schedule")
	assert.Error(t, s.Add(Job{Name: "d", Schedule: "@every 1h"}), "no run func")

	require.NoError(t, s.Remove("a"))
	assert.Error(t, s.Remove("a"))
	assert.Equal(t, []string{"b"}, s.Jobs())
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler(nil)
	var runs, failures atomic.Int32

	require.NoError(t, s.Add(Job{Name: "tick", Schedule: "@every 10ms", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "flaky", Schedule: "@every 10ms", Run: func(context.Context) error {
		failures.Add(1)
		return errors.New("boom")
	}}))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start")

	assert.Eventually(t, func() bool { return runs.Load() >= 3 && failures.Load() >= 3 },
		time.Second, 5*time.Millisecond)

	s.Stop()
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "jobs must not run after Stop")
}

func TestSchedulerSurvivesPanic(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int32

	require.NoError(t, s.Add(Job{Name: "panicky", Schedule: "@every 5ms", Run: func(context.Context) error {
		runs.Add(1)
		panic("boom")
	}}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerAddWhileRunning(t *testing.T) {
	s := NewScheduler(nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add(Job{Name: "late", Schedule: "@every 5ms", Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job added after Start never ran")
	}
}
