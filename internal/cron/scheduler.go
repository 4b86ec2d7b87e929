// Package cron runs the gateway's periodic housekeeping jobs, such as sweeping
// expired sessions and pruning late-reply records.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hkuds/ugate/internal/metrics"
)

// Job is a named piece of housekeeping run on Schedule.
type Job struct {
	Name     string
	Schedule string // "@every 1m" or a five-field cron expression
	Run      func(ctx context.Context) error
}

type jobEntry struct {
	job      Job
	schedule Schedule
	cancel   context.CancelFunc
}

// Scheduler runs registered jobs until stopped. Runs of one job never overlap.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*jobEntry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger.With("component", "cron"),
		entries: make(map[string]*jobEntry),
	}
}

// Add registers job, starting it immediately when the scheduler is running.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("cron: job needs a name and a run func")
	}
	sched, err := Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("cron: job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("cron: job %s already registered", job.Name)
	}
	e := &jobEntry{job: job, schedule: sched}
	s.entries[job.Name] = e
	if s.ctx != nil {
		s.startLocked(e)
	}
	return nil
}

// Remove stops and unregisters the named job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("cron: job %s not found", name)
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(s.entries, name)
	return nil
}

// Jobs returns the sorted names of registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches every registered job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return errors.New("cron: scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		s.startLocked(e)
	}
	return nil
}

// Stop cancels all jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Caller must hold s.mu
func (s *Scheduler) startLocked(e *jobEntry) {
	ctx, cancel := context.WithCancel(s.ctx)
	e.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, e.job, e.schedule)
	}()
}

func (s *Scheduler) loop(ctx context.Context, job Job, sched Schedule) {
	for {
		now := time.Now()
		delay := sched.Next(now).Sub(now)
		if delay < 0 {
			delay = 0
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx, job)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", job.Name, "panic", r)
			metrics.HousekeepingRuns.WithLabelValues(job.Name, "panic").Inc()
		}
	}()

	if err := job.Run(ctx); err != nil {
		s.logger.Warn("job failed", "job", job.Name, "err", err, "duration", time.Since(start))
		metrics.HousekeepingRuns.WithLabelValues(job.Name, metrics.ResultError).Inc()
		return
	}
	s.logger.Debug("job ran", "job", job.Name, "duration", time.Since(start))
	metrics.HousekeepingRuns.WithLabelValues(job.Name, metrics.ResultOK).Inc()
}
