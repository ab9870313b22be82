// Package scheduler triggers digest runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "eventdigest/internal/log"
)

// Job is one scheduled unit of work. now is the fire time in the
// scheduler's location.
type Job func(ctx context.Context, now time.Time)

// Scheduler runs a Job on a standard five-field cron expression. Runs never
// overlap; a firing that finds the previous run still busy is skipped.
type Scheduler struct {
	spec  string
	loc   *time.Location
	sched cron.Schedule
	job   Job

	busy *sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithGuard shares mu with other run triggers so that a scheduled firing
// is skipped while any of them holds it.
func WithGuard(mu *sync.Mutex) Option {
	return func(s *Scheduler) {
		if mu != nil {
			s.busy = mu
		}
	}
}

// New parses spec (e.g. "0 9 * * MON") in loc.
func New(spec string, loc *time.Location, job Job, opts ...Option) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	s := &Scheduler{spec: spec, loc: loc, sched: sched, job: job, busy: new(sync.Mutex)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next returns the first fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.sched.Next(t.In(s.loc))
}

// Run blocks until ctx is cancelled, firing the job on schedule. It waits
// for a running job to return before it returns.
func (s *Scheduler) Run(ctx context.Context) {
	c := cron.New(cron.WithLocation(s.loc))
	c.Schedule(s.sched, cron.FuncJob(func() { s.fire(ctx) }))
	c.Start()
	appLog.Info("scheduler started", "schedule", s.spec, "timezone", s.loc.String(), "next", s.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) fire(ctx context.Context) {
	if !s.busy.TryLock() {
		appLog.Warn("previous run still in progress; skipping", "schedule", s.spec)
		return
	}
	defer s.busy.Unlock()
	if ctx.Err() != nil {
		return
	}
	s.job(ctx, time.Now().In(s.loc))
}
